package cart

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/angelmondragon/stitchwell-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/stitchwell-backend/pkg/redis"
)

var sessionPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,128}$`)

// Provider opens the cart for a shopper session. Calls for the same session
// hold the session lock so concurrent requests, on any replica, cannot lose
// each other's writes.
type Provider struct {
	storageFor func(session string) Storage
	locker     Locker
	lookup     ProductLookup
	logg       *logger.Logger
}

// NewProvider builds a provider over an arbitrary storage factory. A nil
// locker leaves sessions unserialized, which only single-process tooling
// and tests should rely on.
func NewProvider(storageFor func(session string) Storage, locker Locker, lookup ProductLookup, logg *logger.Logger) (*Provider, error) {
	if storageFor == nil {
		return nil, fmt.Errorf("cart storage factory required")
	}
	return &Provider{
		storageFor: storageFor,
		locker:     locker,
		lookup:     lookup,
		logg:       logg,
	}, nil
}

// NewRedisProvider keeps each session's cart under its own namespaced key.
func NewRedisProvider(client *pkgredis.Client, cfg config.CartConfig, lookup ProductLookup, logg *logger.Logger) (*Provider, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	locker, err := NewRedisLocker(client, client.CartLockKey, cfg.LockLease, cfg.LockWait)
	if err != nil {
		return nil, err
	}
	return NewProvider(func(session string) Storage {
		return NewRedisStorage(client, client.CartKey(session, cfg.StorageKey), cfg.TTL)
	}, locker, lookup, logg)
}

// ValidSession reports whether the client-supplied session id is usable.
func ValidSession(session string) bool {
	return sessionPattern.MatchString(session)
}

// With opens the session's cart and runs fn while holding the session lock.
func (p *Provider) With(ctx context.Context, session string, fn func(*Store) error) error {
	session = strings.TrimSpace(session)
	if !ValidSession(session) {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid cart session")
	}

	ctx = p.logg.WithCartSession(ctx, session)
	if p.locker != nil {
		unlock, err := p.locker.Lock(ctx, session)
		if err != nil {
			return err
		}
		defer unlock()
	}

	store, err := Open(ctx, p.storageFor(session), Options{Lookup: p.lookup, Logger: p.logg})
	if err != nil {
		return err
	}
	return fn(store)
}
