package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
)

const (
	defaultLockLease = 10 * time.Second
	defaultLockWait  = 5 * time.Second
	lockRetryDelay   = 20 * time.Millisecond
)

// Locker serializes work on one cart session across API replicas.
type Locker interface {
	Lock(ctx context.Context, session string) (unlock func(), err error)
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLocker holds a SETNX lease per session. The lease expires on its own
// if a replica dies while holding it.
type RedisLocker struct {
	store   leaseStore
	keyFor  func(session string) string
	lease   time.Duration
	maxWait time.Duration
}

func NewRedisLocker(store leaseStore, keyFor func(session string) string, lease, maxWait time.Duration) (*RedisLocker, error) {
	if store == nil {
		return nil, errors.New("lock store required")
	}
	if keyFor == nil {
		return nil, errors.New("lock key func required")
	}
	if lease <= 0 {
		lease = defaultLockLease
	}
	if maxWait <= 0 {
		maxWait = defaultLockWait
	}
	return &RedisLocker{store: store, keyFor: keyFor, lease: lease, maxWait: maxWait}, nil
}

// Lock waits up to maxWait for the session lease. A cart that stays busy
// past that is reported as a retryable conflict.
func (l *RedisLocker) Lock(ctx context.Context, session string) (func(), error) {
	key := l.keyFor(session)
	token := uuid.NewString()
	deadline := time.Now().Add(l.maxWait)

	for {
		ok, err := l.store.SetNX(ctx, key, token, l.lease)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock cart")
		}
		if ok {
			return func() { l.release(context.WithoutCancel(ctx), key, token) }, nil
		}
		if time.Now().After(deadline) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart is being updated by another request")
		}
		timer := time.NewTimer(lockRetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// release drops the lease only while it still carries this holder's token.
func (l *RedisLocker) release(ctx context.Context, key, token string) {
	current, err := l.store.Get(ctx, key)
	if err != nil || current != token {
		// redis.Nil means the lease already expired.
		return
	}
	_ = l.store.Del(ctx, key)
}

