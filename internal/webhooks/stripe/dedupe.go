package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/stitchwell-backend/pkg/redis"
)

// EventDeduper remembers delivered Stripe event ids so a redelivery is
// acknowledged without being applied again.
type EventDeduper struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewEventDeduper(store redis.IdempotencyStore, ttl time.Duration, scope string) (*EventDeduper, error) {
	switch {
	case store == nil:
		return nil, errors.New("event deduper: store is required")
	case ttl < 0:
		return nil, errors.New("event deduper: ttl must be non-negative")
	case strings.TrimSpace(scope) == "":
		return nil, errors.New("event deduper: scope is required")
	}
	return &EventDeduper{store: store, ttl: ttl, scope: scope}, nil
}

// Claim returns true for the first delivery of eventID within the ttl.
func (d *EventDeduper) Claim(ctx context.Context, eventID string) (bool, error) {
	key, err := d.key(eventID)
	if err != nil {
		return false, err
	}
	first, err := d.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), d.ttl)
	if err != nil {
		return false, fmt.Errorf("claim stripe event %s: %w", eventID, err)
	}
	return first, nil
}

// Release forgets eventID so Stripe's next retry is processed.
func (d *EventDeduper) Release(ctx context.Context, eventID string) error {
	key, err := d.key(eventID)
	if err != nil {
		return err
	}
	return d.store.Del(ctx, key)
}

func (d *EventDeduper) key(eventID string) (string, error) {
	if eventID == "" {
		return "", errors.New("stripe event id is required")
	}
	return d.store.IdempotencyKey(d.scope, eventID), nil
}
