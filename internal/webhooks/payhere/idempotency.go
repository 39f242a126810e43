package payhere

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/medlinkhq/medsupply-backend/pkg/redis"
)

// IdempotencyGuard short-circuits replayed gateway notifications before they
// hit the database. The unique index on payments.transaction_id remains the
// hard guarantee; this only saves the round trip.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// CheckAndMark marks the notification id and reports whether it was already
// seen.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, notificationID string) (bool, error) {
	if notificationID == "" {
		return false, errors.New("notification id is required")
	}
	key := g.store.IdempotencyKey(g.scope, notificationID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete clears the mark so a failed handler run can be retried.
func (g *IdempotencyGuard) Delete(ctx context.Context, notificationID string) error {
	if notificationID == "" {
		return errors.New("notification id is required")
	}
	key := g.store.IdempotencyKey(g.scope, notificationID)
	return g.store.Del(ctx, key)
}
