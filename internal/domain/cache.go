package domain

import (
	"context"
	"time"
)

// OddsCache caches computed odds per market with a TTL so the quote path
// does not hit the ledger on every read.
type OddsCache interface {
	Get(ctx context.Context, marketID string) (Odds, error)
	Set(ctx context.Context, marketID string, odds Odds, ttl time.Duration) error
	Invalidate(ctx context.Context, marketID string) error
}

// LockManager provides distributed locks. Acquire returns an unlock function
// on success and ErrLockHeld when the lock is already taken.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
