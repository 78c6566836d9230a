// Package marketdata memoizes provider price history and fundamentals behind
// a keyed store with time-to-live expiry.
package marketdata

import (
	"context"
	"time"
)

// Store is a keyed byte store with per-entry expiry.
// Writes are whole-value: an entry is either absent or complete.
type Store interface {
	// Get returns the value if present and not expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value with expiration = now + ttl, replacing any previous value.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// DeleteExpired removes all expired entries and returns how many were removed.
	DeleteExpired(ctx context.Context) (int64, error)
}
