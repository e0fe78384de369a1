// Package cache defines the byte-value cache port used by the reviewer
// pool directory.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-value store with per-entry TTLs. Implementations report
// misses with ok=false and reserve the error for real faults, so callers
// can treat any miss as a trip to the source of truth.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
