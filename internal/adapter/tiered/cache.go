// Package tiered layers an in-process cache over a shared remote cache
// behind the cache port.
package tiered

import (
	"context"
	"time"

	"github.com/curatd/curatd/internal/port/cache"
)

// Cache reads from the near (in-process) level first and backfills it from
// far (shared) hits. Writes and deletes reach the far level first, so the
// level other replicas see never lags the local one.
type Cache struct {
	near    cache.Cache
	far     cache.Cache
	nearTTL time.Duration
}

// New builds a tiered cache. nearTTL bounds how long a far-level hit lives
// in the near cache before the next read revalidates it.
func New(near, far cache.Cache, nearTTL time.Duration) *Cache {
	return &Cache{near: near, far: far, nearTTL: nearTTL}
}

// Get returns the near entry when present, otherwise consults far and
// backfills the near level on a hit.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if val, ok, err := c.near.Get(ctx, key); err != nil || ok {
		return val, ok, err
	}

	val, ok, err := c.far.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	_ = c.near.Set(ctx, key, val, c.nearTTL)
	return val, true, nil
}

// Set writes through far first, so near never serves a value the shared
// level rejected.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.far.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.near.Set(ctx, key, value, ttl)
}

// Delete removes far first, shrinking the window in which a concurrent Get
// can backfill near from a stale far entry.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.far.Delete(ctx, key); err != nil {
		return err
	}
	return c.near.Delete(ctx, key)
}
