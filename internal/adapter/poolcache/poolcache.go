// Package poolcache decorates a reviewer directory with a cache so hot
// collections do not hit Postgres on every assignment round.
package poolcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/curatd/curatd/internal/port/cache"
	"github.com/curatd/curatd/internal/port/directory"
)

// Directory caches PoolFor results from an underlying directory. Entries
// expire after ttl; membership changes should call Invalidate so the next
// assignment sees the new pool immediately.
type Directory struct {
	inner directory.ReviewerDirectory
	cache cache.Cache
	ttl   time.Duration
}

// New wraps inner with the given cache.
func New(inner directory.ReviewerDirectory, c cache.Cache, ttl time.Duration) *Directory {
	return &Directory{inner: inner, cache: c, ttl: ttl}
}

// PoolFor returns the cached pool for the collection, falling back to the
// underlying directory on a miss. A cache error is treated as a miss.
func (d *Directory) PoolFor(ctx context.Context, collectionID string) ([]string, error) {
	key := poolKey(collectionID)

	if data, ok, err := d.cache.Get(ctx, key); err == nil && ok {
		var pool []string
		if err := json.Unmarshal(data, &pool); err == nil {
			return pool, nil
		}
	}

	pool, err := d.inner.PoolFor(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(pool); err == nil {
		_ = d.cache.Set(ctx, key, data, d.ttl)
	}
	return pool, nil
}

// Invalidate drops the cached pool for a collection.
func (d *Directory) Invalidate(ctx context.Context, collectionID string) error {
	return d.cache.Delete(ctx, poolKey(collectionID))
}

func poolKey(collectionID string) string { return "pool:" + collectionID }
