// Package ristretto adapts dgraph-io/ristretto to the cache port as the
// in-process near level of the reviewer pool cache.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Sizing assumptions for the admission counters: pool snapshots are small
// JSON arrays, and ristretto wants roughly ten counters per expected item.
const (
	typicalEntryBytes = 512
	countersPerItem   = 10
)

// Cache holds byte values costed by their length, so maxCostBytes caps the
// total cached payload.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a cache bounded to maxCostBytes of stored values.
func New(maxCostBytes int64) (*Cache, error) {
	counters := maxCostBytes / typicalEntryBytes * countersPerItem
	if counters < 1024 {
		counters = 1024
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: counters,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get reports the cached value for key, if admitted and not yet evicted.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, ok := c.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	return val, true, nil
}

// Set offers the value to the cache with the given TTL. Admission is
// best-effort: ristretto may decline entries under cost pressure, and a
// declined entry is simply a future miss.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete drops the key if present.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() {
	c.c.Close()
}
