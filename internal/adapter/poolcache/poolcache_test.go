package poolcache_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/curatd/curatd/internal/adapter/poolcache"
)

// memCache is a simple in-memory cache for testing.
type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

// countingDirectory records how often the backing directory is consulted.
type countingDirectory struct {
	pools map[string][]string
	calls int
	err   error
}

func (d *countingDirectory) PoolFor(_ context.Context, collectionID string) ([]string, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.pools[collectionID], nil
}

func TestDirectory_CachesPool(t *testing.T) {
	inner := &countingDirectory{pools: map[string][]string{
		"col-1": {"reviewer-a", "reviewer-b"},
	}}
	d := poolcache.New(inner, newMemCache(), time.Minute)
	ctx := context.Background()

	pool, err := d.PoolFor(ctx, "col-1")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(pool, []string{"reviewer-a", "reviewer-b"}) {
		t.Fatalf("pool = %v", pool)
	}

	// Second lookup is served from cache.
	pool, err = d.PoolFor(ctx, "col-1")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(pool, []string{"reviewer-a", "reviewer-b"}) {
		t.Fatalf("cached pool = %v", pool)
	}
	if inner.calls != 1 {
		t.Errorf("backing directory consulted %d times, want 1", inner.calls)
	}
}

func TestDirectory_InvalidateForcesRefetch(t *testing.T) {
	inner := &countingDirectory{pools: map[string][]string{
		"col-1": {"reviewer-a"},
	}}
	d := poolcache.New(inner, newMemCache(), time.Minute)
	ctx := context.Background()

	if _, err := d.PoolFor(ctx, "col-1"); err != nil {
		t.Fatal(err)
	}

	// Membership change: the backing pool grows and the cache is dropped.
	inner.pools["col-1"] = []string{"reviewer-a", "reviewer-b"}
	if err := d.Invalidate(ctx, "col-1"); err != nil {
		t.Fatal(err)
	}

	pool, err := d.PoolFor(ctx, "col-1")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(pool, []string{"reviewer-a", "reviewer-b"}) {
		t.Fatalf("pool after invalidate = %v", pool)
	}
	if inner.calls != 2 {
		t.Errorf("backing directory consulted %d times, want 2", inner.calls)
	}
}

func TestDirectory_ErrorNotCached(t *testing.T) {
	boom := errors.New("directory down")
	inner := &countingDirectory{err: boom}
	d := poolcache.New(inner, newMemCache(), time.Minute)
	ctx := context.Background()

	if _, err := d.PoolFor(ctx, "col-1"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	// Recovery: the failed lookup left nothing behind.
	inner.err = nil
	inner.pools = map[string][]string{"col-1": {"reviewer-a"}}
	pool, err := d.PoolFor(ctx, "col-1")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(pool, []string{"reviewer-a"}) {
		t.Fatalf("pool after recovery = %v", pool)
	}
}

func TestDirectory_EmptyPoolCached(t *testing.T) {
	inner := &countingDirectory{pools: map[string][]string{}}
	d := poolcache.New(inner, newMemCache(), time.Minute)
	ctx := context.Background()

	pool, err := d.PoolFor(ctx, "col-empty")
	if err != nil {
		t.Fatal(err)
	}
	if len(pool) != 0 {
		t.Fatalf("pool = %v, want empty", pool)
	}

	if _, err := d.PoolFor(ctx, "col-empty"); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 1 {
		t.Errorf("backing directory consulted %d times, want 1", inner.calls)
	}
}
