package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/curatd/curatd/internal/config"
	"github.com/curatd/curatd/internal/domain/policy"
)

func TestPoolLimitsConcurrency(t *testing.T) {
	const limit = 3
	const workers = 10
	pool := NewPool(limit)

	var running atomic.Int32
	var maxSeen atomic.Int32

	ctx := context.Background()
	done := make(chan struct{}, workers)

	for range workers {
		go func() {
			defer func() { done <- struct{}{} }()
			err := pool.Run(ctx, func() error {
				cur := running.Add(1)
				// Record high-water mark
				for {
					old := maxSeen.Load()
					if cur <= old || maxSeen.CompareAndSwap(old, cur) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	for range workers {
		<-done
	}

	if m := maxSeen.Load(); m > limit {
		t.Errorf("max concurrent = %d, want <= %d", m, limit)
	}
}

func TestPoolContextCancellation(t *testing.T) {
	pool := NewPool(1)
	ctx := context.Background()

	// Fill the single slot
	occupied := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = pool.Run(ctx, func() error {
			close(occupied)
			<-release
			return nil
		})
	}()
	<-occupied

	// Try to acquire with a cancelled context
	cancelCtx, cancel := context.WithCancel(ctx)
	cancel()

	err := pool.Run(cancelCtx, func() error {
		t.Error("fn should not have been called")
		return nil
	})
	if err == nil {
		t.Error("expected error from cancelled context")
	}

	close(release)
}

func TestNilPoolRunsDirectly(t *testing.T) {
	var pool *Pool
	called := false
	err := pool.Run(context.Background(), func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected fn to be called")
	}
}

func TestPoolsRouteByClass(t *testing.T) {
	pools := NewPools(config.Workers{AIBound: 1, IOBound: 2, Lightweight: 3})

	if pools.For(policy.ClassAIBound) != pools.aiBound {
		t.Error("ai_bound should route to the AI pool")
	}
	if pools.For(policy.ClassIOBound) != pools.ioBound {
		t.Error("io_bound should route to the IO pool")
	}
	if pools.For(policy.ClassLightweight) != pools.lightweight {
		t.Error("lightweight should route to the lightweight pool")
	}
	if pools.For(policy.QueueClass("unknown")) != pools.lightweight {
		t.Error("unknown class should fall back to the lightweight pool")
	}
}
