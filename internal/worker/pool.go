// Package worker routes workflow activities onto resource-isolated execution
// pools and drives each task's retry policy.
package worker

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/curatd/curatd/internal/config"
	"github.com/curatd/curatd/internal/domain/policy"
)

// Pool limits concurrent activity executions using a weighted semaphore.
// All activity attempts for a queue class go through a shared Pool so a burst
// of one task type cannot exhaust the resources of another class.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a Pool that allows at most limit concurrent executions.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run acquires a slot, runs fn, and releases the slot.
// Blocks if all slots are busy. Returns ctx.Err() if the context
// is cancelled while waiting for a slot.
// If the pool is nil, fn is executed directly without concurrency control.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}

// Pools holds one bounded pool per queue class. AI-bound scoring, bulk I/O
// indexing and lightweight bookkeeping each get an independent concurrency
// cap.
type Pools struct {
	aiBound     *Pool
	ioBound     *Pool
	lightweight *Pool
}

// NewPools builds the three class pools from the workers config.
func NewPools(cfg config.Workers) *Pools {
	return &Pools{
		aiBound:     NewPool(cfg.AIBound),
		ioBound:     NewPool(cfg.IOBound),
		lightweight: NewPool(cfg.Lightweight),
	}
}

// For returns the pool for a queue class. Unknown classes run on the
// lightweight pool.
func (p *Pools) For(class policy.QueueClass) *Pool {
	switch class {
	case policy.ClassAIBound:
		return p.aiBound
	case policy.ClassIOBound:
		return p.ioBound
	default:
		return p.lightweight
	}
}
