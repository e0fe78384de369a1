package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/curatd/curatd/internal/domain/policy"
	"github.com/curatd/curatd/internal/resilience"
)

// Handler executes one attempt of an activity. Input and output travel as
// JSON so results can be journaled and replayed byte-for-byte.
type Handler func(ctx context.Context, input []byte) ([]byte, error)

// Executor owns the task registry and dispatches every activity attempt:
// policy lookup, routing to the class pool, per-attempt timeout, retry with
// backoff. A pool slot is held for the duration of one attempt only; backoff
// sleeps do not occupy a slot.
type Executor struct {
	table    policy.Table
	pools    *Pools
	handlers map[policy.TaskType]Handler
}

// NewExecutor creates an Executor over the given policy table and pools.
func NewExecutor(table policy.Table, pools *Pools) *Executor {
	return &Executor{
		table:    table,
		pools:    pools,
		handlers: make(map[policy.TaskType]Handler),
	}
}

// Register binds a handler to a task type. Last registration wins.
func (e *Executor) Register(task policy.TaskType, h Handler) {
	e.handlers[task] = h
}

// Execute runs one activity under its retry policy and returns the result,
// the number of attempts consumed, and the final error if the budget is
// exhausted or the failure is permanent.
func (e *Executor) Execute(ctx context.Context, task policy.TaskType, input []byte) ([]byte, int, error) {
	h, ok := e.handlers[task]
	if !ok {
		return nil, 0, policy.Permanent(fmt.Errorf("no handler registered for task %q", task))
	}
	p, err := e.table.For(task)
	if err != nil {
		return nil, 0, policy.Permanent(err)
	}
	pool := e.pools.For(p.Class)

	var result []byte
	attempts, err := resilience.RetryNotify(ctx, p, func(attemptCtx context.Context) error {
		return pool.Run(attemptCtx, func() error {
			out, herr := h(attemptCtx, input)
			if herr != nil {
				return herr
			}
			result = out
			return nil
		})
	}, func(attemptErr error, next time.Duration) {
		slog.Warn("activity attempt failed",
			"task", string(task),
			"class", string(p.Class),
			"retry_in", next.String(),
			"error", attemptErr)
	})
	if err != nil {
		return nil, attempts, err
	}
	return result, attempts, nil
}
