// Package workflow defines the durable execution substrate port. The
// orchestrator is written against this contract: journaled activity
// execution, durable signal gates and timers, write-ahead checkpoints and
// non-blocking queries. How an implementation persists and replays is its
// own business.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/curatd/curatd/internal/domain/instance"
	"github.com/curatd/curatd/internal/domain/policy"
)

var (
	// ErrAlreadyStarted is returned by Start when an instance with the
	// same ID already exists. Submission is at-least-once; callers treat
	// it as success.
	ErrAlreadyStarted = errors.New("workflow instance already started")

	// ErrAlreadyDecided is returned by Signal when the target gate has
	// been resolved or the instance is terminal. The duplicate causes no
	// state change.
	ErrAlreadyDecided = errors.New("review already decided")

	// ErrNoPendingReview is returned by Signal when the instance is live
	// but no gate is open yet on the channel.
	ErrNoPendingReview = errors.New("no review pending for instance")

	// ErrUnknownQuery is returned by Query for an unregistered handler.
	ErrUnknownQuery = errors.New("unknown query")
)

// Func is a workflow definition. It must be deterministic given its input
// and the journaled outcomes it reads back through the Instance: replay after
// a restart re-executes the function and short-circuits every recorded step.
//
// A nil return closes the instance. A non-nil return leaves it open so a
// later Resume re-executes it; domain outcomes are terminal states, not
// errors.
type Func func(ctx context.Context, wf Instance, input []byte) error

// QueryFunc serves a read-only projection. It must not block on workflow
// progress.
type QueryFunc func() (any, error)

// GateOutcome is the resolution of a signal gate: either a signal payload or
// a timer expiry, never both. At carries the journal timestamp of the
// deciding event, stable across replays.
type GateOutcome struct {
	TimedOut bool            `json:"timed_out"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	At       time.Time       `json:"at"`
}

// Instance is the handle a workflow function runs against.
type Instance interface {
	// ID returns the workflow instance ID.
	ID() string

	// ExecuteActivity runs a task through the routed worker pool with the
	// retry policy for its type, journals the outcome, and decodes the
	// recorded result into output. On re-execution a journaled outcome is
	// returned without re-invoking the activity. The int is the number of
	// attempts the step consumed, recorded or fresh.
	ExecuteActivity(ctx context.Context, stepID string, task policy.TaskType, input, output any) (int, error)

	// ArmGate opens the signal gate for a round before AwaitSignal blocks
	// on it: the durable timer is journaled and signals on the channel are
	// accepted from this point on. Arming an already armed or resolved
	// round is a no-op. Callers arm before announcing the round so a
	// recipient who reacts immediately is not bounced.
	ArmGate(ctx context.Context, channel string, round int, timeout time.Duration) error

	// AwaitSignal blocks the instance until a signal arrives on channel or
	// the durable timer expires, whichever the journal records first.
	// Round distinguishes successive gates on the same channel.
	AwaitSignal(ctx context.Context, channel string, round int, timeout time.Duration) (GateOutcome, error)

	// Checkpoint durably records the instance state. Called before any
	// externally visible effect of the transition. CurrentStep labels the
	// checkpoint and must be unique along an instance's path; a replayed
	// checkpoint is detected by its label and journaled only once.
	Checkpoint(ctx context.Context, inst *instance.WorkflowInstance) error

	// SetQueryHandler registers a non-blocking projection.
	SetQueryHandler(name string, fn QueryFunc)

	// Logger returns a logger scoped to the instance.
	Logger() *slog.Logger
}

// Runner starts, signals, queries and resumes workflow instances.
type Runner interface {
	Register(name string, fn Func)
	Start(ctx context.Context, name, instanceID string, input []byte) error
	Signal(ctx context.Context, instanceID, channel string, payload []byte) error
	Query(ctx context.Context, instanceID, name string) ([]byte, error)

	// Resume reloads every non-terminal instance from the store and
	// re-executes it against its journal. Returns the number resumed.
	Resume(ctx context.Context) (int, error)

	// Shutdown stops instance goroutines without touching durable state;
	// interrupted instances resume on the next boot.
	Shutdown(ctx context.Context) error
}

// Executor dispatches one activity attempt cycle: routing to the class pool,
// per-attempt timeout, retry with backoff. Returns the result, the number of
// attempts consumed, and the final error when attempts are exhausted or the
// failure is permanent.
type Executor interface {
	Execute(ctx context.Context, task policy.TaskType, input []byte) ([]byte, int, error)
}

// ActivityFailedError is the journaled form of an activity branch failure.
// Replay reconstructs it from the journal, so callers must branch on fields,
// not on wrapped sentinel identity.
type ActivityFailedError struct {
	StepID    string          `json:"step_id"`
	Task      policy.TaskType `json:"task"`
	Message   string          `json:"message"`
	Permanent bool            `json:"permanent"`
	Attempts  int             `json:"attempts"`
}

func (e *ActivityFailedError) Error() string {
	return fmt.Sprintf("activity %s (%s) failed after %d attempts: %s", e.StepID, e.Task, e.Attempts, e.Message)
}
