package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"

	curatdotel "github.com/curatd/curatd/internal/adapter/otel"
	"github.com/curatd/curatd/internal/domain/event"
	"github.com/curatd/curatd/internal/domain/instance"
	"github.com/curatd/curatd/internal/domain/policy"
	"github.com/curatd/curatd/internal/port/eventstore"
	"github.com/curatd/curatd/internal/port/workflow"
)

// gate is an open signal wait registered by AwaitSignal. Signal appends the
// resolution to the journal and nudges; the waiting goroutine reads back
// whatever the journal recorded.
type gate struct {
	stepID string
	wake   chan struct{}
}

func (g *gate) nudge() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

func gateStep(channel string, round int) string {
	return "gate:" + channel + "#" + strconv.Itoa(round)
}

func timerStep(channel string, round int) string {
	return "timer:" + channel + "#" + strconv.Itoa(round)
}

// run is the live handle of one workflow instance. It implements
// workflow.Instance.
type run struct {
	engine *Engine
	id     string
	log    *slog.Logger

	qmu     sync.RWMutex
	queries map[string]workflow.QueryFunc

	gmu   sync.Mutex
	gates map[string]*gate
}

var _ workflow.Instance = (*run)(nil)

func newRun(e *Engine, id string) *run {
	return &run{
		engine:  e,
		id:      id,
		log:     slog.Default().With("instance_id", id),
		queries: make(map[string]workflow.QueryFunc),
		gates:   make(map[string]*gate),
	}
}

func (r *run) ID() string { return r.id }

func (r *run) Logger() *slog.Logger { return r.log }

func (r *run) SetQueryHandler(name string, fn workflow.QueryFunc) {
	r.qmu.Lock()
	r.queries[name] = fn
	r.qmu.Unlock()
}

func (r *run) queryHandler(name string) (workflow.QueryFunc, bool) {
	r.qmu.RLock()
	defer r.qmu.RUnlock()
	fn, ok := r.queries[name]
	return fn, ok
}

func (r *run) openGate(channel string) (*gate, bool) {
	r.gmu.Lock()
	defer r.gmu.Unlock()
	g, ok := r.gates[channel]
	return g, ok
}

// ensureGate returns the open gate for the channel, reusing one registered by
// an earlier ArmGate for the same step. Reuse keeps a wake buffered by a
// signal that landed before the wait started.
func (r *run) ensureGate(channel, stepID string) *gate {
	r.gmu.Lock()
	defer r.gmu.Unlock()
	if g, ok := r.gates[channel]; ok && g.stepID == stepID {
		return g
	}
	g := &gate{stepID: stepID, wake: make(chan struct{}, 1)}
	r.gates[channel] = g
	return g
}

func (r *run) dropGate(channel, stepID string) {
	r.gmu.Lock()
	if g, ok := r.gates[channel]; ok && g.stepID == stepID {
		delete(r.gates, channel)
	}
	r.gmu.Unlock()
}

// ExecuteActivity runs a task once and journals the outcome; a recorded
// outcome short-circuits re-execution.
func (r *run) ExecuteActivity(ctx context.Context, stepID string, task policy.TaskType, input, output any) (int, error) {
	ev, err := r.engine.journal.LoadStep(ctx, r.id, stepID)
	if err != nil {
		return 0, fmt.Errorf("load step %s: %w", stepID, err)
	}

	if ev == nil {
		in, err := json.Marshal(input)
		if err != nil {
			return 0, fmt.Errorf("marshal input for step %s: %w", stepID, err)
		}

		execCtx, span := curatdotel.StartActivitySpan(ctx, r.id, stepID)
		result, attempts, execErr := r.engine.exec.Execute(execCtx, task, in)
		if execErr != nil {
			span.SetStatus(codes.Error, execErr.Error())
		}
		span.End()

		if ctx.Err() != nil {
			// Engine stopping: leave the step unrecorded so the next
			// resume re-runs it.
			return attempts, ctx.Err()
		}

		if execErr != nil {
			payload, merr := json.Marshal(event.ActivityFailedPayload{
				Task:      task,
				Attempts:  attempts,
				Message:   execErr.Error(),
				Permanent: policy.IsPermanent(execErr),
			})
			if merr != nil {
				return attempts, fmt.Errorf("marshal failure for step %s: %w", stepID, merr)
			}
			ev = &event.InstanceEvent{InstanceID: r.id, Type: event.TypeActivityFailed, StepID: stepID, Payload: payload}
		} else {
			payload, merr := json.Marshal(event.ActivityCompletedPayload{
				Task:     task,
				Attempts: attempts,
				Result:   result,
			})
			if merr != nil {
				return attempts, fmt.Errorf("marshal result for step %s: %w", stepID, merr)
			}
			ev = &event.InstanceEvent{InstanceID: r.id, Type: event.TypeActivityCompleted, StepID: stepID, Payload: payload}
		}

		if aerr := r.engine.journal.Append(ctx, ev); aerr != nil {
			if !errors.Is(aerr, eventstore.ErrStepRecorded) {
				return attempts, fmt.Errorf("journal step %s: %w", stepID, aerr)
			}
			// Lost a recording race; the recorded outcome wins.
			ev, err = r.engine.journal.LoadStep(ctx, r.id, stepID)
			if err != nil || ev == nil {
				return attempts, fmt.Errorf("reload step %s: %w", stepID, err)
			}
		}
	}

	return decodeActivityOutcome(ev, stepID, output)
}

func decodeActivityOutcome(ev *event.InstanceEvent, stepID string, output any) (int, error) {
	switch ev.Type {
	case event.TypeActivityCompleted:
		var p event.ActivityCompletedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return 0, fmt.Errorf("decode result for step %s: %w", stepID, err)
		}
		if output != nil && len(p.Result) > 0 {
			if err := json.Unmarshal(p.Result, output); err != nil {
				return p.Attempts, fmt.Errorf("decode output for step %s: %w", stepID, err)
			}
		}
		return p.Attempts, nil

	case event.TypeActivityFailed:
		var p event.ActivityFailedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return 0, fmt.Errorf("decode failure for step %s: %w", stepID, err)
		}
		return p.Attempts, &workflow.ActivityFailedError{
			StepID:    stepID,
			Task:      p.Task,
			Message:   p.Message,
			Permanent: p.Permanent,
			Attempts:  p.Attempts,
		}

	default:
		return 0, fmt.Errorf("step %s holds unexpected event type %q", stepID, ev.Type)
	}
}

// ArmGate opens the gate for a round ahead of AwaitSignal: the deadline is
// journaled and the live gate registered, so a signal arriving between the
// round's announcement and the wait is accepted rather than bounced. Arming
// an already armed or resolved round changes nothing.
func (r *run) ArmGate(ctx context.Context, channel string, round int, timeout time.Duration) error {
	stepID := gateStep(channel, round)

	ev, err := r.engine.journal.LoadStep(ctx, r.id, stepID)
	if err != nil {
		return fmt.Errorf("load gate %s: %w", stepID, err)
	}
	if ev != nil {
		// Resolved on a previous run; AwaitSignal reads it back.
		return nil
	}

	if _, err := r.armTimer(ctx, channel, round, timeout); err != nil {
		return err
	}
	r.ensureGate(channel, stepID)
	return nil
}

// AwaitSignal blocks until a signal lands on channel or the durable timer
// expires. The gate deadline is journaled on first entry; after a restart the
// timer is re-armed with the remaining duration. Whichever resolution reaches
// the journal first wins.
func (r *run) AwaitSignal(ctx context.Context, channel string, round int, timeout time.Duration) (workflow.GateOutcome, error) {
	stepID := gateStep(channel, round)

	// A recorded resolution wins, replayed or raced.
	ev, err := r.engine.journal.LoadStep(ctx, r.id, stepID)
	if err != nil {
		return workflow.GateOutcome{}, fmt.Errorf("load gate %s: %w", stepID, err)
	}
	if ev != nil {
		r.dropGate(channel, stepID)
		return gateOutcome(ev)
	}

	fireAt, err := r.armTimer(ctx, channel, round, timeout)
	if err != nil {
		return workflow.GateOutcome{}, err
	}

	g := r.ensureGate(channel, stepID)
	defer r.dropGate(channel, stepID)

	timer := time.NewTimer(time.Until(fireAt))
	defer timer.Stop()

	for {
		select {
		case <-g.wake:
			ev, err := r.engine.journal.LoadStep(ctx, r.id, stepID)
			if err != nil {
				return workflow.GateOutcome{}, fmt.Errorf("load gate %s: %w", stepID, err)
			}
			if ev == nil {
				continue // spurious wake
			}
			return gateOutcome(ev)

		case <-timer.C:
			ev := &event.InstanceEvent{InstanceID: r.id, Type: event.TypeTimerFired, StepID: stepID}
			if aerr := r.engine.journal.Append(ctx, ev); aerr != nil {
				if errors.Is(aerr, eventstore.ErrStepRecorded) {
					// A signal reached the journal first.
					rec, lerr := r.engine.journal.LoadStep(ctx, r.id, stepID)
					if lerr != nil || rec == nil {
						return workflow.GateOutcome{}, fmt.Errorf("reload gate %s: %w", stepID, lerr)
					}
					return gateOutcome(rec)
				}
				return workflow.GateOutcome{}, fmt.Errorf("journal timer fire %s: %w", stepID, aerr)
			}
			return gateOutcome(ev)

		case <-ctx.Done():
			return workflow.GateOutcome{}, ctx.Err()
		}
	}
}

// armTimer journals the gate deadline once; replay reuses the original
// deadline so the wait resumes with whatever time is left.
func (r *run) armTimer(ctx context.Context, channel string, round int, timeout time.Duration) (time.Time, error) {
	step := timerStep(channel, round)

	ev, err := r.engine.journal.LoadStep(ctx, r.id, step)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timer %s: %w", step, err)
	}
	if ev == nil {
		fireAt := time.Now().UTC().Add(timeout)
		payload, merr := json.Marshal(event.TimerArmedPayload{Channel: channel, Round: round, FireAt: fireAt})
		if merr != nil {
			return time.Time{}, fmt.Errorf("marshal timer payload: %w", merr)
		}
		armed := &event.InstanceEvent{InstanceID: r.id, Type: event.TypeTimerArmed, StepID: step, Payload: payload}
		aerr := r.engine.journal.Append(ctx, armed)
		if aerr == nil {
			return fireAt, nil
		}
		if !errors.Is(aerr, eventstore.ErrStepRecorded) {
			return time.Time{}, fmt.Errorf("journal timer arm %s: %w", step, aerr)
		}
		ev, err = r.engine.journal.LoadStep(ctx, r.id, step)
		if err != nil || ev == nil {
			return time.Time{}, fmt.Errorf("reload timer %s: %w", step, err)
		}
	}

	var p event.TimerArmedPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return time.Time{}, fmt.Errorf("decode timer %s: %w", step, err)
	}
	return p.FireAt, nil
}

// gateOutcome converts a recorded resolution into the caller-facing outcome.
func gateOutcome(ev *event.InstanceEvent) (workflow.GateOutcome, error) {
	switch ev.Type {
	case event.TypeSignalReceived:
		return workflow.GateOutcome{Payload: ev.Payload, At: ev.RecordedAt}, nil
	case event.TypeTimerFired:
		return workflow.GateOutcome{TimedOut: true, At: ev.RecordedAt}, nil
	default:
		return workflow.GateOutcome{}, fmt.Errorf("gate %s holds unexpected event type %q", ev.StepID, ev.Type)
	}
}

// Checkpoint journals the transition once and writes the projection row.
// The journal append comes first: no externally visible row precedes its
// write-ahead record.
func (r *run) Checkpoint(ctx context.Context, inst *instance.WorkflowInstance) error {
	inst.LastCheckpointAt = time.Now().UTC()

	payload, err := json.Marshal(event.StateChangedPayload{State: inst.State, Step: inst.CurrentStep})
	if err != nil {
		return fmt.Errorf("marshal checkpoint payload: %w", err)
	}
	ev := &event.InstanceEvent{
		InstanceID: r.id,
		Type:       event.TypeStateChanged,
		StepID:     "ckpt:" + inst.CurrentStep,
		Payload:    payload,
	}
	if aerr := r.engine.journal.Append(ctx, ev); aerr != nil && !errors.Is(aerr, eventstore.ErrStepRecorded) {
		return fmt.Errorf("journal checkpoint %q: %w", inst.CurrentStep, aerr)
	}

	if err := r.engine.instances.UpsertInstance(ctx, inst); err != nil {
		return fmt.Errorf("persist instance %s: %w", r.id, err)
	}
	return nil
}
