// Package durable implements the workflow port on an append-only journal.
// Activity results and gate resolutions are recorded under per-step keys;
// re-executing an instance replays its function and short-circuits every
// recorded step, so a restart continues exactly where the journal ends. The
// journal's append-if-absent semantics arbitrate signal-versus-timer races.
package durable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/curatd/curatd/internal/domain"
	"github.com/curatd/curatd/internal/domain/event"
	"github.com/curatd/curatd/internal/domain/instance"
	"github.com/curatd/curatd/internal/port/eventstore"
	"github.com/curatd/curatd/internal/port/workflow"
)

const (
	stepStart  = "start"
	stepFinish = "finish"
)

// InstanceStore is the slice of the database store the engine needs:
// checkpointed projection rows for status reads.
type InstanceStore interface {
	UpsertInstance(ctx context.Context, inst *instance.WorkflowInstance) error
}

// Engine runs workflow instances against the journal. It implements
// workflow.Runner.
type Engine struct {
	journal   eventstore.Store
	instances InstanceStore
	exec      workflow.Executor

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	defs    map[string]workflow.Func
	running map[string]*run
}

var _ workflow.Runner = (*Engine)(nil)

// NewEngine creates an Engine over the given journal, instance projection
// store and activity executor.
func NewEngine(journal eventstore.Store, instances InstanceStore, exec workflow.Executor) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		journal:   journal,
		instances: instances,
		exec:      exec,
		baseCtx:   ctx,
		stop:      cancel,
		defs:      make(map[string]workflow.Func),
		running:   make(map[string]*run),
	}
}

// Register binds a workflow definition to a name.
func (e *Engine) Register(name string, fn workflow.Func) {
	e.mu.Lock()
	e.defs[name] = fn
	e.mu.Unlock()
}

// Start journals the instance birth and launches its goroutine. A second
// Start for the same ID returns ErrAlreadyStarted.
func (e *Engine) Start(ctx context.Context, name, instanceID string, input []byte) error {
	e.mu.Lock()
	fn, ok := e.defs[name]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown workflow %q", name)
	}

	payload, err := json.Marshal(event.StartedPayload{WorkflowName: name, Input: input})
	if err != nil {
		return fmt.Errorf("marshal start payload: %w", err)
	}
	ev := &event.InstanceEvent{
		InstanceID: instanceID,
		Type:       event.TypeInstanceStarted,
		StepID:     stepStart,
		Payload:    payload,
	}
	if err := e.journal.Append(ctx, ev); err != nil {
		if errors.Is(err, eventstore.ErrStepRecorded) {
			return workflow.ErrAlreadyStarted
		}
		return fmt.Errorf("journal start: %w", err)
	}

	e.launch(fn, instanceID, input)
	return nil
}

// launch spawns the instance goroutine on the engine context: an instance
// must outlive the HTTP request that started it.
func (e *Engine) launch(fn workflow.Func, instanceID string, input []byte) {
	r := newRun(e, instanceID)

	e.mu.Lock()
	if _, exists := e.running[instanceID]; exists {
		e.mu.Unlock()
		return
	}
	e.running[instanceID] = r
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.running, instanceID)
			e.mu.Unlock()
		}()

		if err := fn(e.baseCtx, r, input); err != nil {
			// The instance stays open in the journal; the next Resume
			// re-executes it against the recorded steps.
			if errors.Is(err, context.Canceled) {
				r.log.Info("instance interrupted")
			} else {
				r.log.Error("instance run failed, left open for resume", "error", err)
			}
			return
		}

		fin := &event.InstanceEvent{InstanceID: instanceID, Type: event.TypeInstanceFinished, StepID: stepFinish}
		if err := e.journal.Append(e.baseCtx, fin); err != nil && !errors.Is(err, eventstore.ErrStepRecorded) {
			r.log.Error("journal finish failed", "error", err)
		}
	}()
}

// Signal delivers a payload to the instance's open gate on channel. The
// journal arbitrates: the first append for the gate's step wins, duplicates
// return ErrAlreadyDecided and cause no state change.
func (e *Engine) Signal(ctx context.Context, instanceID, channel string, payload []byte) error {
	e.mu.Lock()
	r, live := e.running[instanceID]
	e.mu.Unlock()

	if !live {
		evs, err := e.journal.Load(ctx, instanceID)
		if err != nil {
			return fmt.Errorf("load journal for %s: %w", instanceID, err)
		}
		if len(evs) == 0 {
			return domain.ErrNotFound
		}
		return workflow.ErrAlreadyDecided
	}

	g, open := r.openGate(channel)
	if !open {
		armed, resolved := e.gateProgress(ctx, instanceID, channel)
		if armed > resolved {
			// A new gate round is opening between journal writes; the
			// caller can retry.
			return workflow.ErrNoPendingReview
		}
		if resolved > 0 {
			e.journalIgnored(ctx, instanceID, channel, "already decided")
			return workflow.ErrAlreadyDecided
		}
		return workflow.ErrNoPendingReview
	}

	ev := &event.InstanceEvent{
		InstanceID: instanceID,
		Type:       event.TypeSignalReceived,
		StepID:     g.stepID,
		Payload:    payload,
	}
	if err := e.journal.Append(ctx, ev); err != nil {
		if errors.Is(err, eventstore.ErrStepRecorded) {
			e.journalIgnored(ctx, instanceID, channel, "already decided")
			return workflow.ErrAlreadyDecided
		}
		return fmt.Errorf("journal signal: %w", err)
	}
	g.nudge()
	return nil
}

// Query serves a registered projection for a live instance.
func (e *Engine) Query(ctx context.Context, instanceID, name string) ([]byte, error) {
	e.mu.Lock()
	r, live := e.running[instanceID]
	e.mu.Unlock()
	if !live {
		return nil, domain.ErrNotFound
	}

	fn, ok := r.queryHandler(name)
	if !ok {
		return nil, workflow.ErrUnknownQuery
	}
	v, err := fn()
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// Resume reloads every open instance from the journal and re-executes it.
func (e *Engine) Resume(ctx context.Context) (int, error) {
	ids, err := e.journal.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open instances: %w", err)
	}

	resumed := 0
	for _, id := range ids {
		e.mu.Lock()
		_, already := e.running[id]
		e.mu.Unlock()
		if already {
			continue
		}

		start, err := e.journal.LoadStep(ctx, id, stepStart)
		if err != nil {
			return resumed, fmt.Errorf("load start event for %s: %w", id, err)
		}
		if start == nil {
			slog.Warn("open instance has no start event", "instance_id", id)
			continue
		}
		var sp event.StartedPayload
		if err := json.Unmarshal(start.Payload, &sp); err != nil {
			slog.Error("corrupt start payload", "instance_id", id, "error", err)
			continue
		}

		e.mu.Lock()
		fn, ok := e.defs[sp.WorkflowName]
		e.mu.Unlock()
		if !ok {
			slog.Error("no definition registered for journaled workflow",
				"instance_id", id, "workflow", sp.WorkflowName)
			continue
		}

		e.launch(fn, id, sp.Input)
		resumed++
	}
	return resumed, nil
}

// Shutdown stops instance goroutines without touching durable state;
// interrupted instances resume on the next boot.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.stop()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// gateProgress counts armed timers and resolved gates on a channel. More
// armed timers than resolutions means a gate round is mid-open, which a
// caller should retry rather than read as decided.
func (e *Engine) gateProgress(ctx context.Context, instanceID, channel string) (armed, resolved int) {
	evs, err := e.journal.Load(ctx, instanceID)
	if err != nil {
		slog.Warn("load journal for gate count failed", "instance_id", instanceID, "error", err)
		return 0, 0
	}
	gatePrefix := "gate:" + channel + "#"
	timerPrefix := "timer:" + channel + "#"
	for _, ev := range evs {
		switch {
		case ev.Type == event.TypeTimerArmed && strings.HasPrefix(ev.StepID, timerPrefix):
			armed++
		case ev.Type.Replayable() && strings.HasPrefix(ev.StepID, gatePrefix):
			// A gate step only ever records a signal or a timer fire.
			resolved++
		}
	}
	return armed, resolved
}

// journalIgnored records a duplicate or late signal for the audit trail.
func (e *Engine) journalIgnored(ctx context.Context, instanceID, channel, reason string) {
	payload, err := json.Marshal(event.SignalIgnoredPayload{Channel: channel, Reason: reason})
	if err != nil {
		return
	}
	ev := &event.InstanceEvent{InstanceID: instanceID, Type: event.TypeSignalIgnored, Payload: payload}
	if err := e.journal.Append(ctx, ev); err != nil {
		slog.Warn("journal ignored signal failed", "instance_id", instanceID, "error", err)
	}
}
