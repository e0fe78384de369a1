// Package service contains the application services: the content review
// workflow definition, the submission and decision API surface, notification
// fan-out, side-effect repair and the housekeeping janitor.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/curatd/curatd/internal/activity"
	curatdotel "github.com/curatd/curatd/internal/adapter/otel"
	"github.com/curatd/curatd/internal/adapter/ws"
	"github.com/curatd/curatd/internal/config"
	"github.com/curatd/curatd/internal/domain/assignment"
	"github.com/curatd/curatd/internal/domain/content"
	"github.com/curatd/curatd/internal/domain/decision"
	"github.com/curatd/curatd/internal/domain/event"
	"github.com/curatd/curatd/internal/domain/instance"
	"github.com/curatd/curatd/internal/domain/policy"
	"github.com/curatd/curatd/internal/port/alert"
	"github.com/curatd/curatd/internal/port/broadcast"
	"github.com/curatd/curatd/internal/port/database"
	"github.com/curatd/curatd/internal/port/eventstore"
	"github.com/curatd/curatd/internal/port/indexer"
	"github.com/curatd/curatd/internal/port/messagequeue"
	"github.com/curatd/curatd/internal/port/workflow"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// WorkflowName identifies the review workflow in the engine registry.
const WorkflowName = "content_review"

// DecisionChannel is the signal channel controllers resolve reviews on.
const DecisionChannel = "decision"

// Timeout policy values for an expired review SLA.
const (
	TimeoutReject   = "reject"
	TimeoutReassign = "reassign"
)

// Fallback values for an exhausted reviewer pool.
const (
	FallbackReject     = "reject"
	FallbackApprove    = "approve"
	FallbackController = "controller"
)

// ReviewRules freezes the decision policy for one instance. It rides in the
// journaled workflow input, so resumes and replays decide exactly as the
// first execution would have, regardless of config changes since.
type ReviewRules struct {
	Thresholds        decision.Thresholds `json:"thresholds"`
	SLA               time.Duration       `json:"sla"`
	TimeoutPolicy     string              `json:"timeout_policy"`
	MaxAssignRounds   int                 `json:"max_assign_rounds"`
	EmptyPoolFallback string              `json:"empty_pool_fallback"`
	ControllerID      string              `json:"controller_id,omitempty"`
}

// RulesFromConfig snapshots the current review configuration.
func RulesFromConfig(cfg config.Review) ReviewRules {
	return ReviewRules{
		Thresholds: decision.Thresholds{
			RejectBelow:      cfg.RejectBelow,
			ReviewBelow:      cfg.ReviewBelow,
			ApproveAtOrAbove: cfg.ApproveAtOrAbove,
		},
		SLA:               cfg.SLA,
		TimeoutPolicy:     cfg.TimeoutPolicy,
		MaxAssignRounds:   cfg.MaxAssignRounds,
		EmptyPoolFallback: cfg.EmptyPoolFallback,
		ControllerID:      cfg.ControllerID,
	}
}

// ReviewInput is the journaled input of one review workflow instance.
type ReviewInput struct {
	Item  content.ContentItem `json:"item"`
	Rules ReviewRules         `json:"rules"`
}

// OrchestratorService owns the review workflow definition: scoring, the
// decision engine, reviewer escalation with durable wait gates, and the
// indexing fan-out with its repair scheduling.
type OrchestratorService struct {
	store   database.Store
	journal eventstore.Store
	runner  workflow.Runner
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	alerter alert.Alerter
	metrics *curatdotel.Metrics
}

// NewOrchestratorService creates the orchestrator and registers the review
// workflow with the runner.
func NewOrchestratorService(
	store database.Store,
	journal eventstore.Store,
	runner workflow.Runner,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
	alerter alert.Alerter,
) *OrchestratorService {
	s := &OrchestratorService{
		store:   store,
		journal: journal,
		runner:  runner,
		queue:   queue,
		hub:     hub,
		alerter: alerter,
	}
	runner.Register(WorkflowName, s.runReview)
	return s
}

// SetMetrics attaches the metric instruments. Without them the workflow
// runs unmeasured.
func (s *OrchestratorService) SetMetrics(m *curatdotel.Metrics) {
	s.metrics = m
}

// runReview is the workflow function. It must stay deterministic against the
// journal: every external effect goes through an activity, a checkpoint or an
// idempotent projection write.
func (s *OrchestratorService) runReview(ctx context.Context, wf workflow.Instance, input []byte) error {
	var in ReviewInput
	if err := json.Unmarshal(input, &in); err != nil {
		return fmt.Errorf("decode review input: %w", err)
	}

	r := &reviewRun{
		svc: s,
		wf:  wf,
		in:  in,
		inst: &instance.WorkflowInstance{
			ID:            wf.ID(),
			ContentItemID: in.Item.ID,
			State:         instance.StateCreated,
			CreatedAt:     time.Now().UTC(),
		},
	}
	wf.SetQueryHandler("status", r.status)
	return r.run(ctx)
}

// reviewRun carries one instance's in-flight state between workflow phases.
// The mutex guards everything the status query reads while the workflow
// goroutine advances.
type reviewRun struct {
	svc *OrchestratorService
	wf  workflow.Instance
	in  ReviewInput

	mu       sync.Mutex
	inst     *instance.WorkflowInstance
	score    activity.ScoreOutput
	round    int
	assigned *assignment.ReviewAssignment
}

func (r *reviewRun) run(ctx context.Context) error {
	log := r.wf.Logger()

	if err := r.checkpoint(ctx, instance.StateCreated, "created"); err != nil {
		return err
	}
	if err := r.checkpoint(ctx, instance.StateScoring, "scoring"); err != nil {
		return err
	}

	var score activity.ScoreOutput
	attempts, err := r.wf.ExecuteActivity(ctx, "score", policy.TaskScore, activity.ScoreInput{
		ContentItemID: r.in.Item.ID,
		CollectionID:  r.in.Item.CollectionID,
		Title:         r.in.Item.Title,
		Criteria:      r.in.Item.Criteria,
		PayloadRef:    r.in.Item.PayloadRef,
	}, &score)
	r.countRetry(policy.TaskScore, attempts)
	if err != nil {
		var af *workflow.ActivityFailedError
		if errors.As(err, &af) {
			return r.finishAttention(ctx, "scoring.failed",
				fmt.Sprintf("scoring failed after %d attempts: %s", af.Attempts, af.Message))
		}
		return err
	}
	r.setScore(score)
	log.Info("content scored", "score", score.Score, "attempts", attempts)
	if r.svc.metrics != nil {
		r.svc.metrics.ReviewScore.Record(ctx, score.Score, metric.WithAttributes(
			attribute.String("collection.id", r.in.Item.CollectionID)))
	}

	kind, err := decision.Evaluate(score.Score, r.in.Rules.Thresholds)
	if err != nil {
		return r.finishAttention(ctx, "config.thresholds", "threshold configuration rejected: "+err.Error())
	}

	switch kind {
	case decision.KindAutoApprove:
		if err := r.checkpoint(ctx, instance.StateAutoDecided, "auto_decided"); err != nil {
			return err
		}
		return r.finishApproved(ctx, r.decide(decision.KindAutoApprove, "",
			"score cleared the approval threshold", score.AssessedAt))
	case decision.KindAutoReject:
		if err := r.checkpoint(ctx, instance.StateAutoDecided, "auto_decided"); err != nil {
			return err
		}
		return r.finishRejected(ctx, r.decide(decision.KindAutoReject, "",
			"score below the rejection threshold", score.AssessedAt))
	}
	return r.escalate(ctx)
}

// escalate runs the human-review rounds: assign a reviewer, wait on the
// decision gate, apply the signal or the timeout policy. Reassignment burns
// the previous reviewer and starts a fresh gate round.
func (r *reviewRun) escalate(ctx context.Context) error {
	log := r.wf.Logger()
	rules := r.in.Rules
	exclude := make([]string, 0, rules.MaxAssignRounds)

	for round := 1; ; round++ {
		r.setRound(round)
		if err := r.checkpoint(ctx, instance.StateAwaitingAssignment, fmt.Sprintf("assign#%d", round)); err != nil {
			return err
		}

		fallback := ""
		if rules.EmptyPoolFallback == FallbackController {
			fallback = rules.ControllerID
		}
		var asg activity.AssignOutput
		attempts, err := r.wf.ExecuteActivity(ctx, fmt.Sprintf("assign#%d", round), policy.TaskAssign, activity.AssignInput{
			ContentItemID:      r.in.Item.ID,
			CollectionID:       r.in.Item.CollectionID,
			SubmitterID:        r.in.Item.SubmitterID,
			Round:              round,
			Exclude:            exclude,
			FallbackReviewerID: fallback,
		}, &asg)
		r.countRetry(policy.TaskAssign, attempts)
		if err != nil {
			var af *workflow.ActivityFailedError
			if errors.As(err, &af) {
				return r.finishAttention(ctx, "assignment.failed",
					fmt.Sprintf("reviewer assignment failed after %d attempts: %s", af.Attempts, af.Message))
			}
			return err
		}

		if !asg.Eligible {
			log.Warn("no eligible reviewer",
				"round", round, "pool_size", asg.PoolSize, "fallback", rules.EmptyPoolFallback)
			if rules.EmptyPoolFallback == FallbackApprove {
				return r.finishApproved(ctx, r.decide(decision.KindAutoApprove, "",
					"reviewer pool exhausted; fallback approves", r.assessedAt()))
			}
			return r.finishRejected(ctx, r.decide(decision.KindAutoReject, "",
				"reviewer pool exhausted; fallback rejects", r.assessedAt()))
		}

		r.setAssigned(&asg)
		exclude = append(exclude, asg.ReviewerID)
		log.Info("reviewer assigned", "reviewer_id", asg.ReviewerID, "round", round, "pool_size", asg.PoolSize)

		// Pending listings and the active-assignment cap key off this status.
		if err := r.svc.store.UpdateContentStatus(ctx, r.in.Item.ID, content.StatusInReview); err != nil {
			log.Error("update content status", "status", content.StatusInReview, "error", err)
		}

		// The gate must be open before anyone hears about the round: a
		// reviewer reacting to the notification immediately lands a
		// signal instead of bouncing.
		if err := r.checkpoint(ctx, instance.StateAwaitingSignal, fmt.Sprintf("await#%d", round)); err != nil {
			return err
		}
		if err := r.wf.ArmGate(ctx, DecisionChannel, round, rules.SLA); err != nil {
			return err
		}

		r.notify(ctx, fmt.Sprintf("notify:requested#%d", round), activity.NotifyInput{
			Event:       "review.requested",
			RecipientID: asg.ReviewerID,
			Subject:     "Review requested: " + r.in.Item.Title,
			Body: fmt.Sprintf("Content %s scored %.1f and needs your decision within %s.",
				r.in.Item.ID, r.scoreValue(), rules.SLA),
			Level: "info",
		})
		r.svc.publish(ctx, messagequeue.SubjectReviewRequested, messagequeue.ReviewRequestedPayload{
			ContentItemID: r.in.Item.ID,
			InstanceID:    r.wf.ID(),
			ReviewerID:    asg.ReviewerID,
			Round:         round,
			Score:         r.scoreValue(),
		})
		r.svc.broadcast(ctx, ws.EventReviewRequested, r.snapshot())

		outcome, err := r.wf.AwaitSignal(ctx, DecisionChannel, round, rules.SLA)
		if err != nil {
			return err
		}
		if err := r.checkpoint(ctx, instance.StateDeciding, fmt.Sprintf("deciding#%d", round)); err != nil {
			return err
		}

		if outcome.TimedOut {
			log.Warn("review window expired",
				"round", round, "reviewer_id", asg.ReviewerID, "timeout_policy", rules.TimeoutPolicy)
			if rules.TimeoutPolicy == TimeoutReassign && round < rules.MaxAssignRounds {
				continue
			}
			return r.finishRejected(ctx, r.decide(decision.KindTimeoutReject, "",
				fmt.Sprintf("no controller decision within %s", rules.SLA), outcome.At))
		}

		var sig decision.ReviewSignal
		if err := json.Unmarshal(outcome.Payload, &sig); err != nil {
			return r.finishAttention(ctx, "signal.corrupt", "recorded decision signal is unreadable: "+err.Error())
		}
		dec := r.decide(sig.Outcome(), sig.ReviewerID, sig.Notes, outcome.At)
		log.Info("controller decided", "reviewer_id", sig.ReviewerID, "approved", sig.Approved, "round", round)
		if dec.Kind == decision.KindHumanApprove {
			return r.finishApproved(ctx, dec)
		}
		return r.finishRejected(ctx, dec)
	}
}

// checkpoint records a state transition. The instance copy handed to the
// engine is detached so the status query can keep reading while the write is
// in flight.
func (r *reviewRun) checkpoint(ctx context.Context, st instance.State, step string) error {
	r.mu.Lock()
	if r.inst.State != st && !r.inst.State.CanTransitionTo(st) {
		cur := r.inst.State
		r.mu.Unlock()
		return fmt.Errorf("illegal transition %s -> %s", cur, st)
	}
	r.inst.State = st
	r.inst.CurrentStep = step
	if st.IsTerminal() && r.inst.CompletedAt == nil {
		now := time.Now().UTC()
		r.inst.CompletedAt = &now
	}
	snap := r.inst.Clone()
	r.mu.Unlock()

	if err := r.wf.Checkpoint(ctx, snap); err != nil {
		return err
	}

	r.mu.Lock()
	r.inst.LastCheckpointAt = snap.LastCheckpointAt
	r.mu.Unlock()
	return nil
}

// notify delivers a stakeholder notification through the journaled activity
// so a resume never re-sends it. Delivery failure is logged, never fatal.
func (r *reviewRun) notify(ctx context.Context, stepID string, in activity.NotifyInput) {
	var out activity.NotifyOutput
	attempts, err := r.wf.ExecuteActivity(ctx, stepID, policy.TaskNotify, in, &out)
	r.countRetry(policy.TaskNotify, attempts)
	if err != nil {
		r.wf.Logger().Warn("notification undelivered", "event", in.Event, "recipient_id", in.RecipientID, "error", err)
		return
	}
	r.wf.Logger().Debug("notification delivered", "event", in.Event, "recipient_id", in.RecipientID, "dispatched", out.Dispatched)
}

func (r *reviewRun) decide(kind decision.Kind, controllerID, reason string, at time.Time) *decision.Decision {
	d := &decision.Decision{
		Kind:         kind,
		Score:        r.scoreValue(),
		ControllerID: controllerID,
		Reason:       reason,
		DecidedAt:    at,
	}
	r.mu.Lock()
	r.inst.Decision = d
	r.mu.Unlock()
	return d
}

func (r *reviewRun) setScore(out activity.ScoreOutput) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.score = out
	v := out.Score
	r.inst.Score = &v
}

func (r *reviewRun) setRound(round int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.round = round
}

func (r *reviewRun) setAssigned(out *activity.AssignOutput) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assigned = &assignment.ReviewAssignment{
		ContentItemID: r.in.Item.ID,
		Round:         out.Round,
		ReviewerID:    out.ReviewerID,
		AssignedAt:    out.AssignedAt,
	}
}

func (r *reviewRun) setSideEffects(res *instance.SideEffectResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inst.SideEffects = res
}

func (r *reviewRun) countRetry(task policy.TaskType, attempts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inst.CountRetry(string(task), attempts)
}

func (r *reviewRun) scoreValue() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.score.Score
}

// assessedAt is the journal-stable timestamp of the scoring step, used to
// stamp decisions that have no gate event of their own.
func (r *reviewRun) assessedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.score.AssessedAt
}

// status serves the non-blocking status query from the live instance.
func (r *reviewRun) status() (any, error) {
	return r.snapshot(), nil
}

func (r *reviewRun) snapshot() instance.StatusProjection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return instance.StatusProjection{
		InstanceID:    r.inst.ID,
		ContentItemID: r.inst.ContentItemID,
		State:         r.inst.State,
		Round:         r.round,
		Score:         r.inst.Score,
		Assignment:    r.assigned,
		Decision:      r.inst.Decision,
		SideEffects:   r.inst.SideEffects,
		UpdatedAt:     r.inst.LastCheckpointAt,
	}
}

func (r *reviewRun) document() indexer.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return indexer.Document{
		ContentItemID: r.in.Item.ID,
		CollectionID:  r.in.Item.CollectionID,
		Title:         r.in.Item.Title,
		PayloadRef:    r.in.Item.PayloadRef,
		Score:         r.score.Score,
		Topics:        r.score.Topics,
		Entities:      r.score.Entities,
	}
}

// publish sends a lifecycle message. Publishing is at-least-once: a resume
// that replays past a publish site may send again, consumers dedupe on IDs.
func (s *OrchestratorService) publish(ctx context.Context, subject string, payload any) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal queue payload", "subject", subject, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.Warn("publish failed", "subject", subject, "error", err)
	}
}

func (s *OrchestratorService) broadcast(ctx context.Context, eventType string, payload any) {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastEvent(ctx, eventType, payload)
}

func (s *OrchestratorService) raise(ctx context.Context, a alert.Alert) {
	if s.alerter == nil {
		return
	}
	if err := s.alerter.Raise(ctx, a); err != nil {
		slog.Warn("raise alert", "source", a.Source, "error", err)
	}
}

// buildAudit assembles the terminal audit record. Transitions come from the
// journal's state_changed events, so the trail survives any restart.
func (r *reviewRun) buildAudit(ctx context.Context) *event.AuditRecord {
	r.mu.Lock()
	rec := &event.AuditRecord{
		ID:            uuid.New().String(),
		ContentItemID: r.inst.ContentItemID,
		InstanceID:    r.inst.ID,
		FinalState:    r.inst.State,
		Decision:      r.inst.Decision,
		Score:         r.inst.Score,
		SideEffects:   r.inst.SideEffects,
		RecordedAt:    time.Now().UTC(),
	}
	if r.inst.Decision != nil && r.inst.Decision.ControllerID != "" {
		rec.ReviewerID = r.inst.Decision.ControllerID
	} else if r.assigned != nil {
		rec.ReviewerID = r.assigned.ReviewerID
	}
	r.mu.Unlock()

	events, err := r.svc.journal.Load(ctx, rec.InstanceID)
	if err != nil {
		r.wf.Logger().Error("load journal for audit", "error", err)
		return rec
	}
	for _, ev := range events {
		if ev.Type != event.TypeStateChanged {
			continue
		}
		var p event.StateChangedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			continue
		}
		rec.Transitions = append(rec.Transitions, event.Transition{State: p.State, At: ev.RecordedAt})
	}
	return rec
}
