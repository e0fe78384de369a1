package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	curatdotel "github.com/curatd/curatd/internal/adapter/otel"
	"github.com/curatd/curatd/internal/adapter/ws"
	"github.com/curatd/curatd/internal/config"
	"github.com/curatd/curatd/internal/domain"
	"github.com/curatd/curatd/internal/domain/assignment"
	"github.com/curatd/curatd/internal/domain/content"
	"github.com/curatd/curatd/internal/domain/decision"
	"github.com/curatd/curatd/internal/domain/event"
	"github.com/curatd/curatd/internal/domain/instance"
	"github.com/curatd/curatd/internal/port/broadcast"
	"github.com/curatd/curatd/internal/port/database"
	"github.com/curatd/curatd/internal/port/messagequeue"
	"github.com/curatd/curatd/internal/port/workflow"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// ErrNotAssigned is returned by Decide when the signing reviewer does not
// hold the item's current assignment.
var ErrNotAssigned = errors.New("reviewer is not assigned to this item")

// ReviewService is the API surface of the review pipeline: it accepts
// submissions, relays controller decisions to the workflow gate and serves
// status, audit and queue reads.
type ReviewService struct {
	store   database.Store
	runner  workflow.Runner
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	metrics *curatdotel.Metrics

	mu     sync.RWMutex
	review config.Review
}

// NewReviewService creates a ReviewService. The review config is the policy
// template new instances freeze at start.
func NewReviewService(
	store database.Store,
	runner workflow.Runner,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
	review config.Review,
) *ReviewService {
	return &ReviewService{
		store:  store,
		runner: runner,
		queue:  queue,
		hub:    hub,
		review: review,
	}
}

// SetMetrics attaches the metric instruments. Without them submissions and
// decisions run unmeasured.
func (s *ReviewService) SetMetrics(m *curatdotel.Metrics) {
	s.metrics = m
}

// SubmitResult identifies the created content item and its workflow instance.
type SubmitResult struct {
	ContentItemID string `json:"content_item_id"`
	InstanceID    string `json:"instance_id"`
}

// Submit validates the request, persists the content item and starts its
// review workflow. An invalid threshold configuration rejects the submission
// before anything is written: an instance must never start with one.
func (s *ReviewService) Submit(ctx context.Context, req *content.SubmitRequest) (_ *SubmitResult, err error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validate submission: %w", err)
	}
	rules := RulesFromConfig(s.Policy())
	if err := rules.Thresholds.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item := &content.ContentItem{
		ID:           uuid.New().String(),
		SubmitterID:  req.SubmitterID,
		CollectionID: req.CollectionID,
		Title:        req.Title,
		Criteria:     req.Criteria,
		PayloadRef:   req.PayloadRef,
		Status:       content.StatusSubmitted,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	instanceID := uuid.New().String()

	ctx, span := curatdotel.StartSubmitSpan(ctx, instanceID, item.ID)
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := s.store.CreateContentItem(ctx, item); err != nil {
		return nil, fmt.Errorf("create content item: %w", err)
	}

	seed := &instance.WorkflowInstance{
		ID:               instanceID,
		ContentItemID:    item.ID,
		State:            instance.StateCreated,
		CreatedAt:        now,
		LastCheckpointAt: now,
	}
	if err := s.store.UpsertInstance(ctx, seed); err != nil {
		return nil, fmt.Errorf("seed workflow instance: %w", err)
	}

	input, err := json.Marshal(ReviewInput{Item: *item, Rules: rules})
	if err != nil {
		return nil, fmt.Errorf("marshal workflow input: %w", err)
	}
	if err := s.runner.Start(ctx, WorkflowName, instanceID, input); err != nil && !errors.Is(err, workflow.ErrAlreadyStarted) {
		return nil, fmt.Errorf("start review workflow: %w", err)
	}

	s.publishSubmitted(ctx, item, instanceID)
	if s.metrics != nil {
		s.metrics.InstancesStarted.Add(ctx, 1, metric.WithAttributes(
			attribute.String("collection.id", item.CollectionID)))
	}
	slog.Info("content submitted",
		"content_item_id", item.ID, "instance_id", instanceID, "collection_id", item.CollectionID)
	return &SubmitResult{ContentItemID: item.ID, InstanceID: instanceID}, nil
}

// Decide relays a controller decision to the instance's open gate. The
// signing reviewer must hold the item's current assignment; duplicates and
// late signals surface as workflow.ErrAlreadyDecided without side effects.
func (s *ReviewService) Decide(ctx context.Context, instanceID string, sig *decision.ReviewSignal) error {
	if err := sig.Validate(); err != nil {
		return fmt.Errorf("validate decision: %w", err)
	}

	inst, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	latest, err := s.store.LatestAssignment(ctx, inst.ContentItemID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// No assignment yet; the gate state decides what the signal gets.
	case err != nil:
		return fmt.Errorf("load assignment: %w", err)
	case latest.ReviewerID != sig.ReviewerID:
		return ErrNotAssigned
	}

	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	if err := s.runner.Signal(ctx, instanceID, DecisionChannel, payload); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.ReviewSignals.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("approved", sig.Approved)))
	}
	slog.Info("review decision accepted",
		"instance_id", instanceID, "reviewer_id", sig.ReviewerID, "approved", sig.Approved)
	return nil
}

// DecideByContent resolves the item's instance and relays the decision to it.
func (s *ReviewService) DecideByContent(ctx context.Context, contentItemID string, sig *decision.ReviewSignal) error {
	inst, err := s.store.GetInstanceByContentItem(ctx, contentItemID)
	if err != nil {
		return err
	}
	return s.Decide(ctx, inst.ID, sig)
}

// Status returns the instance's projection without blocking on workflow
// progress: a live instance answers from memory, a finished or resting one
// from its persisted row.
func (s *ReviewService) Status(ctx context.Context, instanceID string) (*instance.StatusProjection, error) {
	raw, err := s.runner.Query(ctx, instanceID, "status")
	if err == nil {
		var p instance.StatusProjection
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode status projection: %w", err)
		}
		return &p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	inst, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	p := &instance.StatusProjection{
		InstanceID:    inst.ID,
		ContentItemID: inst.ContentItemID,
		State:         inst.State,
		Score:         inst.Score,
		Decision:      inst.Decision,
		SideEffects:   inst.SideEffects,
		UpdatedAt:     inst.LastCheckpointAt,
	}
	if latest, err := s.store.LatestAssignment(ctx, inst.ContentItemID); err == nil {
		p.Round = latest.Round
		p.Assignment = latest
	}
	return p, nil
}

// StatusByContent resolves the item's instance and returns its status.
func (s *ReviewService) StatusByContent(ctx context.Context, contentItemID string) (*instance.StatusProjection, error) {
	inst, err := s.store.GetInstanceByContentItem(ctx, contentItemID)
	if err != nil {
		return nil, err
	}
	return s.Status(ctx, inst.ID)
}

// Content returns one content item.
func (s *ReviewService) Content(ctx context.Context, id string) (*content.ContentItem, error) {
	return s.store.GetContentItem(ctx, id)
}

// Audit returns the terminal audit record for a content item.
func (s *ReviewService) Audit(ctx context.Context, contentItemID string) (*event.AuditRecord, error) {
	return s.store.GetAuditRecord(ctx, contentItemID)
}

// Pending lists a reviewer's open assignments, newest first.
func (s *ReviewService) Pending(ctx context.Context, reviewerID string, limit int) ([]assignment.ReviewAssignment, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListPendingReviews(ctx, reviewerID, limit)
}

// Attention lists instances parked for operator resolution.
func (s *ReviewService) Attention(ctx context.Context, limit int) ([]instance.WorkflowInstance, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListInstancesByState(ctx, instance.StateOperatorAttention, limit)
}

// Policy returns the routing policy new instances freeze at start.
func (s *ReviewService) Policy() config.Review {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.review
}

// SetPolicy replaces the policy template for instances started after the
// call. Running instances keep the rules they froze at start.
func (s *ReviewService) SetPolicy(review config.Review) {
	s.mu.Lock()
	s.review = review
	s.mu.Unlock()
}

func (s *ReviewService) publishSubmitted(ctx context.Context, item *content.ContentItem, instanceID string) {
	if s.queue != nil {
		data, err := json.Marshal(messagequeue.ContentSubmittedPayload{
			ContentItemID: item.ID,
			InstanceID:    instanceID,
			SubmitterID:   item.SubmitterID,
			CollectionID:  item.CollectionID,
		})
		if err == nil {
			if err := s.queue.Publish(ctx, messagequeue.SubjectContentSubmitted, data); err != nil {
				slog.Warn("publish failed", "subject", messagequeue.SubjectContentSubmitted, "error", err)
			}
		}
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventContentSubmitted, SubmitResult{ContentItemID: item.ID, InstanceID: instanceID})
	}
}
