package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/curatd/curatd/internal/activity"
	curatdotel "github.com/curatd/curatd/internal/adapter/otel"
	"github.com/curatd/curatd/internal/domain"
	"github.com/curatd/curatd/internal/domain/event"
	"github.com/curatd/curatd/internal/domain/instance"
	"github.com/curatd/curatd/internal/port/alert"
	"github.com/curatd/curatd/internal/port/database"
	"github.com/curatd/curatd/internal/port/eventstore"
	"github.com/curatd/curatd/internal/port/indexer"
	"github.com/curatd/curatd/internal/port/messagequeue"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RepairService consumes repair tasks for failed fan-out sides and re-invokes
// only the failed side. Repairs are idempotent keyed by (content item, side):
// a task whose side is already marked repaired acks without touching any
// store.
type RepairService struct {
	store       database.Store
	journal     eventstore.Store
	queue       messagequeue.Queue
	search      indexer.SearchIndexer
	graph       indexer.GraphIndexer
	alerter     alert.Alerter
	maxAttempts int
	cancel      func()
}

// NewRepairService creates the repair consumer. The journal supplies the
// recorded assessment for re-derived tasks; maxAttempts bounds requeues per
// task before the alerter takes over.
func NewRepairService(
	store database.Store,
	journal eventstore.Store,
	queue messagequeue.Queue,
	search indexer.SearchIndexer,
	graph indexer.GraphIndexer,
	alerter alert.Alerter,
	maxAttempts int,
) *RepairService {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &RepairService{
		store:       store,
		journal:     journal,
		queue:       queue,
		search:      search,
		graph:       graph,
		alerter:     alerter,
		maxAttempts: maxAttempts,
	}
}

// Start subscribes to the repair queue.
func (s *RepairService) Start(ctx context.Context) error {
	cancel, err := s.queue.Subscribe(ctx, messagequeue.SubjectRepairIndex, s.handle)
	if err != nil {
		return fmt.Errorf("subscribe repair queue: %w", err)
	}
	s.cancel = cancel
	slog.Info("repair consumer started", "subject", messagequeue.SubjectRepairIndex)
	return nil
}

// Stop cancels the subscription.
func (s *RepairService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Requeue publishes a fresh repair task for every side of the item still
// marked failed and returns how many it queued. Items with no side-effect
// row report domain.ErrNotFound; a fully repaired item queues nothing.
func (s *RepairService) Requeue(ctx context.Context, contentItemID string) (int, error) {
	current, err := s.store.GetSideEffects(ctx, contentItemID)
	if err != nil {
		return 0, err
	}
	if current.SearchIndexed && current.GraphUpdated {
		return 0, nil
	}

	task, err := buildRepairTask(ctx, s.store, s.journal, contentItemID)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, side := range []instance.Side{instance.SideSearch, instance.SideGraph} {
		if sideRepaired(current, side) {
			continue
		}
		task.Side = string(side)
		data, err := json.Marshal(task)
		if err != nil {
			return queued, fmt.Errorf("marshal repair task: %w", err)
		}
		if err := s.queue.Publish(ctx, messagequeue.SubjectRepairIndex, data); err != nil {
			return queued, fmt.Errorf("publish repair task: %w", err)
		}
		queued++
	}
	slog.Info("repair requeued by operator", "content_item_id", contentItemID, "sides", queued)
	return queued, nil
}

func (s *RepairService) handle(ctx context.Context, subject string, data []byte) error {
	var task messagequeue.RepairIndexPayload
	if err := json.Unmarshal(data, &task); err != nil {
		slog.Error("discard malformed repair task", "subject", subject, "error", err)
		return nil
	}
	side := instance.Side(task.Side)
	if side != instance.SideSearch && side != instance.SideGraph {
		slog.Error("discard repair task with unknown side", "side", task.Side)
		return nil
	}

	current, err := s.store.GetSideEffects(ctx, task.ContentItemID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("load side effects: %w", err)
	}
	if current != nil && sideRepaired(current, side) {
		slog.Info("repair skipped, side already repaired",
			"content_item_id", task.ContentItemID, "side", task.Side)
		return nil
	}

	doc := indexer.Document{
		ContentItemID: task.ContentItemID,
		CollectionID:  task.CollectionID,
		Title:         task.Title,
		PayloadRef:    task.PayloadRef,
		Score:         task.Score,
		Topics:        task.Topics,
		Entities:      task.Entities,
	}

	repairCtx, span := curatdotel.StartRepairSpan(ctx, task.ContentItemID, task.Side)
	span.SetAttributes(attribute.Int("repair.attempt", task.Attempt))
	defer span.End()

	externalURL, repairErr := s.invoke(repairCtx, side, doc)
	if repairErr != nil {
		span.SetStatus(codes.Error, repairErr.Error())
		if task.Attempt >= s.maxAttempts {
			slog.Error("repair exhausted",
				"content_item_id", task.ContentItemID, "side", task.Side,
				"attempt", task.Attempt, "error", repairErr)
			s.raiseExhausted(ctx, task, repairErr)
			return nil
		}
		slog.Warn("repair attempt failed, requeueing",
			"content_item_id", task.ContentItemID, "side", task.Side,
			"attempt", task.Attempt, "error", repairErr)
		task.Attempt++
		s.republish(ctx, task)
		return nil
	}

	if err := s.store.MarkSideRepaired(ctx, task.ContentItemID, side, externalURL); err != nil {
		return fmt.Errorf("mark side repaired: %w", err)
	}
	s.publishDone(ctx, task, externalURL)
	slog.Info("side repaired",
		"content_item_id", task.ContentItemID, "side", task.Side, "attempt", task.Attempt)
	return nil
}

func (s *RepairService) invoke(ctx context.Context, side instance.Side, doc indexer.Document) (string, error) {
	switch side {
	case instance.SideSearch:
		res, err := s.search.Index(ctx, doc)
		if err != nil {
			return "", err
		}
		if !res.Success {
			return "", errors.New("search store did not acknowledge the document")
		}
		return res.ExternalURL, nil
	default:
		res, err := s.graph.Update(ctx, doc)
		if err != nil {
			return "", err
		}
		if !res.Success {
			return "", errors.New("graph store did not acknowledge the update")
		}
		return "", nil
	}
}

func (s *RepairService) republish(ctx context.Context, task messagequeue.RepairIndexPayload) {
	data, err := json.Marshal(task)
	if err != nil {
		slog.Error("marshal repair task", "error", err)
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectRepairIndex, data); err != nil {
		slog.Error("requeue repair task", "content_item_id", task.ContentItemID, "side", task.Side, "error", err)
	}
}

func (s *RepairService) publishDone(ctx context.Context, task messagequeue.RepairIndexPayload, externalURL string) {
	data, err := json.Marshal(messagequeue.RepairDonePayload{
		ContentItemID: task.ContentItemID,
		Side:          task.Side,
		ExternalURL:   externalURL,
	})
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectRepairDone, data); err != nil {
		slog.Warn("publish failed", "subject", messagequeue.SubjectRepairDone, "error", err)
	}
}

func (s *RepairService) raiseExhausted(ctx context.Context, task messagequeue.RepairIndexPayload, cause error) {
	if s.alerter == nil {
		return
	}
	err := s.alerter.Raise(ctx, alert.Alert{
		Severity:      alert.SeverityCritical,
		Source:        "repair.exhausted",
		ContentItemID: task.ContentItemID,
		InstanceID:    task.InstanceID,
		Message:       fmt.Sprintf("repair of %s side gave up after %d attempts: %v", task.Side, task.Attempt, cause),
	})
	if err != nil {
		slog.Warn("raise alert", "source", "repair.exhausted", "error", err)
	}
}

func sideRepaired(r *instance.SideEffectResult, side instance.Side) bool {
	if side == instance.SideSearch {
		return r.SearchIndexed
	}
	return r.GraphUpdated
}

// buildRepairTask assembles a fresh repair payload for one content item. A
// re-derived task must index the same document the fan-out built, and the
// scored topics and entities live only in the journal; the instance row
// keeps the bare score as a fallback.
func buildRepairTask(ctx context.Context, store database.Store, journal eventstore.Store, contentItemID string) (messagequeue.RepairIndexPayload, error) {
	item, err := store.GetContentItem(ctx, contentItemID)
	if err != nil {
		return messagequeue.RepairIndexPayload{}, fmt.Errorf("load content item: %w", err)
	}
	task := messagequeue.RepairIndexPayload{
		ContentItemID: contentItemID,
		CollectionID:  item.CollectionID,
		Title:         item.Title,
		PayloadRef:    item.PayloadRef,
		Attempt:       1,
	}
	if inst, err := store.GetInstanceByContentItem(ctx, contentItemID); err == nil {
		task.InstanceID = inst.ID
		if inst.Score != nil {
			task.Score = *inst.Score
		}
		if score, ok := journaledScore(ctx, journal, inst.ID); ok {
			task.Score = score.Score
			task.Topics = score.Topics
			task.Entities = score.Entities
		}
	}
	return task, nil
}

// journaledScore reads the assessment recorded under the instance's scoring
// step. A missing or unreadable step leaves the caller on the row score.
func journaledScore(ctx context.Context, journal eventstore.Store, instanceID string) (*activity.ScoreOutput, bool) {
	if journal == nil {
		return nil, false
	}
	ev, err := journal.LoadStep(ctx, instanceID, "score")
	if err != nil {
		slog.Warn("load journaled score", "instance_id", instanceID, "error", err)
		return nil, false
	}
	if ev == nil || ev.Type != event.TypeActivityCompleted {
		return nil, false
	}
	var rec event.ActivityCompletedPayload
	if err := json.Unmarshal(ev.Payload, &rec); err != nil {
		return nil, false
	}
	var out activity.ScoreOutput
	if err := json.Unmarshal(rec.Result, &out); err != nil {
		return nil, false
	}
	return &out, true
}
