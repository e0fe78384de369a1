package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/curatd/curatd/internal/activity"
	"github.com/curatd/curatd/internal/adapter/ws"
	"github.com/curatd/curatd/internal/domain/content"
	"github.com/curatd/curatd/internal/domain/decision"
	"github.com/curatd/curatd/internal/domain/event"
	"github.com/curatd/curatd/internal/domain/instance"
	"github.com/curatd/curatd/internal/domain/policy"
	"github.com/curatd/curatd/internal/port/alert"
	"github.com/curatd/curatd/internal/port/eventstore"
	"github.com/curatd/curatd/internal/port/indexer"
	"github.com/curatd/curatd/internal/port/messagequeue"
	"github.com/curatd/curatd/internal/port/workflow"
)

// engineErr separates infrastructure failures from journaled activity
// outcomes. An ActivityFailedError is a recorded result the join handles; an
// unrecorded error (shutdown, journal write) must leave the instance open.
func engineErr(err error) error {
	var af *workflow.ActivityFailedError
	if err == nil || errors.As(err, &af) {
		return nil
	}
	return err
}

func failureReason(err error) string {
	var af *workflow.ActivityFailedError
	if errors.As(err, &af) {
		return fmt.Sprintf("%s (after %d attempts)", af.Message, af.Attempts)
	}
	return err.Error()
}

// finishApproved runs the indexing fan-out, records the join outcome and
// completes the instance. A failed side leaves a partial result and a repair
// task; the succeeded side's journal entry short-circuits any replay, so it
// is never re-invoked.
func (r *reviewRun) finishApproved(ctx context.Context, dec *decision.Decision) error {
	log := r.wf.Logger()
	if err := r.checkpoint(ctx, instance.StateFanningOut, "fanout"); err != nil {
		return err
	}
	r.publishDecided(ctx, dec)

	doc := r.document()
	var (
		searchOut                     activity.IndexSearchOutput
		graphOut                      activity.IndexGraphOutput
		searchAttempts, graphAttempts int
		searchErr, graphErr           error
	)
	g := new(errgroup.Group)
	g.Go(func() error {
		searchAttempts, searchErr = r.wf.ExecuteActivity(ctx, "index:search",
			policy.TaskIndexSearch, activity.IndexInput{Doc: doc}, &searchOut)
		return nil
	})
	g.Go(func() error {
		graphAttempts, graphErr = r.wf.ExecuteActivity(ctx, "index:graph",
			policy.TaskIndexGraph, activity.IndexInput{Doc: doc}, &graphOut)
		return nil
	})
	_ = g.Wait()
	r.countRetry(policy.TaskIndexSearch, searchAttempts)
	r.countRetry(policy.TaskIndexGraph, graphAttempts)

	if err := engineErr(searchErr); err != nil {
		return err
	}
	if err := engineErr(graphErr); err != nil {
		return err
	}

	result := instance.SideEffectResult{
		SearchIndexed: searchErr == nil,
		GraphUpdated:  graphErr == nil,
		ExternalURL:   searchOut.ExternalURL,
	}
	if searchErr != nil {
		result.PartialFailures = append(result.PartialFailures,
			instance.PartialFailure{Side: instance.SideSearch, Reason: failureReason(searchErr)})
	}
	if graphErr != nil {
		result.PartialFailures = append(result.PartialFailures,
			instance.PartialFailure{Side: instance.SideGraph, Reason: failureReason(graphErr)})
	}
	r.setSideEffects(&result)
	if err := r.svc.store.UpsertSideEffects(ctx, r.in.Item.ID, &result); err != nil {
		log.Error("persist side effects", "error", err)
	}

	if !result.SearchIndexed && !result.GraphUpdated {
		return r.finishAttention(ctx, "fanout.total_failure",
			"both indexing sides failed; approved content is not indexed")
	}

	for _, pf := range result.PartialFailures {
		r.scheduleRepair(ctx, doc, pf)
	}

	if err := r.svc.store.UpdateContentStatus(ctx, r.in.Item.ID, content.StatusApproved); err != nil {
		log.Error("update content status", "status", content.StatusApproved, "error", err)
	}
	r.notify(ctx, "notify:decided", activity.NotifyInput{
		Event:       "review.decided",
		RecipientID: r.in.Item.SubmitterID,
		Subject:     "Approved: " + r.in.Item.Title,
		Body:        fmt.Sprintf("Your submission was approved (%s, score %.1f).", dec.Kind, dec.Score),
		Level:       "success",
	})
	return r.finishTerminal(ctx, instance.StateCompleted, "completed")
}

// scheduleRepair journals the repair task append-if-absent and publishes it
// to the repair queue. A replay that finds the step recorded skips the
// publish; a task lost between append and publish is re-derived by the
// janitor's stale-partial sweep.
func (r *reviewRun) scheduleRepair(ctx context.Context, doc indexer.Document, pf instance.PartialFailure) {
	log := r.wf.Logger()
	payload := messagequeue.RepairIndexPayload{
		ContentItemID: doc.ContentItemID,
		InstanceID:    r.wf.ID(),
		Side:          string(pf.Side),
		CollectionID:  doc.CollectionID,
		Title:         doc.Title,
		PayloadRef:    doc.PayloadRef,
		Score:         doc.Score,
		Topics:        doc.Topics,
		Entities:      doc.Entities,
		Attempt:       1,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error("marshal repair task", "side", pf.Side, "error", err)
		return
	}

	err = r.svc.journal.Append(ctx, &event.InstanceEvent{
		InstanceID: r.wf.ID(),
		Type:       event.TypeRepairScheduled,
		StepID:     "repair:" + string(pf.Side),
		Payload:    raw,
	})
	if errors.Is(err, eventstore.ErrStepRecorded) {
		return
	}
	if err != nil {
		log.Warn("journal repair task", "side", pf.Side, "error", err)
	}

	r.svc.publish(ctx, messagequeue.SubjectRepairIndex, payload)
	log.Warn("fan-out side failed, repair scheduled", "side", pf.Side, "reason", pf.Reason)
}

func (r *reviewRun) finishRejected(ctx context.Context, dec *decision.Decision) error {
	log := r.wf.Logger()
	r.publishDecided(ctx, dec)
	if err := r.svc.store.UpdateContentStatus(ctx, r.in.Item.ID, content.StatusRejected); err != nil {
		log.Error("update content status", "status", content.StatusRejected, "error", err)
	}

	body := fmt.Sprintf("Your submission was rejected (%s, score %.1f).", dec.Kind, dec.Score)
	if dec.Reason != "" {
		body += " Reason: " + dec.Reason
	}
	r.notify(ctx, "notify:decided", activity.NotifyInput{
		Event:       "review.decided",
		RecipientID: r.in.Item.SubmitterID,
		Subject:     "Rejected: " + r.in.Item.Title,
		Body:        body,
		Level:       "warning",
	})
	return r.finishTerminal(ctx, instance.StateRejected, "rejected")
}

// finishAttention parks the instance in the operator queue. It is a terminal
// state: resolution happens out of band, not by resuming this instance. The
// source labels the alert and the parked-instance metric with which branch
// gave up.
func (r *reviewRun) finishAttention(ctx context.Context, source, message string) error {
	log := r.wf.Logger()
	log.Error("instance needs operator attention", "source", source, "reason", message)
	r.svc.raise(ctx, alert.Alert{
		Severity:      alert.SeverityCritical,
		Source:        source,
		ContentItemID: r.in.Item.ID,
		InstanceID:    r.wf.ID(),
		Message:       message,
	})
	if err := r.svc.store.UpdateContentStatus(ctx, r.in.Item.ID, content.StatusAttention); err != nil {
		log.Error("update content status", "status", content.StatusAttention, "error", err)
	}
	if r.svc.metrics != nil {
		r.svc.metrics.InstancesParked.Add(ctx, 1, metric.WithAttributes(
			attribute.String("source", source)))
	}
	return r.finishTerminal(ctx, instance.StateOperatorAttention, "attention")
}

func (r *reviewRun) finishTerminal(ctx context.Context, st instance.State, step string) error {
	if err := r.checkpoint(ctx, st, step); err != nil {
		return err
	}

	rec := r.buildAudit(ctx)
	if err := r.svc.store.CreateAuditRecord(ctx, rec); err != nil {
		r.wf.Logger().Error("write audit record", "error", err)
	}

	snap := r.snapshot()
	kind := ""
	if snap.Decision != nil {
		kind = string(snap.Decision.Kind)
	}
	r.svc.publish(ctx, messagequeue.SubjectInstanceFinished, messagequeue.InstanceFinishedPayload{
		ContentItemID: snap.ContentItemID,
		InstanceID:    snap.InstanceID,
		FinalState:    string(st),
		DecisionKind:  kind,
	})
	r.svc.broadcast(ctx, ws.EventInstanceFinished, snap)
	if r.svc.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("final_state", string(st)))
		r.svc.metrics.InstancesFinished.Add(ctx, 1, attrs)
		r.svc.metrics.InstanceDuration.Record(ctx, time.Since(r.inst.CreatedAt).Seconds(), attrs)
	}
	r.wf.Logger().Info("review finished", "state", st, "decision", kind)
	return nil
}

func (r *reviewRun) publishDecided(ctx context.Context, dec *decision.Decision) {
	r.svc.publish(ctx, messagequeue.SubjectReviewDecided, messagequeue.ReviewDecidedPayload{
		ContentItemID: r.in.Item.ID,
		InstanceID:    r.wf.ID(),
		Kind:          string(dec.Kind),
		ReviewerID:    dec.ControllerID,
		Score:         dec.Score,
	})
	r.svc.broadcast(ctx, ws.EventReviewDecided, r.snapshot())
}
