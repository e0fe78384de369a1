package postgres

import (
	"context"
	"fmt"

	"github.com/curatd/curatd/internal/domain/event"
)

// CreateAuditRecord writes the terminal summary for a content item. Keyed on
// content_item_id so a replayed finish step rewrites the same record.
func (s *Store) CreateAuditRecord(ctx context.Context, rec *event.AuditRecord) error {
	decisionJSON, err := jsonbOrNull(rec.Decision)
	if err != nil {
		return fmt.Errorf("audit record %s: %w", rec.ContentItemID, err)
	}
	transitionsJSON, err := jsonbOrNull(rec.Transitions)
	if err != nil {
		return fmt.Errorf("audit record %s: %w", rec.ContentItemID, err)
	}
	effectsJSON, err := jsonbOrNull(rec.SideEffects)
	if err != nil {
		return fmt.Errorf("audit record %s: %w", rec.ContentItemID, err)
	}

	const q = `INSERT INTO audit_records
		(id, content_item_id, instance_id, final_state, decision, score, reviewer_id, transitions, side_effects, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (content_item_id) DO UPDATE SET
		    final_state = EXCLUDED.final_state,
		    decision = EXCLUDED.decision,
		    score = EXCLUDED.score,
		    reviewer_id = EXCLUDED.reviewer_id,
		    transitions = EXCLUDED.transitions,
		    side_effects = EXCLUDED.side_effects,
		    recorded_at = EXCLUDED.recorded_at`
	_, err = s.pool.Exec(ctx, q,
		rec.ID, rec.ContentItemID, rec.InstanceID, rec.FinalState,
		decisionJSON, rec.Score, rec.ReviewerID, transitionsJSON, effectsJSON, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("create audit record %s: %w", rec.ContentItemID, err)
	}
	return nil
}

// GetAuditRecord returns the terminal summary for a content item.
func (s *Store) GetAuditRecord(ctx context.Context, contentItemID string) (*event.AuditRecord, error) {
	const q = `SELECT id, content_item_id, instance_id, final_state, decision, score, reviewer_id, transitions, side_effects, recorded_at
		FROM audit_records WHERE content_item_id = $1`
	rec := &event.AuditRecord{}
	var decisionJSON, transitionsJSON, effectsJSON []byte
	err := s.pool.QueryRow(ctx, q, contentItemID).Scan(
		&rec.ID, &rec.ContentItemID, &rec.InstanceID, &rec.FinalState,
		&decisionJSON, &rec.Score, &rec.ReviewerID, &transitionsJSON, &effectsJSON, &rec.RecordedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get audit record %s", contentItemID)
	}
	if err := unmarshalInto(decisionJSON, &rec.Decision); err != nil {
		return nil, fmt.Errorf("audit record %s decision: %w", contentItemID, err)
	}
	if err := unmarshalInto(transitionsJSON, &rec.Transitions); err != nil {
		return nil, fmt.Errorf("audit record %s transitions: %w", contentItemID, err)
	}
	if err := unmarshalInto(effectsJSON, &rec.SideEffects); err != nil {
		return nil, fmt.Errorf("audit record %s side effects: %w", contentItemID, err)
	}
	return rec, nil
}
