package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/curatd/curatd/internal/domain"
	"github.com/curatd/curatd/internal/domain/content"
	"github.com/curatd/curatd/internal/domain/decision"
	"github.com/curatd/curatd/internal/domain/instance"
)

// Store implements database.Store using PostgreSQL. Rows here are
// projections of the workflow journal: the journal stays authoritative,
// these tables serve reads and restart recovery.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Content items ---

func (s *Store) CreateContentItem(ctx context.Context, item *content.ContentItem) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO content_items (id, submitter_id, collection_id, title, criteria, payload_ref, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.ID, item.SubmitterID, item.CollectionID, item.Title, item.Criteria,
		item.PayloadRef, item.Status, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return fmt.Errorf("create content item %s: %w", item.ID, domain.ErrConflict)
		}
		return fmt.Errorf("create content item %s: %w", item.ID, err)
	}
	return nil
}

func (s *Store) GetContentItem(ctx context.Context, id string) (*content.ContentItem, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, submitter_id, collection_id, title, criteria, payload_ref, status, created_at, updated_at
		 FROM content_items WHERE id = $1`, id)

	item, err := scanContentItem(row)
	if err != nil {
		return nil, notFoundWrap(err, "get content item %s", id)
	}
	return &item, nil
}

func (s *Store) UpdateContentStatus(ctx context.Context, id string, status content.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE content_items SET status = $2, updated_at = now() WHERE id = $1`,
		id, status)
	return execExpectOne(tag, err, "update content status %s", id)
}

// --- Workflow instances ---

func (s *Store) UpsertInstance(ctx context.Context, inst *instance.WorkflowInstance) error {
	counters := inst.RetryCounters
	if counters == nil {
		counters = map[string]int{}
	}
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("marshal retry counters: %w", err)
	}
	decisionJSON, err := jsonbOrNull(inst.Decision)
	if err != nil {
		return fmt.Errorf("upsert instance %s: %w", inst.ID, err)
	}
	effectsJSON, err := jsonbOrNull(inst.SideEffects)
	if err != nil {
		return fmt.Errorf("upsert instance %s: %w", inst.ID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO workflow_instances
		     (id, content_item_id, state, current_step, retry_counters, score, decision, side_effects, archived, created_at, last_checkpoint_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
		     state = EXCLUDED.state,
		     current_step = EXCLUDED.current_step,
		     retry_counters = EXCLUDED.retry_counters,
		     score = EXCLUDED.score,
		     decision = EXCLUDED.decision,
		     side_effects = EXCLUDED.side_effects,
		     archived = EXCLUDED.archived,
		     last_checkpoint_at = EXCLUDED.last_checkpoint_at,
		     completed_at = EXCLUDED.completed_at`,
		inst.ID, inst.ContentItemID, inst.State, inst.CurrentStep, countersJSON,
		inst.Score, decisionJSON, effectsJSON, inst.Archived,
		inst.CreatedAt, inst.LastCheckpointAt, inst.CompletedAt)
	if err != nil {
		return fmt.Errorf("upsert instance %s: %w", inst.ID, err)
	}
	return nil
}

func (s *Store) GetInstance(ctx context.Context, id string) (*instance.WorkflowInstance, error) {
	row := s.pool.QueryRow(ctx, instanceSelect+` WHERE id = $1`, id)

	inst, err := scanInstance(row)
	if err != nil {
		return nil, notFoundWrap(err, "get instance %s", id)
	}
	return &inst, nil
}

func (s *Store) GetInstanceByContentItem(ctx context.Context, contentItemID string) (*instance.WorkflowInstance, error) {
	row := s.pool.QueryRow(ctx, instanceSelect+` WHERE content_item_id = $1`, contentItemID)

	inst, err := scanInstance(row)
	if err != nil {
		return nil, notFoundWrap(err, "get instance for content item %s", contentItemID)
	}
	return &inst, nil
}

func (s *Store) ListResumableInstances(ctx context.Context) ([]instance.WorkflowInstance, error) {
	rows, err := s.pool.Query(ctx,
		instanceSelect+` WHERE NOT archived AND completed_at IS NULL ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list resumable instances: %w", err)
	}
	defer rows.Close()

	var out []instance.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *Store) ListInstancesByState(ctx context.Context, state instance.State, limit int) ([]instance.WorkflowInstance, error) {
	rows, err := s.pool.Query(ctx,
		instanceSelect+` WHERE state = $1 AND NOT archived ORDER BY created_at ASC LIMIT $2`,
		state, limit)
	if err != nil {
		return nil, fmt.Errorf("list instances by state %s: %w", state, err)
	}
	defer rows.Close()

	var out []instance.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (s *Store) ArchiveTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workflow_instances SET archived = TRUE
		 WHERE NOT archived AND completed_at IS NOT NULL AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archive terminal instances: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// --- Scan helpers ---

const instanceSelect = `SELECT id, content_item_id, state, current_step, retry_counters, score, decision, side_effects, archived, created_at, last_checkpoint_at, completed_at
 FROM workflow_instances`

func scanContentItem(row scannable) (content.ContentItem, error) {
	var item content.ContentItem
	err := row.Scan(&item.ID, &item.SubmitterID, &item.CollectionID, &item.Title,
		&item.Criteria, &item.PayloadRef, &item.Status, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func scanInstance(row scannable) (instance.WorkflowInstance, error) {
	var inst instance.WorkflowInstance
	var countersJSON, decisionJSON, effectsJSON []byte
	err := row.Scan(&inst.ID, &inst.ContentItemID, &inst.State, &inst.CurrentStep,
		&countersJSON, &inst.Score, &decisionJSON, &effectsJSON, &inst.Archived,
		&inst.CreatedAt, &inst.LastCheckpointAt, &inst.CompletedAt)
	if err != nil {
		return inst, err
	}
	if err := unmarshalInto(countersJSON, &inst.RetryCounters); err != nil {
		return inst, fmt.Errorf("instance %s retry counters: %w", inst.ID, err)
	}
	if decisionJSON != nil {
		var d decision.Decision
		if err := unmarshalInto(decisionJSON, &d); err != nil {
			return inst, fmt.Errorf("instance %s decision: %w", inst.ID, err)
		}
		inst.Decision = &d
	}
	if effectsJSON != nil {
		var r instance.SideEffectResult
		if err := unmarshalInto(effectsJSON, &r); err != nil {
			return inst, fmt.Errorf("instance %s side effects: %w", inst.ID, err)
		}
		inst.SideEffects = &r
	}
	return inst, nil
}
