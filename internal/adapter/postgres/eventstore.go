package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/curatd/curatd/internal/domain/event"
	"github.com/curatd/curatd/internal/port/eventstore"
)

const (
	// Constraint names from the instance_events migration. Violations on
	// seqConstraint mean a lost sequence race (retry); violations on
	// stepConstraint mean the step outcome is already journaled.
	seqConstraint  = "instance_events_seq_uniq"
	stepConstraint = "instance_events_step_uniq"

	// appendRetries bounds sequence-race retries per Append call.
	appendRetries = 5
)

// EventStore implements eventstore.Store using PostgreSQL (append-only).
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts ev at the next sequence number, stamping ID, Seq and
// RecordedAt on the passed value. Two appenders can compute the same next
// seq; the loser's unique violation retries with a fresh read. A violation
// on the step index instead reports ErrStepRecorded: that step's outcome is
// already journaled and the caller must load it rather than re-run.
func (s *EventStore) Append(ctx context.Context, ev *event.InstanceEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	const q = `INSERT INTO instance_events (id, instance_id, seq, event_type, step_id, payload)
		SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4, $5
		FROM instance_events WHERE instance_id = $2
		RETURNING seq, recorded_at`

	var lastErr error
	for range appendRetries {
		err := s.pool.QueryRow(ctx, q,
			ev.ID, ev.InstanceID, ev.Type, ev.StepID, []byte(ev.Payload)).
			Scan(&ev.Seq, &ev.RecordedAt)
		if err == nil {
			return nil
		}
		if isUniqueViolation(err, stepConstraint) {
			return fmt.Errorf("append %s step %s: %w", ev.InstanceID, ev.StepID, eventstore.ErrStepRecorded)
		}
		if isUniqueViolation(err, seqConstraint) {
			lastErr = err
			continue
		}
		return fmt.Errorf("append event for %s: %w", ev.InstanceID, err)
	}
	return fmt.Errorf("append event for %s: seq contention: %w", ev.InstanceID, lastErr)
}

// Load returns the full journal for an instance in sequence order.
func (s *EventStore) Load(ctx context.Context, instanceID string) ([]event.InstanceEvent, error) {
	const q = `SELECT id, instance_id, seq, event_type, step_id, payload, recorded_at
		FROM instance_events WHERE instance_id = $1 ORDER BY seq ASC`
	rows, err := s.pool.Query(ctx, q, instanceID)
	if err != nil {
		return nil, fmt.Errorf("load journal %s: %w", instanceID, err)
	}
	defer rows.Close()

	var out []event.InstanceEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("load journal %s: %w", instanceID, err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// LoadStep returns the event journaled for one step, or nil when the step
// has no recorded outcome yet.
func (s *EventStore) LoadStep(ctx context.Context, instanceID, stepID string) (*event.InstanceEvent, error) {
	const q = `SELECT id, instance_id, seq, event_type, step_id, payload, recorded_at
		FROM instance_events WHERE instance_id = $1 AND step_id = $2`
	ev, err := scanEvent(s.pool.QueryRow(ctx, q, instanceID, stepID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load step %s %s: %w", instanceID, stepID, err)
	}
	return &ev, nil
}

// ListOpen returns instances whose journal has a started event but no
// finished event, oldest first. Resume walks this list after a restart.
func (s *EventStore) ListOpen(ctx context.Context) ([]string, error) {
	const q = `SELECT instance_id FROM instance_events
		GROUP BY instance_id
		HAVING COUNT(*) FILTER (WHERE event_type = $1) > 0
		   AND COUNT(*) FILTER (WHERE event_type = $2) = 0
		ORDER BY MIN(recorded_at) ASC`
	rows, err := s.pool.Query(ctx, q, event.TypeInstanceStarted, event.TypeInstanceFinished)
	if err != nil {
		return nil, fmt.Errorf("list open instances: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanEvent(row scannable) (event.InstanceEvent, error) {
	var ev event.InstanceEvent
	var payload []byte
	err := row.Scan(&ev.ID, &ev.InstanceID, &ev.Seq, &ev.Type, &ev.StepID, &payload, &ev.RecordedAt)
	if err != nil {
		return ev, err
	}
	ev.Payload = payload
	return ev, nil
}
