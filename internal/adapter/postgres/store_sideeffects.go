package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/curatd/curatd/internal/domain/instance"
	"github.com/curatd/curatd/internal/port/database"
)

// UpsertSideEffects stores the fan-out outcome for a content item. The row
// keys on content_item_id so a replayed fan-out step overwrites in place.
func (s *Store) UpsertSideEffects(ctx context.Context, contentItemID string, r *instance.SideEffectResult) error {
	failuresJSON, err := jsonbOrNull(r.PartialFailures)
	if err != nil {
		return fmt.Errorf("upsert side effects %s: %w", contentItemID, err)
	}
	const q = `INSERT INTO side_effects
		(content_item_id, search_indexed, graph_updated, external_url, partial_failures, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (content_item_id) DO UPDATE SET
		    search_indexed = EXCLUDED.search_indexed,
		    graph_updated = EXCLUDED.graph_updated,
		    external_url = EXCLUDED.external_url,
		    partial_failures = EXCLUDED.partial_failures,
		    updated_at = now()`
	_, err = s.pool.Exec(ctx, q,
		contentItemID, r.SearchIndexed, r.GraphUpdated, r.ExternalURL, failuresJSON)
	if err != nil {
		return fmt.Errorf("upsert side effects %s: %w", contentItemID, err)
	}
	return nil
}

// GetSideEffects returns the stored fan-out outcome for a content item.
func (s *Store) GetSideEffects(ctx context.Context, contentItemID string) (*instance.SideEffectResult, error) {
	const q = `SELECT search_indexed, graph_updated, external_url, partial_failures
		FROM side_effects WHERE content_item_id = $1`
	r := &instance.SideEffectResult{}
	var failuresJSON []byte
	err := s.pool.QueryRow(ctx, q, contentItemID).Scan(
		&r.SearchIndexed, &r.GraphUpdated, &r.ExternalURL, &failuresJSON)
	if err != nil {
		return nil, notFoundWrap(err, "get side effects %s", contentItemID)
	}
	if err := unmarshalInto(failuresJSON, &r.PartialFailures); err != nil {
		return nil, fmt.Errorf("side effects %s failures: %w", contentItemID, err)
	}
	return r, nil
}

// MarkSideRepaired flips one side to repaired. The failure history in
// partial_failures is kept; completeness is judged from the two flags.
func (s *Store) MarkSideRepaired(ctx context.Context, contentItemID string, side instance.Side, externalURL string) error {
	switch side {
	case instance.SideSearch:
		const q = `UPDATE side_effects SET
			search_indexed = TRUE,
			external_url = CASE WHEN $2 <> '' THEN $2 ELSE external_url END,
			updated_at = now()
			WHERE content_item_id = $1`
		tag, err := s.pool.Exec(ctx, q, contentItemID, externalURL)
		return execExpectOne(tag, err, "mark search repaired %s", contentItemID)
	case instance.SideGraph:
		const q = `UPDATE side_effects SET graph_updated = TRUE, updated_at = now()
			WHERE content_item_id = $1`
		tag, err := s.pool.Exec(ctx, q, contentItemID)
		return execExpectOne(tag, err, "mark graph repaired %s", contentItemID)
	default:
		return fmt.Errorf("mark side repaired %s: unknown side %q", contentItemID, side)
	}
}

// ListStalePartials returns side-effect rows that still have a failed side
// and have not been touched since olderThan. The janitor uses this to
// requeue repairs that fell through.
func (s *Store) ListStalePartials(ctx context.Context, olderThan time.Time, limit int) ([]database.PartialRecord, error) {
	const q = `SELECT content_item_id, search_indexed, graph_updated, external_url, partial_failures, updated_at
		FROM side_effects
		WHERE NOT (search_indexed AND graph_updated) AND updated_at < $1
		ORDER BY updated_at ASC LIMIT $2`
	rows, err := s.pool.Query(ctx, q, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale partials: %w", err)
	}
	defer rows.Close()

	var out []database.PartialRecord
	for rows.Next() {
		var rec database.PartialRecord
		var failuresJSON []byte
		if err := rows.Scan(&rec.ContentItemID, &rec.Result.SearchIndexed, &rec.Result.GraphUpdated,
			&rec.Result.ExternalURL, &failuresJSON, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalInto(failuresJSON, &rec.Result.PartialFailures); err != nil {
			return nil, fmt.Errorf("stale partial %s failures: %w", rec.ContentItemID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
