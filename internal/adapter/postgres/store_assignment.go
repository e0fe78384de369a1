package postgres

import (
	"context"
	"fmt"

	"github.com/curatd/curatd/internal/domain/assignment"
)

// UpsertAssignment records a round's reviewer assignment. Writes are
// idempotent on (content_item_id, round) so a replayed assign step simply
// reasserts the same row.
func (s *Store) UpsertAssignment(ctx context.Context, a *assignment.ReviewAssignment) error {
	const q = `INSERT INTO review_assignments
		(content_item_id, round, reviewer_id, assigned_at, pool_snapshot)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (content_item_id, round) DO UPDATE SET
		    reviewer_id = EXCLUDED.reviewer_id,
		    assigned_at = EXCLUDED.assigned_at,
		    pool_snapshot = EXCLUDED.pool_snapshot`
	_, err := s.pool.Exec(ctx, q,
		a.ContentItemID, a.Round, a.ReviewerID, a.AssignedAt, pgTextArray(a.PoolSnapshot))
	if err != nil {
		return fmt.Errorf("upsert assignment %s round %d: %w", a.ContentItemID, a.Round, err)
	}
	return nil
}

// LatestAssignment returns the highest-round assignment for a content item.
func (s *Store) LatestAssignment(ctx context.Context, contentItemID string) (*assignment.ReviewAssignment, error) {
	const q = `SELECT content_item_id, round, reviewer_id, assigned_at, pool_snapshot
		FROM review_assignments WHERE content_item_id = $1
		ORDER BY round DESC LIMIT 1`
	a := &assignment.ReviewAssignment{}
	err := s.pool.QueryRow(ctx, q, contentItemID).Scan(
		&a.ContentItemID, &a.Round, &a.ReviewerID, &a.AssignedAt, &a.PoolSnapshot)
	if err != nil {
		return nil, notFoundWrap(err, "latest assignment %s", contentItemID)
	}
	return a, nil
}

// CountActiveAssignments counts the reviews currently waiting on a reviewer.
// Only the latest round of an item still in review counts toward capacity;
// rounds the reviewer was rotated away from do not.
func (s *Store) CountActiveAssignments(ctx context.Context, reviewerID string) (int, error) {
	const q = `SELECT COUNT(*)
		FROM review_assignments a
		JOIN content_items c ON c.id = a.content_item_id
		WHERE a.reviewer_id = $1
		  AND c.status = 'in_review'
		  AND a.round = (SELECT MAX(round) FROM review_assignments b WHERE b.content_item_id = a.content_item_id)`
	var n int
	if err := s.pool.QueryRow(ctx, q, reviewerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active assignments %s: %w", reviewerID, err)
	}
	return n, nil
}

// ListPendingReviews returns the open assignments for a reviewer, oldest first.
func (s *Store) ListPendingReviews(ctx context.Context, reviewerID string, limit int) ([]assignment.ReviewAssignment, error) {
	const q = `SELECT a.content_item_id, a.round, a.reviewer_id, a.assigned_at, a.pool_snapshot
		FROM review_assignments a
		JOIN content_items c ON c.id = a.content_item_id
		WHERE a.reviewer_id = $1
		  AND c.status = 'in_review'
		  AND a.round = (SELECT MAX(round) FROM review_assignments b WHERE b.content_item_id = a.content_item_id)
		ORDER BY a.assigned_at ASC LIMIT $2`
	rows, err := s.pool.Query(ctx, q, reviewerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending reviews %s: %w", reviewerID, err)
	}
	defer rows.Close()

	var out []assignment.ReviewAssignment
	for rows.Next() {
		var a assignment.ReviewAssignment
		if err := rows.Scan(&a.ContentItemID, &a.Round, &a.ReviewerID, &a.AssignedAt, &a.PoolSnapshot); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Rotation cursors ---

// GetCursor returns the round-robin cursor for a collection.
func (s *Store) GetCursor(ctx context.Context, collectionID string) (*assignment.Cursor, error) {
	const q = `SELECT collection_id, position, updated_at
		FROM assignment_cursors WHERE collection_id = $1`
	c := &assignment.Cursor{}
	err := s.pool.QueryRow(ctx, q, collectionID).Scan(&c.CollectionID, &c.Position, &c.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get cursor %s", collectionID)
	}
	return c, nil
}

// InitCursor creates a zero cursor if the collection has none yet.
func (s *Store) InitCursor(ctx context.Context, collectionID string) error {
	const q = `INSERT INTO assignment_cursors (collection_id, position)
		VALUES ($1, 0)
		ON CONFLICT (collection_id) DO NOTHING`
	if _, err := s.pool.Exec(ctx, q, collectionID); err != nil {
		return fmt.Errorf("init cursor %s: %w", collectionID, err)
	}
	return nil
}

// AdvanceCursor moves the cursor compare-and-swap style. It reports false
// when another writer advanced the cursor first. from == to still matches
// one row, which covers a pool of size one wrapping onto itself.
func (s *Store) AdvanceCursor(ctx context.Context, collectionID string, from, to int) (bool, error) {
	const q = `UPDATE assignment_cursors SET position = $3, updated_at = now()
		WHERE collection_id = $1 AND position = $2`
	tag, err := s.pool.Exec(ctx, q, collectionID, from, to)
	if err != nil {
		return false, fmt.Errorf("advance cursor %s: %w", collectionID, err)
	}
	return tag.RowsAffected() == 1, nil
}
