package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Directory implements directory.ReviewerDirectory over the reviewer_pools
// table. PoolFor ordering is stable (insertion order, reviewer ID as
// tiebreak) so the rotation cursor stays meaningful between calls.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory creates a reviewer directory backed by the given pool.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// PoolFor returns the active reviewers for a collection in stable order.
func (d *Directory) PoolFor(ctx context.Context, collectionID string) ([]string, error) {
	const q = `SELECT reviewer_id FROM reviewer_pools
		WHERE collection_id = $1 AND active
		ORDER BY added_at ASC, reviewer_id ASC`
	rows, err := d.pool.Query(ctx, q, collectionID)
	if err != nil {
		return nil, fmt.Errorf("pool for %s: %w", collectionID, err)
	}
	defer rows.Close()

	var reviewers []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		reviewers = append(reviewers, id)
	}
	return reviewers, rows.Err()
}

// AddReviewer enrolls a reviewer in a collection's pool, reactivating a
// previously removed membership.
func (d *Directory) AddReviewer(ctx context.Context, collectionID, reviewerID string) error {
	const q = `INSERT INTO reviewer_pools (collection_id, reviewer_id)
		VALUES ($1, $2)
		ON CONFLICT (collection_id, reviewer_id) DO UPDATE SET active = TRUE`
	if _, err := d.pool.Exec(ctx, q, collectionID, reviewerID); err != nil {
		return fmt.Errorf("add reviewer %s to %s: %w", reviewerID, collectionID, err)
	}
	return nil
}

// RemoveReviewer deactivates a pool membership. The row is kept so
// historical pool snapshots stay resolvable.
func (d *Directory) RemoveReviewer(ctx context.Context, collectionID, reviewerID string) error {
	const q = `UPDATE reviewer_pools SET active = FALSE
		WHERE collection_id = $1 AND reviewer_id = $2`
	tag, err := d.pool.Exec(ctx, q, collectionID, reviewerID)
	return execExpectOne(tag, err, "remove reviewer %s from %s", reviewerID, collectionID)
}
