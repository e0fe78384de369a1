package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/curatd/curatd/internal/domain"
	"github.com/curatd/curatd/internal/domain/assignment"
	"github.com/curatd/curatd/internal/domain/policy"
	"github.com/curatd/curatd/internal/port/directory"
)

// casRetries bounds rescans after a lost cursor race before the attempt is
// handed back to the retry policy.
const casRetries = 8

// Assigner runs the reviewer assignment activity: a durable round-robin over
// the collection's ordered pool, skipping the submitter, burned reviewers and
// anyone at the concurrent-assignment cap.
type Assigner struct {
	store     AssignmentStore
	dir       directory.ReviewerDirectory
	maxActive int
}

// NewAssigner creates the assign activity. maxActive caps concurrent open
// assignments per reviewer; zero disables the cap.
func NewAssigner(store AssignmentStore, dir directory.ReviewerDirectory, maxActive int) *Assigner {
	return &Assigner{store: store, dir: dir, maxActive: maxActive}
}

// Handle selects and persists the reviewer for one round. The upsert is
// idempotent on (content item, round), so a retried attempt that already
// landed rewrites the same row.
func (a *Assigner) Handle(ctx context.Context, input []byte) ([]byte, error) {
	var in AssignInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, policy.Permanent(fmt.Errorf("decode assign input: %w", err))
	}

	pool, err := a.dir.PoolFor(ctx, in.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("load reviewer pool: %w", err)
	}

	out := AssignOutput{Round: in.Round, PoolSize: len(pool)}

	var reviewerID string
	if len(pool) > 0 {
		reviewerID, err = a.selectReviewer(ctx, in, pool)
		if err != nil {
			return nil, err
		}
	}
	// The submitter never reviews their own item, fallback included.
	if reviewerID == "" && in.FallbackReviewerID != in.SubmitterID {
		reviewerID = in.FallbackReviewerID
	}
	if reviewerID == "" {
		return json.Marshal(out)
	}

	asg := &assignment.ReviewAssignment{
		ContentItemID: in.ContentItemID,
		Round:         in.Round,
		ReviewerID:    reviewerID,
		AssignedAt:    time.Now().UTC(),
		PoolSnapshot:  pool,
	}
	if err := a.store.UpsertAssignment(ctx, asg); err != nil {
		return nil, fmt.Errorf("persist assignment: %w", err)
	}

	out.Eligible = true
	out.ReviewerID = reviewerID
	out.AssignedAt = asg.AssignedAt
	return json.Marshal(out)
}

// selectReviewer scans the pool from the rotation cursor and advances it past
// the pick with a compare-and-swap. A lost swap means another assignment for
// this collection moved the cursor first; reload and rescan.
func (a *Assigner) selectReviewer(ctx context.Context, in AssignInput, pool []string) (string, error) {
	for try := 0; try < casRetries; try++ {
		cur, err := a.store.GetCursor(ctx, in.CollectionID)
		if errors.Is(err, domain.ErrNotFound) {
			if err := a.store.InitCursor(ctx, in.CollectionID); err != nil {
				return "", fmt.Errorf("init cursor: %w", err)
			}
			continue
		}
		if err != nil {
			return "", fmt.Errorf("load cursor: %w", err)
		}

		pos := cur.Position % len(pool)
		picked := -1
		for k := range pool {
			idx := (pos + k) % len(pool)
			ok, err := a.eligible(ctx, in, pool[idx])
			if err != nil {
				return "", err
			}
			if ok {
				picked = idx
				break
			}
		}
		if picked < 0 {
			return "", nil
		}

		swapped, err := a.store.AdvanceCursor(ctx, in.CollectionID, cur.Position, (picked+1)%len(pool))
		if err != nil {
			return "", fmt.Errorf("advance cursor: %w", err)
		}
		if swapped {
			return pool[picked], nil
		}
	}
	return "", errors.New("rotation cursor contention")
}

func (a *Assigner) eligible(ctx context.Context, in AssignInput, reviewerID string) (bool, error) {
	if reviewerID == in.SubmitterID {
		return false, nil
	}
	if slices.Contains(in.Exclude, reviewerID) {
		return false, nil
	}
	if a.maxActive > 0 {
		n, err := a.store.CountActiveAssignments(ctx, reviewerID)
		if err != nil {
			return false, fmt.Errorf("count active assignments for %s: %w", reviewerID, err)
		}
		if n >= a.maxActive {
			return false, nil
		}
	}
	return true, nil
}
