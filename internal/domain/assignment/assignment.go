// Package assignment defines the ReviewAssignment domain entity.
package assignment

import (
	"errors"
	"time"
)

// ErrNoEligibleReviewer indicates the reviewer pool was exhausted: every
// member was either the submitter or at the concurrent-assignment cap. The
// orchestrator maps it to the configured fallback, it is never a crash.
var ErrNoEligibleReviewer = errors.New("no eligible reviewer in pool")

// ReviewAssignment links a content item to the controller responsible for its
// escalated review. Reassignment after a timeout produces a new round; the
// pair (ContentItemID, Round) is the idempotency key.
type ReviewAssignment struct {
	ContentItemID string    `json:"content_item_id"`
	Round         int       `json:"round"`
	ReviewerID    string    `json:"reviewer_id"`
	AssignedAt    time.Time `json:"assigned_at"`
	PoolSnapshot  []string  `json:"pool_snapshot,omitempty"`
}

// Cursor is the durable per-collection rotation position. Position indexes
// into the ordered reviewer pool; updates go through a compare-and-swap so
// concurrent assignments for one collection never double-advance it.
type Cursor struct {
	CollectionID string    `json:"collection_id"`
	Position     int       `json:"position"`
	UpdatedAt    time.Time `json:"updated_at"`
}
