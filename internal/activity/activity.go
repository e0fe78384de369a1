// Package activity implements the workflow activity handlers: relevance
// scoring, reviewer assignment, the two indexing sides and notification
// delivery. Handler inputs and outputs travel as JSON so the engine can
// journal and replay them byte-for-byte.
package activity

import (
	"context"
	"time"

	"github.com/curatd/curatd/internal/domain/assignment"
	"github.com/curatd/curatd/internal/domain/policy"
	"github.com/curatd/curatd/internal/port/directory"
	"github.com/curatd/curatd/internal/port/indexer"
	"github.com/curatd/curatd/internal/port/notifier"
	"github.com/curatd/curatd/internal/port/scorer"
	"github.com/curatd/curatd/internal/worker"
)

// ScoreInput asks the scorer to assess one content item.
type ScoreInput struct {
	ContentItemID string `json:"content_item_id"`
	CollectionID  string `json:"collection_id"`
	Title         string `json:"title"`
	Criteria      string `json:"criteria,omitempty"`
	PayloadRef    string `json:"payload_ref"`
}

// ScoreOutput is the journaled assessment.
type ScoreOutput struct {
	Score      float64   `json:"score"`
	Topics     []string  `json:"topics,omitempty"`
	Entities   []string  `json:"entities,omitempty"`
	Rationale  string    `json:"rationale,omitempty"`
	AssessedAt time.Time `json:"assessed_at"`
}

// AssignInput asks for the next reviewer in the collection's rotation.
// Exclude lists reviewers burned in earlier rounds. FallbackReviewerID, when
// set, receives the assignment if the pool yields nobody; it is how the
// controller fallback still gets a pending-review row.
type AssignInput struct {
	ContentItemID      string   `json:"content_item_id"`
	CollectionID       string   `json:"collection_id"`
	SubmitterID        string   `json:"submitter_id"`
	Round              int      `json:"round"`
	Exclude            []string `json:"exclude,omitempty"`
	FallbackReviewerID string   `json:"fallback_reviewer_id,omitempty"`
}

// AssignOutput is the journaled assignment result. An exhausted pool is a
// successful outcome with Eligible false, not an activity failure: the
// orchestrator maps it to the configured fallback.
type AssignOutput struct {
	Eligible   bool      `json:"eligible"`
	ReviewerID string    `json:"reviewer_id,omitempty"`
	Round      int       `json:"round"`
	PoolSize   int       `json:"pool_size"`
	AssignedAt time.Time `json:"assigned_at,omitempty"`
}

// IndexInput carries the document for either indexing side.
type IndexInput struct {
	Doc indexer.Document `json:"doc"`
}

// IndexSearchOutput is the search side's journaled acknowledgment.
type IndexSearchOutput struct {
	Success     bool   `json:"success"`
	ExternalURL string `json:"external_url,omitempty"`
}

// IndexGraphOutput is the graph side's journaled acknowledgment.
type IndexGraphOutput struct {
	Success bool `json:"success"`
}

// NotifyInput carries one stakeholder notification.
type NotifyInput struct {
	Event       string `json:"event"`
	RecipientID string `json:"recipient_id"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	Level       string `json:"level"`
}

// NotifyOutput records how many dispatchers accepted the notification.
type NotifyOutput struct {
	Dispatched int       `json:"dispatched"`
	At         time.Time `json:"at"`
}

// AssignmentStore is the slice of the database store the assigner needs.
type AssignmentStore interface {
	UpsertAssignment(ctx context.Context, a *assignment.ReviewAssignment) error
	CountActiveAssignments(ctx context.Context, reviewerID string) (int, error)
	GetCursor(ctx context.Context, collectionID string) (*assignment.Cursor, error)
	InitCursor(ctx context.Context, collectionID string) error
	AdvanceCursor(ctx context.Context, collectionID string, from, to int) (bool, error)
}

// Notifier fans a notification out to every dispatcher enabled for the
// event and reports how many accepted it.
type Notifier interface {
	Dispatch(ctx context.Context, event string, n notifier.Notification) int
}

// Deps collects the collaborators the activity handlers need.
type Deps struct {
	Scorer               scorer.RelevanceScorer
	Store                AssignmentStore
	Directory            directory.ReviewerDirectory
	Search               indexer.SearchIndexer
	Graph                indexer.GraphIndexer
	Notifier             Notifier
	MaxActiveAssignments int
}

// Register wires every activity handler into the executor registry.
func Register(exec *worker.Executor, d Deps) {
	exec.Register(policy.TaskScore, NewScorer(d.Scorer).Handle)
	exec.Register(policy.TaskAssign, NewAssigner(d.Store, d.Directory, d.MaxActiveAssignments).Handle)
	exec.Register(policy.TaskIndexSearch, NewSearchIndex(d.Search).Handle)
	exec.Register(policy.TaskIndexGraph, NewGraphIndex(d.Graph).Handle)
	exec.Register(policy.TaskNotify, NewNotify(d.Notifier).Handle)
}
