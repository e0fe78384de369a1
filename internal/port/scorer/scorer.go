// Package scorer defines the relevance scoring port (interface).
package scorer

import (
	"context"
	"time"
)

// Request carries the content to be assessed against its collection's
// criteria.
type Request struct {
	ContentItemID string `json:"content_item_id"`
	CollectionID  string `json:"collection_id"`
	Title         string `json:"title"`
	Criteria      string `json:"criteria,omitempty"`
	PayloadRef    string `json:"payload_ref"`
}

// Assessment is the scoring verdict. Score is on the configured threshold
// scale; Topics and Entities feed the indexing fan-out.
type Assessment struct {
	Score      float64   `json:"score"`
	Topics     []string  `json:"topics,omitempty"`
	Entities   []string  `json:"entities,omitempty"`
	Rationale  string    `json:"rationale,omitempty"`
	AssessedAt time.Time `json:"assessed_at"`
}

// RelevanceScorer is the port interface for content assessment. How the
// score is produced (model, rubric, heuristics) is the provider's business.
type RelevanceScorer interface {
	Assess(ctx context.Context, req Request) (*Assessment, error)
}
