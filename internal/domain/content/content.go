// Package content defines the ContentItem domain entity.
package content

import (
	"errors"
	"time"
)

// Status represents the moderation state of a content item.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusInReview  Status = "in_review"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusAttention Status = "needs_attention"
)

// ContentItem represents a single submitted piece of content awaiting a
// moderation outcome. Fields other than Status and UpdatedAt are immutable
// once the review workflow has started.
type ContentItem struct {
	ID           string    `json:"id"`
	SubmitterID  string    `json:"submitter_id"`
	CollectionID string    `json:"collection_id"`
	Title        string    `json:"title"`
	Criteria     string    `json:"criteria"`
	PayloadRef   string    `json:"payload_ref"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SubmitRequest holds the fields needed to submit content for review.
type SubmitRequest struct {
	SubmitterID  string `json:"submitter_id"`
	CollectionID string `json:"collection_id"`
	Title        string `json:"title"`
	Criteria     string `json:"criteria,omitempty"`
	PayloadRef   string `json:"payload_ref"`
}

var (
	ErrSubmitterRequired  = errors.New("submitter_id is required")
	ErrCollectionRequired = errors.New("collection_id is required")
	ErrPayloadRequired    = errors.New("payload_ref is required")
)

// Validate checks the submit request for correctness.
func (r *SubmitRequest) Validate() error {
	if r.SubmitterID == "" {
		return ErrSubmitterRequired
	}
	if r.CollectionID == "" {
		return ErrCollectionRequired
	}
	if r.PayloadRef == "" {
		return ErrPayloadRequired
	}
	return nil
}
