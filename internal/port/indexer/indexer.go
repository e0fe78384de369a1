// Package indexer defines the search and graph indexing ports (interfaces).
// Both operations are idempotent keyed by content item ID so repair can
// safely re-invoke a side.
package indexer

import "context"

// Document is the indexable projection of an approved content item.
type Document struct {
	ContentItemID string   `json:"content_item_id"`
	CollectionID  string   `json:"collection_id"`
	Title         string   `json:"title"`
	PayloadRef    string   `json:"payload_ref"`
	Score         float64  `json:"score"`
	Topics        []string `json:"topics,omitempty"`
	Entities      []string `json:"entities,omitempty"`
}

// IndexResult is the search store's acknowledgment.
type IndexResult struct {
	Success     bool   `json:"success"`
	ExternalURL string `json:"external_url,omitempty"`
}

// UpdateResult is the graph store's acknowledgment.
type UpdateResult struct {
	Success bool `json:"success"`
}

// SearchIndexer writes the document into the search store.
type SearchIndexer interface {
	Index(ctx context.Context, doc Document) (*IndexResult, error)
}

// GraphIndexer links the document's topics and entities into the graph
// store.
type GraphIndexer interface {
	Update(ctx context.Context, doc Document) (*UpdateResult, error)
}
