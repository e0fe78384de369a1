package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/curatd/curatd/internal/domain/policy"
	"github.com/curatd/curatd/internal/port/indexer"
)

// SearchIndex runs the search side of the indexing fan-out.
type SearchIndex struct {
	idx indexer.SearchIndexer
}

// NewSearchIndex creates the search indexing activity.
func NewSearchIndex(idx indexer.SearchIndexer) *SearchIndex {
	return &SearchIndex{idx: idx}
}

// Handle writes the document into the search store. An unacknowledged write
// stays transient; the retry policy decides how often to insist.
func (s *SearchIndex) Handle(ctx context.Context, input []byte) ([]byte, error) {
	var in IndexInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, policy.Permanent(fmt.Errorf("decode index input: %w", err))
	}

	res, err := s.idx.Index(ctx, in.Doc)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, errors.New("search store did not acknowledge the document")
	}

	return json.Marshal(IndexSearchOutput{Success: true, ExternalURL: res.ExternalURL})
}

// GraphIndex runs the graph side of the indexing fan-out.
type GraphIndex struct {
	idx indexer.GraphIndexer
}

// NewGraphIndex creates the graph indexing activity.
func NewGraphIndex(idx indexer.GraphIndexer) *GraphIndex {
	return &GraphIndex{idx: idx}
}

// Handle links the document's topics and entities into the graph store.
func (g *GraphIndex) Handle(ctx context.Context, input []byte) ([]byte, error) {
	var in IndexInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, policy.Permanent(fmt.Errorf("decode index input: %w", err))
	}

	res, err := g.idx.Update(ctx, in.Doc)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, errors.New("graph store did not acknowledge the update")
	}

	return json.Marshal(IndexGraphOutput{Success: true})
}
