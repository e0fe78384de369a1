package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/curatd/curatd/internal/domain/policy"
	"github.com/curatd/curatd/internal/port/scorer"
)

// Scorer runs the relevance assessment activity.
type Scorer struct {
	scorer scorer.RelevanceScorer
}

// NewScorer creates the score activity over the scoring port.
func NewScorer(s scorer.RelevanceScorer) *Scorer {
	return &Scorer{scorer: s}
}

// Handle assesses one content item. A score outside the 0..10 scale is a
// permanent failure: retrying a malformed verdict cannot fix it.
func (s *Scorer) Handle(ctx context.Context, input []byte) ([]byte, error) {
	var in ScoreInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, policy.Permanent(fmt.Errorf("decode score input: %w", err))
	}

	a, err := s.scorer.Assess(ctx, scorer.Request{
		ContentItemID: in.ContentItemID,
		CollectionID:  in.CollectionID,
		Title:         in.Title,
		Criteria:      in.Criteria,
		PayloadRef:    in.PayloadRef,
	})
	if err != nil {
		return nil, err
	}
	if a.Score < 0 || a.Score > 10 {
		return nil, policy.Permanent(fmt.Errorf("score %.2f outside 0..10", a.Score))
	}

	out := ScoreOutput{
		Score:      a.Score,
		Topics:     a.Topics,
		Entities:   a.Entities,
		Rationale:  a.Rationale,
		AssessedAt: a.AssessedAt,
	}
	if out.AssessedAt.IsZero() {
		out.AssessedAt = time.Now().UTC()
	}
	return json.Marshal(out)
}
