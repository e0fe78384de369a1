package activity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/curatd/curatd/internal/domain/policy"
	"github.com/curatd/curatd/internal/port/scorer"
)

type fakeScorer struct {
	assessment *scorer.Assessment
	err        error
	lastReq    scorer.Request
}

func (f *fakeScorer) Assess(ctx context.Context, req scorer.Request) (*scorer.Assessment, error) {
	f.lastReq = req
	return f.assessment, f.err
}

func scoreInput(t *testing.T) []byte {
	t.Helper()
	raw, err := json.Marshal(ScoreInput{
		ContentItemID: "item-1",
		CollectionID:  "coll-1",
		Title:         "Go 1.24 release notes",
		Criteria:      "language tooling",
		PayloadRef:    "blob://item-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestScoreReturnsAssessment(t *testing.T) {
	fs := &fakeScorer{assessment: &scorer.Assessment{
		Score:     9.2,
		Topics:    []string{"golang"},
		Entities:  []string{"Go"},
		Rationale: "on topic",
	}}
	s := NewScorer(fs)

	out, err := s.Handle(context.Background(), scoreInput(t))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	var dec ScoreOutput
	if err := json.Unmarshal(out, &dec); err != nil {
		t.Fatal(err)
	}
	if dec.Score != 9.2 {
		t.Errorf("score = %v, want 9.2", dec.Score)
	}
	if dec.AssessedAt.IsZero() {
		t.Error("expected a stamped assessment time")
	}
	if fs.lastReq.ContentItemID != "item-1" || fs.lastReq.Criteria != "language tooling" {
		t.Errorf("unexpected scorer request %+v", fs.lastReq)
	}
}

func TestScoreOutOfRangeIsPermanent(t *testing.T) {
	for _, bad := range []float64{-0.5, 10.5} {
		s := NewScorer(&fakeScorer{assessment: &scorer.Assessment{Score: bad}})
		_, err := s.Handle(context.Background(), scoreInput(t))
		if err == nil {
			t.Fatalf("score %v: expected error", bad)
		}
		if !policy.IsPermanent(err) {
			t.Errorf("score %v: error should be permanent, got %v", bad, err)
		}
	}
}

func TestScoreProviderErrorIsTransient(t *testing.T) {
	s := NewScorer(&fakeScorer{err: errors.New("upstream 503")})
	_, err := s.Handle(context.Background(), scoreInput(t))
	if err == nil {
		t.Fatal("expected error")
	}
	if policy.IsPermanent(err) {
		t.Errorf("provider failures must stay retryable, got permanent: %v", err)
	}
}

func TestScoreBadInputIsPermanent(t *testing.T) {
	s := NewScorer(&fakeScorer{})
	_, err := s.Handle(context.Background(), []byte("{not json"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !policy.IsPermanent(err) {
		t.Errorf("malformed input should not be retried, got %v", err)
	}
}
