package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/curatd/curatd/internal/domain"
	"github.com/curatd/curatd/internal/domain/content"
	"github.com/curatd/curatd/internal/domain/decision"
	"github.com/curatd/curatd/internal/domain/instance"
	"github.com/curatd/curatd/internal/port/workflow"
)

// decideByContent is the content-keyed variant of decide, for callers
// that only hold the item ID.
func (e *testEnv) decideByContent(t *testing.T, contentItemID string, sig decision.ReviewSignal) error {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := e.svc.DecideByContent(context.Background(), contentItemID, &sig)
		if errors.Is(err, workflow.ErrNoPendingReview) && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		return err
	}
}

func TestDecideByContentResolvesInstance(t *testing.T) {
	e := newTestEnv(t, fastReview())
	e.scorer.score = 6.0
	e.pools.pools["coll-1"] = []string{"reviewer-a", "reviewer-b"}

	res := e.submit(t, "user-1", "coll-1")
	e.waitState(t, res.InstanceID, instance.StateAwaitingSignal)

	asg, err := e.store.LatestAssignment(context.Background(), res.ContentItemID)
	if err != nil {
		t.Fatalf("LatestAssignment: %v", err)
	}
	if err := e.decideByContent(t, res.ContentItemID, decision.ReviewSignal{
		Approved:   true,
		ReviewerID: asg.ReviewerID,
		Notes:      "good fit for the collection",
	}); err != nil {
		t.Fatalf("DecideByContent: %v", err)
	}
	e.waitFinished(t, res.InstanceID)

	inst := e.instanceState(t, res.InstanceID)
	if inst.State != instance.StateCompleted || inst.Decision.Kind != decision.KindHumanApprove {
		t.Errorf("state = %s decision = %+v", inst.State, inst.Decision)
	}

	err = e.svc.DecideByContent(context.Background(), "no-such-item", &decision.ReviewSignal{
		Approved: true, ReviewerID: "reviewer-a",
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown content err = %v, want ErrNotFound", err)
	}
}

func TestDecideValidatesSignal(t *testing.T) {
	e := newTestEnv(t, fastReview())

	err := e.svc.Decide(context.Background(), "inst-1", &decision.ReviewSignal{Approved: true})
	if !errors.Is(err, decision.ErrReviewerRequired) {
		t.Fatalf("err = %v, want ErrReviewerRequired", err)
	}
}

func TestPendingReviewsTrackAssignmentLifecycle(t *testing.T) {
	e := newTestEnv(t, fastReview())
	e.scorer.score = 6.0
	e.pools.pools["coll-1"] = []string{"reviewer-a", "reviewer-b"}

	res := e.submit(t, "user-1", "coll-1")
	e.waitState(t, res.InstanceID, instance.StateAwaitingSignal)

	asg, err := e.store.LatestAssignment(context.Background(), res.ContentItemID)
	if err != nil {
		t.Fatalf("LatestAssignment: %v", err)
	}

	pending, err := e.svc.Pending(context.Background(), asg.ReviewerID, 0)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ContentItemID != res.ContentItemID || pending[0].Round != 1 {
		t.Fatalf("pending = %+v, want the round 1 assignment", pending)
	}

	others, err := e.svc.Pending(context.Background(), "reviewer-z", 0)
	if err != nil || len(others) != 0 {
		t.Errorf("pending for unassigned reviewer = %+v (%v), want none", others, err)
	}

	if err := e.decide(t, res.InstanceID, decision.ReviewSignal{
		Approved:   false,
		ReviewerID: asg.ReviewerID,
		Notes:      "does not meet the bar",
	}); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	e.waitFinished(t, res.InstanceID)

	pending, err = e.svc.Pending(context.Background(), asg.ReviewerID, 0)
	if err != nil || len(pending) != 0 {
		t.Errorf("pending after decision = %+v (%v), want none", pending, err)
	}
}

func TestSetPolicyAffectsNewInstances(t *testing.T) {
	e := newTestEnv(t, fastReview())
	e.scorer.score = 8.0

	first := e.submit(t, "user-1", "coll-1")
	e.waitFinished(t, first.InstanceID)
	if inst := e.instanceState(t, first.InstanceID); inst.Decision == nil || inst.Decision.Kind != decision.KindAutoApprove {
		t.Fatalf("decision = %+v, want auto_approve", inst.Decision)
	}

	// Raise the bar; the same score must now escalate. The empty pool and
	// the reject fallback make the second run terminal without a reviewer.
	stricter := fastReview()
	stricter.ReviewBelow = 9.0
	stricter.ApproveAtOrAbove = 9.0
	e.svc.SetPolicy(stricter)

	if got := e.svc.Policy(); got.ApproveAtOrAbove != 9.0 {
		t.Fatalf("Policy().ApproveAtOrAbove = %v, want 9.0", got.ApproveAtOrAbove)
	}

	second := e.submit(t, "user-1", "coll-1")
	e.waitFinished(t, second.InstanceID)
	if inst := e.instanceState(t, second.InstanceID); inst.State != instance.StateRejected {
		t.Errorf("state = %s, want %s", inst.State, instance.StateRejected)
	}
}

func TestAttentionQueueListsParkedInstances(t *testing.T) {
	e := newTestEnv(t, fastReview())
	e.scorer.score = 9.5
	e.search.failAll = true
	e.graph.failAll = true

	res := e.submit(t, "user-1", "coll-1")
	e.waitFinished(t, res.InstanceID)

	parked, err := e.svc.Attention(context.Background(), 0)
	if err != nil {
		t.Fatalf("Attention: %v", err)
	}
	if len(parked) != 1 || parked[0].ID != res.InstanceID || parked[0].State != instance.StateOperatorAttention {
		t.Fatalf("attention queue = %+v, want the parked instance", parked)
	}
}

func TestContentReflectsReviewLifecycle(t *testing.T) {
	e := newTestEnv(t, fastReview())
	e.scorer.score = 6.0
	e.pools.pools["coll-1"] = []string{"reviewer-a"}

	res := e.submit(t, "user-1", "coll-1")
	e.waitState(t, res.InstanceID, instance.StateAwaitingSignal)

	item, err := e.svc.Content(context.Background(), res.ContentItemID)
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if item.Status != content.StatusInReview {
		t.Errorf("status during escalation = %s, want %s", item.Status, content.StatusInReview)
	}

	if err := e.decide(t, res.InstanceID, decision.ReviewSignal{
		Approved: true, ReviewerID: "reviewer-a",
	}); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	e.waitFinished(t, res.InstanceID)

	item, err = e.svc.Content(context.Background(), res.ContentItemID)
	if err != nil || item.Status != content.StatusApproved {
		t.Errorf("status after approval = %+v (%v), want approved", item, err)
	}

	if _, err := e.svc.Content(context.Background(), "no-such-item"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown item err = %v, want ErrNotFound", err)
	}
}
