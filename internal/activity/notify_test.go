package activity

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/curatd/curatd/internal/port/notifier"
)

type fakeNotifyService struct {
	events []string
	last   notifier.Notification
	count  int
}

func (f *fakeNotifyService) Dispatch(ctx context.Context, event string, n notifier.Notification) int {
	f.events = append(f.events, event)
	f.last = n
	return f.count
}

func TestNotifyDispatches(t *testing.T) {
	svc := &fakeNotifyService{count: 2}
	h := NewNotify(svc)

	raw, err := json.Marshal(NotifyInput{
		Event:       "review.decided",
		RecipientID: "user-1",
		Subject:     "Your submission was approved",
		Body:        "Score 9.2 cleared the approval threshold.",
		Level:       "success",
	})
	if err != nil {
		t.Fatal(err)
	}

	out, err := h.Handle(context.Background(), raw)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	var dec NotifyOutput
	if err := json.Unmarshal(out, &dec); err != nil {
		t.Fatal(err)
	}
	if dec.Dispatched != 2 {
		t.Errorf("dispatched = %d, want 2", dec.Dispatched)
	}
	if dec.At.IsZero() {
		t.Error("expected a stamped dispatch time")
	}
	if len(svc.events) != 1 || svc.events[0] != "review.decided" {
		t.Errorf("events = %v, want [review.decided]", svc.events)
	}
	if svc.last.RecipientID != "user-1" || svc.last.Source != "review.decided" {
		t.Errorf("unexpected notification %+v", svc.last)
	}
}
