package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/curatd/curatd/internal/port/notifier"
)

// Compile-time interface check.
var _ notifier.Dispatcher = (*Dispatcher)(nil)

func TestDispatcherName(t *testing.T) {
	d := NewDispatcher("")
	if d.Name() != "slack" {
		t.Fatalf("expected 'slack', got %q", d.Name())
	}
}

func TestSendNotConfigured(t *testing.T) {
	d := NewDispatcher("")
	err := d.Send(context.Background(), notifier.Notification{Subject: "test"})
	if !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSendSuccess(t *testing.T) {
	var got slackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL)
	err := d.Send(context.Background(), notifier.Notification{
		RecipientID: "reviewer-ann",
		Subject:     "Review requested",
		Body:        "A new content item is waiting for your decision.",
		Level:       "info",
		Source:      "review.requested",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(got.Blocks))
	}
	if !strings.Contains(got.Blocks[0].Text.Text, "Review requested") {
		t.Errorf("header = %q", got.Blocks[0].Text.Text)
	}
	if !strings.Contains(got.Blocks[2].Text.Text, "reviewer-ann") {
		t.Errorf("recipient context = %q", got.Blocks[2].Text.Text)
	}
}

func TestSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL)
	err := d.Send(context.Background(), notifier.Notification{
		Subject: "Test",
		Body:    "Test message",
		Level:   "info",
	})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}
