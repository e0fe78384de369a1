package email

import (
	"context"
	"errors"
	"testing"

	"github.com/curatd/curatd/internal/port/notifier"
)

var _ notifier.Dispatcher = (*Dispatcher)(nil)

func TestDispatcherName(t *testing.T) {
	d := NewDispatcher(SMTPConfig{})
	if d.Name() != "email" {
		t.Fatalf("expected 'email', got %q", d.Name())
	}
}

func TestSendNotConfigured(t *testing.T) {
	d := NewDispatcher(SMTPConfig{})
	err := d.Send(context.Background(), notifier.Notification{RecipientID: "reviewer-ann"})
	if !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestRecipientAddress(t *testing.T) {
	d := NewDispatcher(SMTPConfig{Domain: "reviews.example.com"})

	if got := d.recipientAddress("reviewer-ann"); got != "reviewer-ann@reviews.example.com" {
		t.Errorf("bare ID resolved to %q", got)
	}
	if got := d.recipientAddress("ann@elsewhere.org"); got != "ann@elsewhere.org" {
		t.Errorf("full address rewritten to %q", got)
	}
}
