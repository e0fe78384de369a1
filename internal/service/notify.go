package service

import (
	"context"
	"log/slog"

	"github.com/curatd/curatd/internal/port/notifier"
)

// NotificationService fans one notification out to every configured
// dispatcher enabled for its event.
type NotificationService struct {
	dispatchers   []notifier.Dispatcher
	enabledEvents map[string]bool
}

// NewNotificationService creates a NotificationService with the given
// dispatchers and list of enabled event types (e.g. "review.requested",
// "review.decided"). If enabledEvents is nil or empty, all events are
// enabled.
func NewNotificationService(dispatchers []notifier.Dispatcher, enabledEvents []string) *NotificationService {
	enabled := make(map[string]bool, len(enabledEvents))
	for _, e := range enabledEvents {
		enabled[e] = true
	}
	return &NotificationService{
		dispatchers:   dispatchers,
		enabledEvents: enabled,
	}
}

// Dispatch delivers the notification through every dispatcher and returns
// how many accepted it. Errors are logged but do not interrupt delivery to
// the remaining dispatchers.
func (s *NotificationService) Dispatch(ctx context.Context, event string, n notifier.Notification) int {
	if len(s.enabledEvents) > 0 && !s.enabledEvents[event] {
		return 0
	}
	if n.Source == "" {
		n.Source = event
	}

	delivered := 0
	for _, d := range s.dispatchers {
		if err := d.Send(ctx, n); err != nil {
			slog.Warn("notification send failed",
				"dispatcher", d.Name(),
				"event", event,
				"recipient_id", n.RecipientID,
				"error", err,
			)
			continue
		}
		delivered++
		slog.Debug("notification sent", "dispatcher", d.Name(), "event", event, "recipient_id", n.RecipientID)
	}
	return delivered
}

// DispatcherCount returns the number of configured dispatchers.
func (s *NotificationService) DispatcherCount() int {
	return len(s.dispatchers)
}
