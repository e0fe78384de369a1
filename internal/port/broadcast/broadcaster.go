// Package broadcast defines the port for pushing real-time review events to
// connected clients.
package broadcast

import "context"

// Broadcaster sends typed events to every connected client. Delivery is
// best-effort; slow consumers are dropped, never waited on.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
