package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages. Names mirror the queue
// lifecycle subjects without the stream prefix so dashboard clients can
// consume either feed with one switch.
const (
	EventContentSubmitted = "content.submitted"
	EventReviewRequested  = "review.requested"
	EventReviewDecided    = "review.decided"
	EventInstanceFinished = "instance.finished"
	EventRepairDone       = "repair.done"
)

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
