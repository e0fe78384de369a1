package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/curatd/curatd/internal/domain/policy"
	"github.com/curatd/curatd/internal/port/notifier"
)

// Notify runs the stakeholder notification activity. Delivery errors inside
// a dispatcher are logged by the notification service and never fail the
// workflow; the journaled output records how many dispatchers accepted.
type Notify struct {
	svc Notifier
}

// NewNotify creates the notify activity over the notification service.
func NewNotify(svc Notifier) *Notify {
	return &Notify{svc: svc}
}

// Handle fans the notification out to every dispatcher enabled for the
// event.
func (n *Notify) Handle(ctx context.Context, input []byte) ([]byte, error) {
	var in NotifyInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, policy.Permanent(fmt.Errorf("decode notify input: %w", err))
	}

	count := n.svc.Dispatch(ctx, in.Event, notifier.Notification{
		RecipientID: in.RecipientID,
		Subject:     in.Subject,
		Body:        in.Body,
		Level:       in.Level,
		Source:      in.Event,
	})

	return json.Marshal(NotifyOutput{Dispatched: count, At: time.Now().UTC()})
}
