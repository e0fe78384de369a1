package event

import (
	"encoding/json"
	"time"

	"github.com/curatd/curatd/internal/domain/instance"
	"github.com/curatd/curatd/internal/domain/policy"
)

// Journal payload schemas. Every event type with structured content carries
// one of these as its Payload.

// StartedPayload records which workflow definition an instance runs and the
// input it was started with, so a resume can re-execute it.
type StartedPayload struct {
	WorkflowName string          `json:"workflow_name"`
	Input        json.RawMessage `json:"input,omitempty"`
}

// ActivityCompletedPayload is the journaled result of a successful activity.
type ActivityCompletedPayload struct {
	Task     policy.TaskType `json:"task"`
	Attempts int             `json:"attempts"`
	Result   json.RawMessage `json:"result,omitempty"`
}

// ActivityFailedPayload is the journaled outcome of an exhausted or
// permanently failed activity.
type ActivityFailedPayload struct {
	Task      policy.TaskType `json:"task"`
	Attempts  int             `json:"attempts"`
	Message   string          `json:"message"`
	Permanent bool            `json:"permanent"`
}

// TimerArmedPayload pins a gate's absolute deadline. After a restart the
// timer is re-armed with the remaining duration, not a fresh timeout.
type TimerArmedPayload struct {
	Channel string    `json:"channel"`
	Round   int       `json:"round"`
	FireAt  time.Time `json:"fire_at"`
}

// StateChangedPayload records one checkpointed transition.
type StateChangedPayload struct {
	State instance.State `json:"state"`
	Step  string         `json:"step"`
}

// SignalIgnoredPayload records a duplicate or late signal that caused no
// state change.
type SignalIgnoredPayload struct {
	Channel string `json:"channel"`
	Reason  string `json:"reason"`
}
