package event

import (
	"time"

	"github.com/curatd/curatd/internal/domain/decision"
	"github.com/curatd/curatd/internal/domain/instance"
)

// Transition is one state change with its journal timestamp.
type Transition struct {
	State instance.State `json:"state"`
	At    time.Time      `json:"at"`
}

// AuditRecord is the per-item summary written when an instance reaches a
// terminal state: the effective decision, who made it, every transition with
// its timestamp, and the side-effect outcome.
type AuditRecord struct {
	ID            string                     `json:"id"`
	ContentItemID string                     `json:"content_item_id"`
	InstanceID    string                     `json:"instance_id"`
	FinalState    instance.State             `json:"final_state"`
	Decision      *decision.Decision         `json:"decision,omitempty"`
	Score         *float64                   `json:"score,omitempty"`
	ReviewerID    string                     `json:"reviewer_id,omitempty"`
	Transitions   []Transition               `json:"transitions"`
	SideEffects   *instance.SideEffectResult `json:"side_effects,omitempty"`
	RecordedAt    time.Time                  `json:"recorded_at"`
}
