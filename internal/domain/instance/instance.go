// Package instance defines the durable workflow instance entity and its
// state machine.
package instance

import (
	"time"

	"github.com/curatd/curatd/internal/domain/assignment"
	"github.com/curatd/curatd/internal/domain/decision"
)

// State represents the orchestration state of a review workflow instance.
type State string

const (
	StateCreated             State = "created"
	StateScoring             State = "scoring"
	StateAutoDecided         State = "auto_decided"
	StateAwaitingAssignment  State = "awaiting_assignment"
	StateAwaitingSignal      State = "awaiting_signal"
	StateDeciding            State = "deciding"
	StateFanningOut          State = "fanning_out"
	StateCompleted           State = "completed"
	StateRejected            State = "rejected"
	StateOperatorAttention   State = "needs_operator_attention"
)

// IsTerminal returns true when no further transitions are possible.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateRejected, StateOperatorAttention:
		return true
	}
	return false
}

// transitions holds the legal edges of the state machine. AwaitingAssignment
// can short-circuit to a terminal or the fan-out when the empty-pool fallback
// decides without a controller; Deciding loops back to AwaitingAssignment
// when the timeout policy reassigns. Every non-terminal working state can end
// in operator attention: its branch may exhaust retries (scorer outage,
// assignment failure) or hit unreadable recorded data, and an exhausted
// branch parks instead of retrying forever.
var transitions = map[State][]State{
	StateCreated:            {StateScoring},
	StateScoring:            {StateAutoDecided, StateAwaitingAssignment, StateOperatorAttention},
	StateAutoDecided:        {StateFanningOut, StateRejected},
	StateAwaitingAssignment: {StateAwaitingSignal, StateFanningOut, StateRejected, StateOperatorAttention},
	StateAwaitingSignal:     {StateDeciding},
	StateDeciding:           {StateFanningOut, StateRejected, StateAwaitingAssignment, StateOperatorAttention},
	StateFanningOut:         {StateCompleted, StateOperatorAttention},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s State) CanTransitionTo(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Side identifies one half of the indexing fan-out.
type Side string

const (
	SideSearch Side = "search"
	SideGraph  Side = "graph"
)

// PartialFailure records one fan-out side that exhausted its retries.
type PartialFailure struct {
	Side   Side   `json:"side"`
	Reason string `json:"reason"`
}

// SideEffectResult is the join outcome of the indexing fan-out. Repair runs
// per side and is idempotent, keyed by content item, so a recorded success is
// never re-invoked.
type SideEffectResult struct {
	SearchIndexed   bool             `json:"search_indexed"`
	GraphUpdated    bool             `json:"graph_updated"`
	ExternalURL     string           `json:"external_url,omitempty"`
	PartialFailures []PartialFailure `json:"partial_failures,omitempty"`
}

// Complete reports whether both sides have succeeded.
func (r SideEffectResult) Complete() bool {
	return r.SearchIndexed && r.GraphUpdated
}

// WorkflowInstance is the durable record of one review workflow. It is
// created when content is submitted, checkpointed at every transition, and
// archived (never deleted) once terminal.
type WorkflowInstance struct {
	ID               string             `json:"id"`
	ContentItemID    string             `json:"content_item_id"`
	State            State              `json:"state"`
	CurrentStep      string             `json:"current_step,omitempty"`
	RetryCounters    map[string]int     `json:"retry_counters,omitempty"`
	Score            *float64           `json:"score,omitempty"`
	Decision         *decision.Decision `json:"decision,omitempty"`
	SideEffects      *SideEffectResult  `json:"side_effects,omitempty"`
	Archived         bool               `json:"archived"`
	CreatedAt        time.Time          `json:"created_at"`
	LastCheckpointAt time.Time          `json:"last_checkpoint_at"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty"`
}

// Clone returns a copy safe to hand to a writer while the original keeps
// serving reads. The retry counter map is copied; Decision, SideEffects and
// Score are written once and never mutated, so sharing them is fine.
func (w *WorkflowInstance) Clone() *WorkflowInstance {
	c := *w
	if w.RetryCounters != nil {
		c.RetryCounters = make(map[string]int, len(w.RetryCounters))
		for k, v := range w.RetryCounters {
			c.RetryCounters[k] = v
		}
	}
	return &c
}

// CountRetry accumulates executor attempts for one task into the instance's
// retry counters.
func (w *WorkflowInstance) CountRetry(task string, attempts int) {
	if attempts <= 0 {
		return
	}
	if w.RetryCounters == nil {
		w.RetryCounters = make(map[string]int)
	}
	w.RetryCounters[task] += attempts
}

// StatusProjection is the read-only snapshot served by the non-blocking
// status query.
type StatusProjection struct {
	InstanceID    string                       `json:"instance_id"`
	ContentItemID string                       `json:"content_item_id"`
	State         State                        `json:"state"`
	Round         int                          `json:"round,omitempty"`
	Score         *float64                     `json:"score,omitempty"`
	Assignment    *assignment.ReviewAssignment `json:"assignment,omitempty"`
	Decision      *decision.Decision           `json:"decision,omitempty"`
	SideEffects   *SideEffectResult            `json:"side_effects,omitempty"`
	UpdatedAt     time.Time                    `json:"updated_at"`
}
