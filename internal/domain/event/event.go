// Package event defines the append-only instance journal entities. The
// journal is the durable record the workflow engine replays after a restart,
// the arbiter for signal-versus-timer races, and the source of the audit
// trail.
package event

import (
	"encoding/json"
	"time"
)

// Type identifies the kind of journal event.
type Type string

const (
	TypeInstanceStarted   Type = "instance.started"
	TypeStateChanged      Type = "instance.state_changed"
	TypeInstanceFinished  Type = "instance.finished"
	TypeActivityCompleted Type = "activity.completed"
	TypeActivityFailed    Type = "activity.failed"
	TypeTimerArmed        Type = "gate.timer_armed"
	TypeTimerFired        Type = "gate.timer_fired"
	TypeSignalReceived    Type = "gate.signal_received"
	TypeSignalIgnored     Type = "gate.signal_ignored"
	TypeRepairScheduled   Type = "repair.scheduled"
)

// InstanceEvent is a single immutable entry in a workflow instance's journal.
// Seq orders events within one instance; StepID keys replayable outcomes
// (activity results, gate resolutions) and is unique per instance when set.
type InstanceEvent struct {
	ID         string          `json:"id"`
	InstanceID string          `json:"instance_id"`
	Seq        int             `json:"seq"`
	Type       Type            `json:"type"`
	StepID     string          `json:"step_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Replayable reports whether the event type short-circuits re-execution of
// its step during replay.
func (t Type) Replayable() bool {
	switch t {
	case TypeActivityCompleted, TypeActivityFailed, TypeSignalReceived, TypeTimerFired:
		return true
	}
	return false
}
