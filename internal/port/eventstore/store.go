// Package eventstore defines the port interface for the append-only instance
// journal.
package eventstore

import (
	"context"
	"errors"

	"github.com/curatd/curatd/internal/domain/event"
)

// ErrStepRecorded is returned by Append when an event with the same
// (instance, step) key already exists. The journal is the arbiter for racing
// outcomes: whoever appends first wins, the loser reads the recorded event.
var ErrStepRecorded = errors.New("step already recorded")

// Store is the port interface for appending and loading instance events.
type Store interface {
	// Append persists a new event, stamping its ID, sequence number and
	// RecordedAt on the passed value. For events with a non-empty StepID
	// it is append-if-absent: a second append for the same step fails
	// with ErrStepRecorded.
	Append(ctx context.Context, ev *event.InstanceEvent) error

	// Load returns all events for the instance, ordered by sequence.
	Load(ctx context.Context, instanceID string) ([]event.InstanceEvent, error)

	// LoadStep returns the event recorded for one step, or nil when the
	// step has no recorded outcome yet.
	LoadStep(ctx context.Context, instanceID, stepID string) (*event.InstanceEvent, error)

	// ListOpen returns the IDs of instances whose journal holds a started
	// event but no finished event.
	ListOpen(ctx context.Context) ([]string, error)
}
