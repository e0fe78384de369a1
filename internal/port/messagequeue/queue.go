// Package messagequeue defines the queue port carrying review lifecycle
// events and repair tasks, plus the payload schemas published on it.
package messagequeue

import "context"

// Handler consumes one message. The context carries the request ID the
// publisher attached, so log lines correlate across process boundaries.
// A non-nil error asks the queue to redeliver, subject to its retry bound.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue publishes and subscribes on named subjects.
type Queue interface {
	// Publish sends data on subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe delivers subject's messages to handler until the returned
	// cancel function is called.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain stops intake, lets in-flight handlers finish, then closes.
	Drain() error

	// Close drops the connection without waiting for in-flight handlers.
	Close() error

	// IsConnected reports whether the backing connection is up. Health
	// checks read this.
	IsConnected() bool
}

// Subject constants for the review lifecycle and repair streams.
const (
	// Lifecycle events, published for observers (dashboards, downstream
	// systems). Fire-and-forget.
	SubjectContentSubmitted = "reviews.content.submitted"
	SubjectReviewRequested  = "reviews.review.requested"
	SubjectReviewDecided    = "reviews.review.decided"
	SubjectInstanceFinished = "reviews.instance.finished"

	// Repair task queue. Work-queue semantics: the repair consumer acks a
	// task only after the side-effect row is updated.
	SubjectRepairIndex = "reviews.repair.index"
	SubjectRepairDone  = "reviews.repair.done"
)
