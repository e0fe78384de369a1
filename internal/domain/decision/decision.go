// Package decision implements the pure scoring decision engine and its
// threshold configuration.
package decision

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies how a content item's fate was decided.
type Kind string

const (
	KindAutoApprove   Kind = "auto_approve"
	KindAutoReject    Kind = "auto_reject"
	KindEscalated     Kind = "escalated"
	KindHumanApprove  Kind = "human_approve"
	KindHumanReject   Kind = "human_reject"
	KindTimeoutReject Kind = "timeout_reject"
)

// Terminal reports whether the kind ends the review (Escalated is the only
// intermediate kind; it hands the item to a controller).
func (k Kind) Terminal() bool {
	return k != KindEscalated
}

// Approved reports whether the kind admits the item into the collection.
func (k Kind) Approved() bool {
	return k == KindAutoApprove || k == KindHumanApprove
}

// Decision records the effective outcome for a content item. At most one
// terminal Decision exists per item and its kind is never overwritten.
type Decision struct {
	Kind         Kind      `json:"kind"`
	Score        float64   `json:"score"`
	ControllerID string    `json:"controller_id,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	DecidedAt    time.Time `json:"decided_at"`
}

// Thresholds partitions the score axis into reject, escalate and approve
// bands. Valid iff RejectBelow <= ReviewBelow <= ApproveAtOrAbove.
type Thresholds struct {
	RejectBelow      float64 `json:"reject_below" yaml:"reject_below"`
	ReviewBelow      float64 `json:"review_below" yaml:"review_below"`
	ApproveAtOrAbove float64 `json:"approve_at_or_above" yaml:"approve_at_or_above"`
}

// ErrThresholdOrder indicates a threshold set that does not satisfy
// reject_below <= review_below <= approve_at_or_above. It is a configuration
// error: a workflow instance must never start with such a set.
var ErrThresholdOrder = errors.New("thresholds must satisfy reject_below <= review_below <= approve_at_or_above")

// Validate checks threshold ordering.
func (t Thresholds) Validate() error {
	if t.RejectBelow > t.ReviewBelow || t.ReviewBelow > t.ApproveAtOrAbove {
		return fmt.Errorf("%w: got reject_below=%.2f review_below=%.2f approve_at_or_above=%.2f",
			ErrThresholdOrder, t.RejectBelow, t.ReviewBelow, t.ApproveAtOrAbove)
	}
	return nil
}

// Evaluate maps a relevance score to a decision kind. It is pure: equal
// inputs always yield equal outputs, so re-evaluation during workflow replay
// is safe. Boundaries are inclusive on the approve side and exclusive on the
// reject side: score >= approve_at_or_above approves, score < reject_below
// rejects, everything between escalates.
func Evaluate(score float64, t Thresholds) (Kind, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	switch {
	case score >= t.ApproveAtOrAbove:
		return KindAutoApprove, nil
	case score < t.RejectBelow:
		return KindAutoReject, nil
	default:
		return KindEscalated, nil
	}
}
