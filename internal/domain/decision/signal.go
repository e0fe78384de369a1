package decision

import "errors"

// ReviewSignal is the payload a controller (human or AI) submits to resolve a
// pending review. It arrives over the signal API and is validated at the wait
// gate boundary before it can transition the workflow.
type ReviewSignal struct {
	Approved   bool   `json:"approved"`
	ReviewerID string `json:"reviewer_id"`
	Notes      string `json:"notes,omitempty"`
}

var ErrReviewerRequired = errors.New("reviewer_id is required")

// Validate checks the signal for structural correctness.
func (s *ReviewSignal) Validate() error {
	if s.ReviewerID == "" {
		return ErrReviewerRequired
	}
	return nil
}

// Outcome converts an accepted signal into the corresponding decision kind.
func (s *ReviewSignal) Outcome() Kind {
	if s.Approved {
		return KindHumanApprove
	}
	return KindHumanReject
}
