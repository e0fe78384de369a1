// Package alert defines the operational alerting port (interface).
// Alerts are for operators, not content stakeholders: total side-effect
// failures, exhausted repairs, configuration rejects.
package alert

import "context"

// Severity grades an operational alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is a single operator-facing incident notification.
type Alert struct {
	Severity      Severity `json:"severity"`
	Source        string   `json:"source"` // e.g. "fanout.total_failure", "repair.exhausted"
	ContentItemID string   `json:"content_item_id,omitempty"`
	InstanceID    string   `json:"instance_id,omitempty"`
	Message       string   `json:"message"`
}

// Alerter is the port interface for raising operational alerts. Raising is
// best-effort: failures are logged, never propagated into the workflow.
type Alerter interface {
	Raise(ctx context.Context, a Alert) error
}
