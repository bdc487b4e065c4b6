package inspection

import (
	"time"
)

// ReportStatus represents the lifecycle state of an inspection report.
//
// The engine treats submitted as terminal: no further edits are
// permitted once a report reaches it. Whether the remote system also
// enforces the transition is outside this engine's visibility.
type ReportStatus string

const (
	// StatusDraft indicates the report is mutable and being filled out.
	StatusDraft ReportStatus = "draft"

	// StatusSubmitted indicates the report has been finalized.
	StatusSubmitted ReportStatus = "submitted"
)

// IsValid returns true if the status is a recognized value.
func (s ReportStatus) IsValid() bool {
	return s == StatusDraft || s == StatusSubmitted
}

// IsTerminal returns true if no further transitions are allowed.
func (s ReportStatus) IsTerminal() bool {
	return s == StatusSubmitted
}

// CanTransitionTo checks whether the report may move to the target status.
func (s ReportStatus) CanTransitionTo(target ReportStatus) bool {
	return s == StatusDraft && target == StatusSubmitted
}

// Report is the remote system-of-record identity of one inspection.
type Report struct {
	ID          string       `json:"id"`
	OrgID       string       `json:"org_id"`
	RecordID    string       `json:"record_id"`
	TemplateID  string       `json:"template_id"`
	UserID      string       `json:"user_id"`
	Status      ReportStatus `json:"status"`
	StartedAt   time.Time    `json:"started_at"`
	SubmittedAt *time.Time   `json:"submitted_at,omitempty"`
}
