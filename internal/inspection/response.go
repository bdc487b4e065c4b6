package inspection

import (
	"fmt"
	"time"
)

// Severity classifies a finding recorded against a template item.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// IsValid returns true for a recognized severity. The empty string is
// valid and means no severity was recorded.
func (s Severity) IsValid() bool {
	switch s {
	case "", SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Response is the local, in-memory/cache form of one answer.
//
// Fields are flat with a per-response modification timestamp so the
// conflict resolver can apply last-write-wins per field. The invariant
// is at most one Response per (reportID, templateItemID) pair in any
// store.
type Response struct {
	TemplateItemID string   `json:"template_item_id"`
	Value          Value    `json:"value"`
	Severity       Severity `json:"severity,omitempty"`
	Notes          string   `json:"notes,omitempty"`

	// PendingMedia is the ordered list of locally-referenced media file
	// paths not yet uploaded. Remote media references only exist after
	// upload completes, so this list never races with the remote side.
	PendingMedia []string `json:"pending_media,omitempty"`

	// FieldUpdatedAt is stamped on every mutation and drives
	// newest-wins conflict resolution against the remote updated_at.
	FieldUpdatedAt time.Time `json:"field_updated_at"`
}

// Validate checks the response's field values.
func (r *Response) Validate() error {
	if r.TemplateItemID == "" {
		return fmt.Errorf("template_item_id is required")
	}
	if !r.Severity.IsValid() {
		return fmt.Errorf("invalid severity %q", r.Severity)
	}
	return nil
}

// HasContent reports whether the response carries anything worth
// syncing: a recorded value, severity, notes, or pending media.
func (r *Response) HasContent() bool {
	return !r.Value.IsZero() || r.Severity != "" || r.Notes != "" || len(r.PendingMedia) > 0
}

// Clone returns a deep copy, so snapshots handed to the UI cannot
// alias the controller's state.
func (r *Response) Clone() *Response {
	out := *r
	if r.Value.Choices != nil {
		out.Value.Choices = append([]string(nil), r.Value.Choices...)
	}
	if r.PendingMedia != nil {
		out.PendingMedia = append([]string(nil), r.PendingMedia...)
	}
	return &out
}

// RemoteResponse is the system-of-record shape of one answer, as
// returned by the report service.
type RemoteResponse struct {
	ID             string    `json:"id"`
	ReportID       string    `json:"report_id"`
	TemplateItemID string    `json:"template_item_id"`
	ItemLabel      string    `json:"item_label,omitempty"`
	ItemType       string    `json:"item_type,omitempty"`
	ResponseValue  string    `json:"response_value,omitempty"`
	Severity       Severity  `json:"severity,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ModifiedAt returns the remote modification timestamp, falling back
// to created_at when the server never recorded an update.
func (r *RemoteResponse) ModifiedAt() time.Time {
	if !r.UpdatedAt.IsZero() {
		return r.UpdatedAt
	}
	return r.CreatedAt
}

// Value decodes the remote string column once, guided by the item type.
func (r *RemoteResponse) Value() Value {
	return DecodeValue(r.ItemType, r.ResponseValue)
}
