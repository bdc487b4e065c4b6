// Package remote defines the collaborator boundaries the sync engine
// talks across: the template service, the report service, the media
// store, and connectivity. The remote side can succeed, fail, or be
// unreachable; everything behind these interfaces is outside the
// engine's control.
package remote

import (
	"context"
	"time"

	"github.com/theonlywayisdigital/donedex-sub002/internal/inspection"
)

// TemplateService supplies authoritative template structures.
// Template authoring lives elsewhere; the engine only reads.
type TemplateService interface {
	// FetchTemplateWithSections returns the full template including
	// sections and items.
	FetchTemplateWithSections(ctx context.Context, templateID string) (*inspection.Template, error)
}

// UpsertParams carries one response upsert to the remote system.
// Upserts are full-row: the remote keeps exactly one response per
// (reportID, templateItemID) pair, so replaying the same upsert twice
// yields one row, not two.
type UpsertParams struct {
	ReportID       string              `json:"report_id"`
	TemplateItemID string              `json:"template_item_id"`
	ItemLabel      string              `json:"item_label,omitempty"`
	ItemType       string              `json:"item_type,omitempty"`
	ResponseValue  string              `json:"response_value,omitempty"`
	Severity       inspection.Severity `json:"severity,omitempty"`
	Notes          string              `json:"notes,omitempty"`
}

// ReportService is the remote system of record for reports and
// responses.
type ReportService interface {
	// CreateReport creates a new report in draft status.
	CreateReport(ctx context.Context, orgID, recordID, templateID, userID string) (*inspection.Report, error)

	// FetchReportByID returns a report by id.
	FetchReportByID(ctx context.Context, reportID string) (*inspection.Report, error)

	// FetchReportResponses returns all remote responses for a report.
	FetchReportResponses(ctx context.Context, reportID string) ([]*inspection.RemoteResponse, error)

	// UpsertResponse creates or replaces the response for one item.
	UpsertResponse(ctx context.Context, params UpsertParams) (*inspection.RemoteResponse, error)

	// SubmitReport flips the report to submitted with a submission
	// timestamp. Submitted is terminal from this engine's point of
	// view.
	SubmitReport(ctx context.Context, reportID string, submittedAt time.Time) error

	// ListReports returns a page of an organization's reports, newest
	// first, using an opaque cursor.
	ListReports(ctx context.Context, orgID, cursor string, limit int) (*ReportPage, error)
}

// MediaStore uploads media files captured during an inspection.
type MediaStore interface {
	// UploadMediaFile uploads one local file and returns its storage
	// path. kind is currently always "photo".
	UploadMediaFile(ctx context.Context, reportID, templateItemID, localPath, kind string) (string, error)
}

// Connectivity answers "are we online right now" from a cached probe.
// IsOnline must be fast; it is consulted on every save.
type Connectivity interface {
	IsOnline() bool
}

// Static is a fixed Connectivity answer, for tests and forced modes.
type Static bool

// IsOnline implements Connectivity.
func (s Static) IsOnline() bool { return bool(s) }
