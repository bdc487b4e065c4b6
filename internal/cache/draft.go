package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/theonlywayisdigital/donedex-sub002/internal/inspection"
)

// Draft is the durable-cache projection of an in-progress session.
//
// A draft is created on the first edit of a session, overwritten (not
// appended) on every subsequent save, and deleted once the report
// reaches submitted status.
type Draft struct {
	ReportID            string                 `json:"report_id"`
	TemplateID          string                 `json:"template_id"`
	RecordID            string                 `json:"record_id,omitempty"`
	Responses           []*inspection.Response `json:"responses"`
	CurrentSectionIndex int                    `json:"current_section_index"`
	LastUpdated         time.Time              `json:"last_updated"`
	Version             int                    `json:"version"`
}

// Validate checks the draft before writing it.
func (d *Draft) Validate() error {
	if d.ReportID == "" {
		return fmt.Errorf("report_id is required")
	}
	if d.TemplateID == "" {
		return fmt.Errorf("template_id is required")
	}
	seen := make(map[string]bool)
	for _, r := range d.Responses {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("invalid response: %w", err)
		}
		if seen[r.TemplateItemID] {
			return fmt.Errorf("duplicate response for item %s", r.TemplateItemID)
		}
		seen[r.TemplateItemID] = true
	}
	return nil
}

// Response returns the draft's response for an item, or nil.
func (d *Draft) Response(itemID string) *inspection.Response {
	for _, r := range d.Responses {
		if r.TemplateItemID == itemID {
			return r
		}
	}
	return nil
}

// SaveDraft persists the full draft keyed by report id, overwriting
// any prior value. Never partial-merges on write.
func (s *Store) SaveDraft(draft *Draft) error {
	return s.SaveDraftContext(context.Background(), draft)
}

// SaveDraftContext persists a draft with context support.
func (s *Store) SaveDraftContext(ctx context.Context, draft *Draft) error {
	if err := draft.Validate(); err != nil {
		return fmt.Errorf("invalid draft: %w", err)
	}

	if draft.Version == 0 {
		draft.Version = DraftSchemaVersion
	}
	if draft.LastUpdated.IsZero() {
		draft.LastUpdated = time.Now()
	}

	responsesJSON, err := json.Marshal(draft.Responses)
	if err != nil {
		return fmt.Errorf("failed to marshal draft responses: %w", err)
	}

	query := `
	INSERT INTO drafts (
		report_id, template_id, record_id, responses,
		current_section, last_updated, version
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(report_id) DO UPDATE SET
		template_id = excluded.template_id,
		record_id = excluded.record_id,
		responses = excluded.responses,
		current_section = excluded.current_section,
		last_updated = excluded.last_updated,
		version = excluded.version
	`

	_, err = s.conn.ExecContext(ctx, query,
		draft.ReportID,
		draft.TemplateID,
		draft.RecordID,
		string(responsesJSON),
		draft.CurrentSectionIndex,
		draft.LastUpdated.Format(time.RFC3339Nano),
		draft.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to save draft %s: %w", draft.ReportID, err)
	}

	return nil
}

// LoadDraft returns the draft for a report, or nil if absent.
func (s *Store) LoadDraft(reportID string) (*Draft, error) {
	return s.LoadDraftContext(context.Background(), reportID)
}

// LoadDraftContext loads a draft with context support.
func (s *Store) LoadDraftContext(ctx context.Context, reportID string) (*Draft, error) {
	query := `
	SELECT report_id, template_id, record_id, responses,
	       current_section, last_updated, version
	FROM drafts WHERE report_id = ?
	`

	var (
		draft         Draft
		recordID      sql.NullString
		responsesJSON string
		lastUpdated   string
	)

	err := s.conn.QueryRowContext(ctx, query, reportID).Scan(
		&draft.ReportID,
		&draft.TemplateID,
		&recordID,
		&responsesJSON,
		&draft.CurrentSectionIndex,
		&lastUpdated,
		&draft.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft %s: %w", reportID, err)
	}

	if draft.Version > DraftSchemaVersion {
		return nil, fmt.Errorf("draft %s was written by a newer schema (version %d)", reportID, draft.Version)
	}

	draft.RecordID = recordID.String

	if err := json.Unmarshal([]byte(responsesJSON), &draft.Responses); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft responses for %s: %w", reportID, err)
	}

	if t, err := time.Parse(time.RFC3339Nano, lastUpdated); err == nil {
		draft.LastUpdated = t
	}

	return &draft, nil
}

// DeleteDraft removes the draft for a report. Idempotent.
func (s *Store) DeleteDraft(reportID string) error {
	return s.DeleteDraftContext(context.Background(), reportID)
}

// DeleteDraftContext removes a draft with context support.
func (s *Store) DeleteDraftContext(ctx context.Context, reportID string) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM drafts WHERE report_id = ?`, reportID)
	if err != nil {
		return fmt.Errorf("failed to delete draft %s: %w", reportID, err)
	}
	return nil
}
