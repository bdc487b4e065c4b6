// Package session provides the stateful orchestrator driving one
// inspection edit session: load, edit, save, and submit, with
// local-first persistence and remote-best-effort sync.
//
// The controller owns the session value exclusively; the UI layer
// receives read-only snapshots and never holds a reference into the
// controller's state.
package session

import (
	"time"

	"github.com/theonlywayisdigital/donedex-sub002/internal/inspection"
	"github.com/theonlywayisdigital/donedex-sub002/internal/merge"
)

// Session is the in-memory state of one inspection being edited.
type Session struct {
	Report   *inspection.Report
	Template *inspection.Template

	// Responses maps template item id to the current response. Exactly
	// one entry per template item at all times.
	Responses map[string]*inspection.Response

	// CurrentSectionIndex is the section the user is viewing.
	CurrentSectionIndex int

	// Conflicts records, per item id, whether the last load merge hit
	// a genuine conflict. Audit/telemetry only; never blocks the user.
	Conflicts map[string]merge.FieldWins
}

// response returns the session's response for an item, or nil.
func (s *Session) response(itemID string) *inspection.Response {
	if s == nil {
		return nil
	}
	return s.Responses[itemID]
}

// responsesInOrder returns responses following template item order.
func (s *Session) responsesInOrder() []*inspection.Response {
	items := s.Template.Items()
	out := make([]*inspection.Response, 0, len(items))
	for _, item := range items {
		if r := s.Responses[item.ID]; r != nil {
			out = append(out, r)
		}
	}
	return out
}

// Snapshot is the read-only projection of a session handed to the UI.
// All contained responses are deep copies.
type Snapshot struct {
	State               string                          `json:"state"`
	Err                 string                          `json:"error,omitempty"`
	ReportID            string                          `json:"report_id,omitempty"`
	ReportStatus        inspection.ReportStatus         `json:"report_status,omitempty"`
	TemplateID          string                          `json:"template_id,omitempty"`
	SectionCount        int                             `json:"section_count"`
	CurrentSectionIndex int                             `json:"current_section_index"`
	Responses           map[string]*inspection.Response `json:"responses,omitempty"`
	Conflicts           map[string]merge.FieldWins      `json:"conflicts,omitempty"`
	TakenAt             time.Time                       `json:"taken_at"`
}

// snapshotOf builds a snapshot from the live session.
func snapshotOf(state, lastErr string, s *Session) *Snapshot {
	snap := &Snapshot{
		State:   state,
		Err:     lastErr,
		TakenAt: time.Now(),
	}
	if s == nil {
		return snap
	}

	if s.Report != nil {
		snap.ReportID = s.Report.ID
		snap.ReportStatus = s.Report.Status
	}
	if s.Template != nil {
		snap.TemplateID = s.Template.ID
		snap.SectionCount = s.Template.SectionCount()
	}
	snap.CurrentSectionIndex = s.CurrentSectionIndex

	snap.Responses = make(map[string]*inspection.Response, len(s.Responses))
	for id, r := range s.Responses {
		snap.Responses[id] = r.Clone()
	}

	if len(s.Conflicts) > 0 {
		snap.Conflicts = make(map[string]merge.FieldWins, len(s.Conflicts))
		for id, w := range s.Conflicts {
			snap.Conflicts[id] = w
		}
	}

	return snap
}
