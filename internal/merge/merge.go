// Package merge implements field-level conflict resolution between a
// local draft's responses and the remote system-of-record responses
// for the same report.
//
// Resolution is pure: no I/O, no clocks. Each field (value, severity,
// notes) is resolved independently. Presence always beats absence;
// genuine conflicts fall to a configurable strategy, defaulting to
// newest-wins on the local per-field timestamp versus the remote
// updated_at (falling back to created_at).
package merge

import (
	"time"

	"github.com/theonlywayisdigital/donedex-sub002/internal/inspection"
)

// Strategy selects how a genuine both-sides-present conflict resolves.
type Strategy string

const (
	// StrategyNewestWins keeps the chronologically later side. Default.
	StrategyNewestWins Strategy = "newest-wins"
	// StrategyLocalWins always keeps the local draft's value.
	StrategyLocalWins Strategy = "local-wins"
	// StrategyServerWins always keeps the remote value.
	StrategyServerWins Strategy = "server-wins"
)

// IsValid returns true for a recognized strategy.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyNewestWins, StrategyLocalWins, StrategyServerWins:
		return true
	}
	return false
}

// Side records which input contributed a merged field, for audit and
// telemetry. It never blocks the user.
type Side string

const (
	// SideNone means neither side had the field, or both agreed.
	SideNone Side = ""
	// SideLocal means the local draft's field was kept.
	SideLocal Side = "local"
	// SideRemote means the remote field was kept.
	SideRemote Side = "remote"
)

// FieldWins records the winning side per field.
type FieldWins struct {
	Value    Side `json:"value,omitempty"`
	Severity Side `json:"severity,omitempty"`
	Notes    Side `json:"notes,omitempty"`
	Media    Side `json:"media,omitempty"`
}

// Merged is the conflict-resolved result for one template item.
type Merged struct {
	Response     *inspection.Response `json:"response"`
	HadConflicts bool                 `json:"had_conflicts"`
	Wins         FieldWins            `json:"wins"`
}

// Resolve merges local responses against remote responses for the
// same report, producing exactly one Merged per authoritative template
// item (in item order). Items with data on neither side yield an empty
// response so every item has exactly one entry downstream.
//
// A nil local slice means no draft existed; a nil remote slice means
// the report has no remote responses yet. Either single-sided case
// projects that side directly with zero conflicts.
func Resolve(items []inspection.TemplateItem, local []*inspection.Response, remote []*inspection.RemoteResponse, strategy Strategy) []*Merged {
	if !strategy.IsValid() {
		strategy = StrategyNewestWins
	}

	localByItem := make(map[string]*inspection.Response, len(local))
	for _, r := range local {
		localByItem[r.TemplateItemID] = r
	}
	remoteByItem := make(map[string]*inspection.RemoteResponse, len(remote))
	for _, r := range remote {
		remoteByItem[r.TemplateItemID] = r
	}

	onlyLocal := len(remote) == 0
	onlyRemote := len(local) == 0

	results := make([]*Merged, 0, len(items))
	for _, item := range items {
		l := localByItem[item.ID]
		r := remoteByItem[item.ID]

		switch {
		case l == nil && r == nil:
			results = append(results, &Merged{
				Response: &inspection.Response{TemplateItemID: item.ID},
			})
		case onlyLocal || (l != nil && r == nil):
			results = append(results, projectLocal(item, l))
		case onlyRemote || (l == nil && r != nil):
			results = append(results, projectRemote(item, r))
		default:
			results = append(results, mergeItem(item, l, r, strategy))
		}
	}

	return results
}

// projectLocal carries the local response through unchanged.
func projectLocal(item inspection.TemplateItem, l *inspection.Response) *Merged {
	return &Merged{Response: l.Clone()}
}

// projectRemote converts a remote response into local form.
func projectRemote(item inspection.TemplateItem, r *inspection.RemoteResponse) *Merged {
	itemType := item.ItemType
	if itemType == "" {
		itemType = r.ItemType
	}
	return &Merged{
		Response: &inspection.Response{
			TemplateItemID: item.ID,
			Value:          inspection.DecodeValue(itemType, r.ResponseValue),
			Severity:       r.Severity,
			Notes:          r.Notes,
			FieldUpdatedAt: r.ModifiedAt(),
		},
	}
}

// mergeItem resolves one item with data on both sides.
func mergeItem(item inspection.TemplateItem, l *inspection.Response, r *inspection.RemoteResponse, strategy Strategy) *Merged {
	itemType := item.ItemType
	if itemType == "" {
		itemType = r.ItemType
	}

	localTime := l.FieldUpdatedAt
	remoteTime := r.ModifiedAt()
	remoteValue := inspection.DecodeValue(itemType, r.ResponseValue)

	merged := &inspection.Response{
		TemplateItemID: item.ID,
		FieldUpdatedAt: laterOf(localTime, remoteTime),
	}
	out := &Merged{Response: merged}

	// Value
	switch {
	case l.Value.Equal(remoteValue):
		merged.Value = l.Value
	case l.Value.IsZero():
		merged.Value = remoteValue
		out.Wins.Value = SideRemote
	case remoteValue.IsZero():
		merged.Value = l.Value
		out.Wins.Value = SideLocal
	default:
		side := pickSide(strategy, localTime, remoteTime)
		if side == SideLocal {
			merged.Value = l.Value
		} else {
			merged.Value = remoteValue
		}
		out.Wins.Value = side
		out.HadConflicts = true
	}

	// Severity
	switch {
	case l.Severity == r.Severity:
		merged.Severity = l.Severity
	case l.Severity == "":
		merged.Severity = r.Severity
		out.Wins.Severity = SideRemote
	case r.Severity == "":
		merged.Severity = l.Severity
		out.Wins.Severity = SideLocal
	default:
		side := pickSide(strategy, localTime, remoteTime)
		if side == SideLocal {
			merged.Severity = l.Severity
		} else {
			merged.Severity = r.Severity
		}
		out.Wins.Severity = side
		out.HadConflicts = true
	}

	// Notes
	switch {
	case l.Notes == r.Notes:
		merged.Notes = l.Notes
	case l.Notes == "":
		merged.Notes = r.Notes
		out.Wins.Notes = SideRemote
	case r.Notes == "":
		merged.Notes = l.Notes
		out.Wins.Notes = SideLocal
	default:
		side := pickSide(strategy, localTime, remoteTime)
		if side == SideLocal {
			merged.Notes = l.Notes
		} else {
			merged.Notes = r.Notes
		}
		out.Wins.Notes = side
		out.HadConflicts = true
	}

	// Media is never merged field-by-field: local not-yet-uploaded
	// media is retained verbatim. Remote media references only exist
	// after an upload completed, so they cannot race with this list.
	if len(l.PendingMedia) > 0 {
		merged.PendingMedia = append([]string(nil), l.PendingMedia...)
		out.Wins.Media = SideLocal
		out.HadConflicts = true
	}

	return out
}

// pickSide applies the strategy to a genuine two-sided conflict.
func pickSide(strategy Strategy, localTime, remoteTime time.Time) Side {
	switch strategy {
	case StrategyLocalWins:
		return SideLocal
	case StrategyServerWins:
		return SideRemote
	default:
		if remoteTime.After(localTime) {
			return SideRemote
		}
		return SideLocal
	}
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
