package remote

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/theonlywayisdigital/donedex-sub002/internal/inspection"
)

// ReportPage is one page of a report listing.
type ReportPage struct {
	Reports []*inspection.Report `json:"reports"`
	// NextCursor is the opaque cursor for the next page, empty when
	// this is the last page.
	NextCursor string `json:"next_cursor,omitempty"`
}

// Cursor is the decoded form of a list-view pagination cursor: the
// last-seen report id plus its start timestamp, so pages stay stable
// while reports are being created concurrently.
type Cursor struct {
	LastID   string    `json:"last_id"`
	LastSeen time.Time `json:"last_seen"`
}

// Encode serializes the cursor into its opaque wire form.
func (c Cursor) Encode() string {
	data, err := json.Marshal(c)
	if err != nil {
		// Cursor has no unmarshalable fields; this cannot happen.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor parses an opaque cursor. An empty string decodes to the
// zero cursor (first page).
func DecodeCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("malformed cursor: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, fmt.Errorf("malformed cursor: %w", err)
	}

	return c, nil
}

// IsZero reports whether the cursor points at the first page.
func (c Cursor) IsZero() bool {
	return c.LastID == "" && c.LastSeen.IsZero()
}

// NextCursorFor builds the cursor for the page following the given
// reports, or "" when the page was short (no further pages).
func NextCursorFor(reports []*inspection.Report, limit int) string {
	if limit <= 0 || len(reports) < limit {
		return ""
	}
	last := reports[len(reports)-1]
	return Cursor{LastID: last.ID, LastSeen: last.StartedAt}.Encode()
}
