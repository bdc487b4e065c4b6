package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/theonlywayisdigital/donedex-sub002/internal/inspection"
)

// MutationKind identifies the operation a queued mutation replays.
type MutationKind string

const (
	// MutationResponse is a full-row response upsert. Later mutations
	// to the same item carry all prior field state, so only per-item
	// FIFO ordering matters for replay.
	MutationResponse MutationKind = "response"
)

// ResponsePayload is the payload of a response upsert mutation,
// mirroring the remote upsert parameters.
type ResponsePayload struct {
	ReportID       string              `json:"report_id"`
	TemplateItemID string              `json:"template_item_id"`
	ItemLabel      string              `json:"item_label,omitempty"`
	ItemType       string              `json:"item_type,omitempty"`
	ResponseValue  string              `json:"response_value,omitempty"`
	Severity       inspection.Severity `json:"severity,omitempty"`
	Notes          string              `json:"notes,omitempty"`
}

// QueuedMutation is one deferred remote write. Entries are consumed
// (removed) once successfully replayed; never silently dropped.
type QueuedMutation struct {
	Seq      int64           `json:"seq"`
	Kind     MutationKind    `json:"kind"`
	Payload  ResponsePayload `json:"payload"`
	QueuedAt time.Time       `json:"queued_at"`
}

// Enqueue appends a mutation to the queue, preserving enqueue order.
func (s *Store) Enqueue(kind MutationKind, payload ResponsePayload) error {
	return s.EnqueueContext(context.Background(), kind, payload)
}

// EnqueueContext appends a mutation with context support.
func (s *Store) EnqueueContext(ctx context.Context, kind MutationKind, payload ResponsePayload) error {
	if kind == "" {
		return fmt.Errorf("mutation kind is required")
	}
	if payload.ReportID == "" || payload.TemplateItemID == "" {
		return fmt.Errorf("mutation payload requires report_id and template_item_id")
	}

	query := `
	INSERT INTO mutation_queue (
		kind, report_id, template_item_id, item_label, item_type,
		response_value, severity, notes, queued_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.conn.ExecContext(ctx, query,
		string(kind),
		payload.ReportID,
		payload.TemplateItemID,
		payload.ItemLabel,
		payload.ItemType,
		payload.ResponseValue,
		string(payload.Severity),
		payload.Notes,
		time.Now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue mutation for item %s: %w", payload.TemplateItemID, err)
	}

	return nil
}

// Pending returns all queued mutations in FIFO order.
func (s *Store) Pending() ([]*QueuedMutation, error) {
	return s.PendingContext(context.Background())
}

// PendingContext returns all queued mutations with context support.
func (s *Store) PendingContext(ctx context.Context) ([]*QueuedMutation, error) {
	return s.queryMutations(ctx, `
	SELECT seq, kind, report_id, template_item_id, item_label, item_type,
	       response_value, severity, notes, queued_at
	FROM mutation_queue ORDER BY seq ASC
	`)
}

// PendingForReport returns queued mutations for one report, FIFO.
func (s *Store) PendingForReport(reportID string) ([]*QueuedMutation, error) {
	return s.PendingForReportContext(context.Background(), reportID)
}

// PendingForReportContext returns one report's queued mutations with
// context support.
func (s *Store) PendingForReportContext(ctx context.Context, reportID string) ([]*QueuedMutation, error) {
	return s.queryMutations(ctx, `
	SELECT seq, kind, report_id, template_item_id, item_label, item_type,
	       response_value, severity, notes, queued_at
	FROM mutation_queue WHERE report_id = ? ORDER BY seq ASC
	`, reportID)
}

func (s *Store) queryMutations(ctx context.Context, query string, args ...interface{}) ([]*QueuedMutation, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mutation queue: %w", err)
	}
	defer rows.Close()

	var mutations []*QueuedMutation
	for rows.Next() {
		var (
			m        QueuedMutation
			kind     string
			severity string
			queuedAt string
		)

		err := rows.Scan(
			&m.Seq,
			&kind,
			&m.Payload.ReportID,
			&m.Payload.TemplateItemID,
			&m.Payload.ItemLabel,
			&m.Payload.ItemType,
			&m.Payload.ResponseValue,
			&severity,
			&m.Payload.Notes,
			&queuedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queued mutation: %w", err)
		}

		m.Kind = MutationKind(kind)
		m.Payload.Severity = inspection.Severity(severity)
		if t, err := time.Parse(time.RFC3339Nano, queuedAt); err == nil {
			m.QueuedAt = t
		}

		mutations = append(mutations, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mutation queue: %w", err)
	}

	return mutations, nil
}

// Remove deletes a mutation after a confirmed remote replay. Idempotent.
func (s *Store) Remove(seq int64) error {
	return s.RemoveContext(context.Background(), seq)
}

// RemoveContext deletes a mutation with context support.
func (s *Store) RemoveContext(ctx context.Context, seq int64) error {
	_, err := s.conn.ExecContext(ctx, `DELETE FROM mutation_queue WHERE seq = ?`, seq)
	if err != nil {
		return fmt.Errorf("failed to remove mutation %d: %w", seq, err)
	}
	return nil
}

// RemoveForItem deletes all queued mutations for one item. Used when a
// newer full-row upsert for the item has been confirmed remotely,
// making the older entries redundant.
func (s *Store) RemoveForItem(reportID, templateItemID string) error {
	return s.RemoveForItemContext(context.Background(), reportID, templateItemID)
}

// RemoveForItemContext deletes an item's mutations with context support.
func (s *Store) RemoveForItemContext(ctx context.Context, reportID, templateItemID string) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM mutation_queue WHERE report_id = ? AND template_item_id = ?`,
		reportID, templateItemID)
	if err != nil {
		return fmt.Errorf("failed to remove mutations for item %s: %w", templateItemID, err)
	}
	return nil
}

// PendingCount returns the number of queued mutations.
func (s *Store) PendingCount() (int, error) {
	return s.PendingCountContext(context.Background())
}

// PendingCountContext returns the queue depth with context support.
func (s *Store) PendingCountContext(ctx context.Context) (int, error) {
	var count int
	err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM mutation_queue`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count mutation queue: %w", err)
	}
	return count, nil
}
