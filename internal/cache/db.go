// Package cache provides the durable local store for the offline-first
// inspection engine: the draft cache and the pending-mutation queue.
//
// The store is a single embedded SQLite database file opened in WAL
// mode. Drafts are overwritten wholesale on every save (last full
// write wins locally); queued mutations are append-only and removed
// only after a confirmed remote replay.
//
// Durability here is a best-effort aid, not a correctness requirement:
// the remote system remains the source of truth once synced, so
// callers log cache failures rather than propagating them into the
// edit path.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DraftSchemaVersion is stored with every draft for forward
// compatibility. Loads of drafts written by a newer schema are
// rejected rather than misread.
const DraftSchemaVersion = 1

// Store wraps the SQLite connection holding drafts and the mutation queue.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the local store at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent
// reads and the schema is created if absent. The caller MUST call
// Close() when done.
//
// Example:
//
//	store, err := cache.Open(".donedex/cache.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := s.InitSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// RawDB returns the underlying sql.DB connection.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Close closes the store, checkpointing the WAL first.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close cache database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the drafts and mutation_queue tables if they
// don't exist. Idempotent.
func (s *Store) InitSchema() error {
	return s.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the schema with context support.
func (s *Store) InitSchemaContext(ctx context.Context) error {
	schema := `
	-- One draft per report, overwritten wholesale on every save
	CREATE TABLE IF NOT EXISTS drafts (
		report_id       TEXT PRIMARY KEY,
		template_id     TEXT NOT NULL,
		record_id       TEXT,
		responses       TEXT NOT NULL,  -- JSON array of responses
		current_section INTEGER NOT NULL DEFAULT 0,
		last_updated    TEXT NOT NULL,
		version         INTEGER NOT NULL
	);

	-- Append-only queue of deferred remote writes
	CREATE TABLE IF NOT EXISTS mutation_queue (
		seq              INTEGER PRIMARY KEY AUTOINCREMENT,
		kind             TEXT NOT NULL,
		report_id        TEXT NOT NULL,
		template_item_id TEXT NOT NULL,
		item_label       TEXT,
		item_type        TEXT,
		response_value   TEXT,
		severity         TEXT,
		notes            TEXT,
		queued_at        TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_queue_report ON mutation_queue(report_id);
	CREATE INDEX IF NOT EXISTS idx_queue_item ON mutation_queue(report_id, template_item_id);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return nil
}
