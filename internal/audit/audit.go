// Package audit persists an anonymized usage log: one append-only row per
// scan, delete, or block, keyed by the account's privacy hash. Appends are
// best-effort; a failed append never alters the outcome of the action that
// triggered it.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	_ "modernc.org/sqlite"
)

// Action types recorded in the log.
const (
	ActionScan   = "scan"
	ActionDelete = "delete"
	ActionBlock  = "block"
)

// Entry is one audit row.
type Entry struct {
	UserHash  string
	Action    string
	Count     int
	Timestamp time.Time
}

// Store is the append-only SQLite-backed audit log.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at the given path and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL keeps appends cheap while the TUI reads elsewhere.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	user_hash   TEXT NOT NULL,
	action_type TEXT NOT NULL,
	count       INTEGER NOT NULL DEFAULT 1,
	created_at  TEXT NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append writes one row. Timestamps are RFC3339 UTC.
func (s *Store) Append(ctx context.Context, userHash, action string, count int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (user_hash, action_type, count, created_at)
		VALUES (?, ?, ?, ?)
	`, userHash, action, count, time.Now().UTC().Format(time.RFC3339))
	return err
}

// Entries returns all rows, oldest first.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_hash, action_type, count, created_at FROM audit_log ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.UserHash, &e.Action, &e.Count, &ts); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Recorder wraps a Store with fire-and-forget semantics: append failures are
// logged and swallowed.
type Recorder struct {
	store  *Store
	logger *log.Logger
}

func NewRecorder(store *Store, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{store: store, logger: logger}
}

// Record appends an event, logging locally on failure. A nil receiver or nil
// store is a no-op so callers never have to guard.
func (r *Recorder) Record(ctx context.Context, userHash, action string, count int) {
	if r == nil || r.store == nil {
		return
	}
	if err := r.store.Append(ctx, userHash, action, count); err != nil {
		r.logger.Warn("audit append failed", "action", action, "err", err)
	}
}
