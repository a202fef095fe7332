// Package auditlog is an append-only SQLite log of vault lifecycle
// transitions and pass outcomes, read by the CLI's "history" subcommand. It
// is purely a diagnostic trail: the manifest (internal/manifest) remains
// the sole source of truth for resuming an interrupted pass, and nothing in
// the recovery path ever queries this log.
package auditlog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// AuditLog wraps the SQLite handle backing the event table.
type AuditLog struct {
	sql *sql.DB
}

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	vault_id TEXT     NOT NULL,
	kind     TEXT     NOT NULL,
	detail   TEXT     NOT NULL DEFAULT '',
	at       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_vault_id ON events(vault_id, at);
`

// Open creates/opens the SQLite database at path and ensures the events
// table exists.
func Open(path string) (*AuditLog, error) {
	if path == "" {
		return nil, fmt.Errorf("audit log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("ping audit log: %w", err)
	}
	if _, err := handle.Exec(createEventsTable); err != nil {
		handle.Close()
		return nil, fmt.Errorf("migrate audit log schema: %w", err)
	}
	if err := ensurePerm0600(path); err != nil {
		handle.Close()
		return nil, err
	}

	return &AuditLog{sql: handle}, nil
}

// Close releases the underlying database handle.
func (a *AuditLog) Close() error {
	if a == nil || a.sql == nil {
		return nil
	}
	return a.sql.Close()
}

// Event is one row of the audit trail.
type Event struct {
	ID      int64
	VaultID uuid.UUID
	Kind    string
	Detail  string
	At      time.Time
}

// Record appends one event row. Callers invoke this at every state
// transition and at pass completion/failure; it never participates in
// recovery decisions.
func (a *AuditLog) Record(vaultID uuid.UUID, kind, detail string) error {
	if a == nil || a.sql == nil {
		return fmt.Errorf("audit log handle is nil")
	}
	_, err := a.sql.Exec(
		`INSERT INTO events (vault_id, kind, detail, at) VALUES (?, ?, ?, ?)`,
		// Fixed-width fraction so the text column sorts chronologically.
		vaultID.String(), kind, detail, time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Recent returns up to limit most recent events for vaultID, newest first.
func (a *AuditLog) Recent(vaultID uuid.UUID, limit int) ([]Event, error) {
	if a == nil || a.sql == nil {
		return nil, fmt.Errorf("audit log handle is nil")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := a.sql.Query(
		`SELECT id, vault_id, kind, detail, at FROM events
		 WHERE vault_id = ? ORDER BY at DESC, id DESC LIMIT ?`,
		vaultID.String(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e      Event
			idStr  string
			atText string
		)
		if err := rows.Scan(&e.ID, &idStr, &e.Kind, &e.Detail, &atText); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		parsedID, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse event vault id: %w", err)
		}
		e.VaultID = parsedID
		at, err := time.Parse(time.RFC3339Nano, atText)
		if err != nil {
			return nil, fmt.Errorf("parse event timestamp: %w", err)
		}
		e.At = at
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}

func ensurePerm0600(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if err := os.Chmod(path, 0o600); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("chmod audit log: %w", err)
	}
	return nil
}
