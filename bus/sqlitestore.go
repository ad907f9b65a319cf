package bus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS invocations (
	id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL DEFAULT '',
	tool TEXT NOT NULL,
	origin TEXT NOT NULL DEFAULT '',
	success INTEGER NOT NULL,
	error_code TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL,
	time_unix_nano INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invocations_time ON invocations (time_unix_nano);
CREATE INDEX IF NOT EXISTS idx_invocations_tool_time ON invocations (tool, time_unix_nano);`

// SQLiteStoreConfig configures the SQLite journal.
type SQLiteStoreConfig struct {
	// DSN is the database connection string or file path.
	DSN string

	// RetentionAge is how long Prune keeps events (0 = keep forever).
	RetentionAge time.Duration
}

// SQLiteEventStore persists invocation events to SQLite in WAL mode.
type SQLiteEventStore struct {
	db  *sql.DB
	cfg SQLiteStoreConfig
	now func() time.Time
}

// NewSQLiteEventStore opens (or creates) a SQLite journal.
func NewSQLiteEventStore(cfg SQLiteStoreConfig) (*SQLiteEventStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("sqlitestore: dsn is required")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: set WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: create schema: %w", err)
	}

	return &SQLiteEventStore{db: db, cfg: cfg, now: time.Now}, nil
}

// Append stores an event in the database.
func (s *SQLiteEventStore) Append(ctx context.Context, event Event) error {
	if event.ID == "" {
		return errors.New("sqlitestore: event id is required")
	}
	when := event.Time
	if when.IsZero() {
		when = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invocations (id, request_id, tool, origin, success, error_code, error, duration_ms, time_unix_nano)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.RequestID,
		event.Tool,
		event.Origin,
		event.Success,
		event.ErrorCode,
		event.Error,
		event.DurationMS,
		when.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: append: %w", err)
	}
	return nil
}

// List returns matching events ordered newest first.
func (s *SQLiteEventStore) List(ctx context.Context, filter ListFilter) ([]Event, error) {
	query := `SELECT id, request_id, tool, origin, success, error_code, error, duration_ms, time_unix_nano
	          FROM invocations`
	var (
		clauses []string
		args    []any
	)
	if filter.Tool != "" {
		clauses = append(clauses, "tool = ?")
		args = append(args, filter.Tool)
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "time_unix_nano >= ?")
		args = append(args, filter.Since.UnixNano())
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY time_unix_nano DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e        Event
			unixNano int64
		)
		if err := rows.Scan(
			&e.ID,
			&e.RequestID,
			&e.Tool,
			&e.Origin,
			&e.Success,
			&e.ErrorCode,
			&e.Error,
			&e.DurationMS,
			&unixNano,
		); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan event: %w", err)
		}
		e.Time = time.Unix(0, unixNano).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune deletes events older than the configured retention age and reports
// how many rows were removed. It is a no-op without a retention age.
func (s *SQLiteEventStore) Prune(ctx context.Context) (int64, error) {
	if s.cfg.RetentionAge <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.cfg.RetentionAge).UnixNano()
	res, err := s.db.ExecContext(ctx, `DELETE FROM invocations WHERE time_unix_nano < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: prune by age: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: prune rows affected: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteEventStore) Close() error {
	return s.db.Close()
}

var _ EventStore = (*SQLiteEventStore)(nil)
