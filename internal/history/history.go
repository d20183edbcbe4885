// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package history keeps a local record of finished sessions in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// FileName is the database file inside the state directory.
const FileName = "history.db"

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	started_at      TEXT NOT NULL,
	finished_at     TEXT NOT NULL,
	target          TEXT NOT NULL DEFAULT '',
	model           TEXT NOT NULL DEFAULT '',
	query           TEXT NOT NULL,
	intent          TEXT NOT NULL DEFAULT '',
	optimized_query TEXT NOT NULL DEFAULT '',
	explanation     TEXT NOT NULL DEFAULT '',
	corrections     INTEGER NOT NULL DEFAULT 0,
	outcome         TEXT NOT NULL,
	error_kind      TEXT NOT NULL DEFAULT '',
	error_message   TEXT NOT NULL DEFAULT '',
	plan_cost       REAL NOT NULL DEFAULT 0,
	plan_time_ms    REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS sessions_started_at ON sessions (started_at);
`

// Entry is one finished session.
type Entry struct {
	ID             string
	StartedAt      time.Time
	FinishedAt     time.Time
	Target         string
	Model          string
	Query          string
	Intent         string
	OptimizedQuery string
	Explanation    string
	Corrections    int
	Outcome        string
	ErrorKind      string
	ErrorMessage   string
	PlanCost       float64
	PlanTimeMs     float64
}

// Store is a history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 2000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure history: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Add records e.
func (s *Store) Add(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at, finished_at, target, model, query, intent,
			optimized_query, explanation, corrections, outcome, error_kind, error_message,
			plan_cost, plan_time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.StartedAt.UTC().Format(time.RFC3339Nano), e.FinishedAt.UTC().Format(time.RFC3339Nano),
		e.Target, e.Model, e.Query, e.Intent, e.OptimizedQuery, e.Explanation, e.Corrections,
		e.Outcome, e.ErrorKind, e.ErrorMessage, e.PlanCost, e.PlanTimeMs)
	if err != nil {
		return fmt.Errorf("record session %s: %w", e.ID, err)
	}
	return nil
}

const selectColumns = `
	SELECT id, started_at, finished_at, target, model, query, intent, optimized_query,
		explanation, corrections, outcome, error_kind, error_message, plan_cost, plan_time_ms
	FROM sessions`

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx, selectColumns+" ORDER BY started_at DESC LIMIT ?", limit)
}

// Get returns the entry whose id starts with idPrefix.
func (s *Store) Get(ctx context.Context, idPrefix string) (Entry, error) {
	if idPrefix == "" || strings.Trim(idPrefix, "0123456789abcdef-") != "" {
		return Entry{}, fmt.Errorf("invalid session id %q", idPrefix)
	}
	found, err := s.query(ctx, selectColumns+" WHERE id LIKE ? ORDER BY started_at DESC LIMIT 2", idPrefix+"%")
	if err != nil {
		return Entry{}, err
	}
	switch len(found) {
	case 0:
		return Entry{}, fmt.Errorf("no session matches %q", idPrefix)
	case 1:
		return found[0], nil
	}
	return Entry{}, fmt.Errorf("more than one session matches %q", idPrefix)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                 Entry
			started, finished string
		)
		if err := rows.Scan(&e.ID, &started, &finished, &e.Target, &e.Model, &e.Query, &e.Intent,
			&e.OptimizedQuery, &e.Explanation, &e.Corrections, &e.Outcome, &e.ErrorKind,
			&e.ErrorMessage, &e.PlanCost, &e.PlanTimeMs); err != nil {
			return nil, fmt.Errorf("read history row: %w", err)
		}
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		e.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, e)
	}
	return out, rows.Err()
}
