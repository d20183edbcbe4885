// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package sqlexec talks to PostgreSQL on behalf of an optimization session.
// It owns the session connection and provides the catalog inspector, the
// rolled-back diagnostic run, the statement validator and the executor used
// when the user chooses to run the optimized query.
//
// Key features include:
//   - One exclusively owned connection per session
//   - Catalog lookups for columns and indexes of referenced tables
//   - EXPLAIN ANALYZE inside a transaction that is always rolled back
//   - Row previews with PostgreSQL types converted to display values
package sqlexec

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "precinct/cli/internal/errors"
)

// Result represents a normalized SQL result for display and JSON marshaling.
type Result struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	RowsAffected int64    `json:"rows_affected,omitempty"`
	// Truncated is set when rows beyond the preview limit were discarded.
	Truncated bool `json:"truncated,omitempty"`
}

// MarshalJSON converts pgx values to JSON-friendly ones.
func (r Result) MarshalJSON() ([]byte, error) {
	type Alias Result
	a := Alias(r)
	if len(r.Rows) > 0 {
		rows := make([][]any, len(r.Rows))
		for i, row := range r.Rows {
			rows[i] = make([]any, len(row))
			for j, val := range row {
				rows[i][j] = NormalizeValue(val)
			}
		}
		a.Rows = rows
	}
	return json.Marshal(a)
}

// NormalizeValue converts a value returned by pgx into a plain Go value
// that renders sensibly as text and JSON.
func NormalizeValue(val any) any {
	switch v := val.(type) {
	case nil:
		return nil
	case [16]byte:
		return uuid.UUID(v).String()
	case []byte:
		if len(v) == 16 {
			if id, err := uuid.FromBytes(v); err == nil {
				return id.String()
			}
		}
		return fmt.Sprintf("\\x%x", v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case string, bool, int, int16, int32, int64, float32, float64:
		return v
	case driver.Valuer:
		inner, err := v.Value()
		if err != nil {
			return fmt.Sprint(val)
		}
		if inner == nil {
			return nil
		}
		return NormalizeValue(inner)
	default:
		return v
	}
}

// Executor runs a statement on the session connection and commits it.
type Executor struct {
	conn Conn
	log  zerolog.Logger
}

// NewExecutor creates an Executor over the session connection.
func NewExecutor(conn Conn, log zerolog.Logger) *Executor {
	return &Executor{conn: conn, log: log.With().Str("component", "executor").Logger()}
}

// Run executes sql in a transaction and commits it. At most limit rows are
// kept for the preview; a non-positive limit keeps none. Rows returned by
// data-modifying statements (RETURNING) are previewed the same way.
func (e *Executor) Run(ctx context.Context, sql string, limit int) (Result, error) {
	res := Result{Columns: []string{}, Rows: [][]any{}}

	tx, err := e.conn.Begin(ctx)
	if err != nil {
		return res, connectionError(ctx, "failed to begin transaction", err)
	}
	defer tx.Rollback(context.Background()) // no-op after commit

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return res, statementError(ctx, apperrors.PlanExecution, "query failed", err)
	}
	fds := rows.FieldDescriptions()
	for _, fd := range fds {
		res.Columns = append(res.Columns, fd.Name)
	}
	var seen int64
	for rows.Next() {
		seen++
		if int(seen) > limit {
			res.Truncated = true
			continue
		}
		vals, err := rows.Values()
		if err != nil {
			rows.Close()
			return res, statementError(ctx, apperrors.PlanExecution, "failed to read row", err)
		}
		for i := range vals {
			vals[i] = NormalizeValue(vals[i])
		}
		res.Rows = append(res.Rows, vals)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return res, statementError(ctx, apperrors.PlanExecution, "query failed", err)
	}
	tag := rows.CommandTag()
	if !tag.Select() {
		res.RowsAffected = tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return res, statementError(ctx, apperrors.PlanExecution, "commit failed", err)
	}
	e.log.Debug().Int64("rows", seen).Int64("rows_affected", res.RowsAffected).Msg("statement executed")
	return res, nil
}
