// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/plan"
	"precinct/cli/internal/sqltext"
)

const (
	// DefaultDiagnosticTimeout bounds a diagnostic run when none is configured.
	DefaultDiagnosticTimeout = 30 * time.Second
	// clientGrace is how long the client waits past the server-side
	// statement_timeout before abandoning the round trip itself.
	clientGrace = 2 * time.Second
	// rollbackTimeout bounds the rollback issued after every diagnostic run.
	rollbackTimeout = 5 * time.Second

	sqlStateQueryCanceled = "57014"
)

// Diagnostics executes a statement under EXPLAIN ANALYZE and parses the plan.
// Every run happens in its own transaction that is rolled back afterwards,
// so data-modifying statements leave the database unchanged.
type Diagnostics struct {
	conn    Conn
	timeout time.Duration
	log     zerolog.Logger
}

// NewDiagnostics creates a Diagnostics over the session connection.
// A non-positive timeout selects DefaultDiagnosticTimeout.
func NewDiagnostics(conn Conn, timeout time.Duration, log zerolog.Logger) *Diagnostics {
	if timeout <= 0 {
		timeout = DefaultDiagnosticTimeout
	}
	return &Diagnostics{conn: conn, timeout: timeout, log: log.With().Str("component", "diagnostics").Logger()}
}

// Run executes q with instrumentation and returns its execution plan.
func (d *Diagnostics) Run(ctx context.Context, q *sqltext.Query) (p *plan.ExecutionPlan, err error) {
	start := time.Now()
	runCtx, cancel := context.WithTimeout(ctx, d.timeout+clientGrace)
	defer cancel()

	tx, err := d.conn.Begin(runCtx)
	if err != nil {
		return nil, connectionError(ctx, "failed to begin diagnostic transaction", err)
	}
	defer func() {
		rbCtx, rbCancel := context.WithTimeout(context.Background(), rollbackTimeout)
		defer rbCancel()
		if rbErr := tx.Rollback(rbCtx); rbErr != nil {
			d.log.Warn().Err(rbErr).Msg("diagnostic rollback failed")
			if err == nil {
				err = connectionError(ctx, "failed to roll back diagnostic transaction", rbErr)
				p = nil
			}
			return
		}
		d.log.Debug().Dur("elapsed", time.Since(start)).Msg("diagnostic transaction rolled back")
	}()

	if _, err := tx.Exec(runCtx, fmt.Sprintf("SET LOCAL statement_timeout = %d", d.timeout.Milliseconds())); err != nil {
		return nil, statementError(ctx, apperrors.PlanExecution, "failed to bound diagnostic run", err)
	}

	var raw []byte
	err = tx.QueryRow(runCtx, "EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) "+q.Normalized).Scan(&raw)
	if err != nil {
		return nil, d.classify(ctx, runCtx, err)
	}

	p, err = plan.Parse(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.PlanExecution, "failed to parse execution plan", err)
	}
	d.log.Debug().
		Float64("total_cost", p.TotalCost).
		Float64("execution_ms", p.ExecutionTimeMs).
		Msg("diagnostic run complete")
	return p, nil
}

// Timeout returns the configured bound.
func (d *Diagnostics) Timeout() time.Duration { return d.timeout }

func (d *Diagnostics) classify(parent, runCtx context.Context, err error) error {
	if parent.Err() != nil {
		return apperrors.Wrap(apperrors.Cancelled, "diagnostic run cancelled", parent.Err())
	}
	if sqlState(err) == sqlStateQueryCanceled || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.DiagnosticTimeout,
			fmt.Sprintf("diagnostic run exceeded %s", d.timeout), err)
	}
	return statementError(parent, apperrors.PlanExecution, "statement failed during diagnostic run", err)
}
