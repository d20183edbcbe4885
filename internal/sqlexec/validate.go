// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"fmt"
	"sync/atomic"

	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/sqltext"
)

var statementSeq atomic.Uint64

// Validator checks that a statement is well formed without executing it.
// It runs the local lexical check first, then asks the server to PREPARE the
// statement, which parses and plans it against the live catalog.
type Validator struct {
	conn Conn
}

// NewValidator creates a Validator over the session connection.
func NewValidator(conn Conn) *Validator {
	return &Validator{conn: conn}
}

// Validate returns nil when sql parses and plans. A rejected statement
// yields a plan_execution error; a broken connection yields connection.
func (v *Validator) Validate(ctx context.Context, sql string) error {
	if err := sqltext.CheckSyntax(sql); err != nil {
		return apperrors.Wrap(apperrors.PlanExecution, "invalid query", err)
	}
	q, err := sqltext.Parse(sql)
	if err != nil {
		return apperrors.Wrap(apperrors.PlanExecution, "invalid query", err)
	}

	name := fmt.Sprintf("precinct_check_%d", statementSeq.Add(1))
	if _, err := v.conn.Exec(ctx, "PREPARE "+name+" AS "+q.Normalized); err != nil {
		return statementError(ctx, apperrors.PlanExecution, "invalid query", err)
	}
	if _, err := v.conn.Exec(ctx, "DEALLOCATE "+name); err != nil {
		return connectionError(ctx, "failed to release prepared statement", err)
	}
	return nil
}
