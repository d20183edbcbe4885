// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package session

import (
	"time"

	"github.com/google/uuid"

	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/intent"
	"precinct/cli/internal/optimizer"
	"precinct/cli/internal/plan"
	"precinct/cli/internal/sqlexec"
	"precinct/cli/internal/sqltext"
)

// Session is the explicit context of one optimization dialogue. It is
// owned by a single Controller run and never shared.
type Session struct {
	ID    uuid.UUID
	Query *sqltext.Query
	// Schemas and Plan are captured once before the dialogue starts and
	// are not refreshed.
	Schemas      sqlexec.Schemas
	Plan         *plan.ExecutionPlan
	Intent       intent.Record
	Optimization *optimizer.Result

	State   State
	Outcome Outcome
	// Err is set when Outcome is OutcomeFailed.
	Err error

	Started  time.Time
	Finished time.Time
}

// New creates a session for q.
func New(q *sqltext.Query) *Session {
	return &Session{
		ID:      uuid.New(),
		Query:   q,
		State:   StateInit,
		Started: time.Now(),
	}
}

// Done reports whether the session reached its terminal state.
func (s *Session) Done() bool { return s.State == StateDone }

// OptimizedQuery returns the accepted rewrite, or "".
func (s *Session) OptimizedQuery() string {
	if s.Optimization == nil {
		return ""
	}
	return s.Optimization.Query
}

// ErrorKind returns the kind that ended the session: "" for success and
// for outcomes still pending, cancelled for a cancel.
func (s *Session) ErrorKind() apperrors.Kind {
	switch s.Outcome {
	case OutcomeCancelled:
		return apperrors.Cancelled
	case OutcomeFailed:
		return apperrors.KindOf(s.Err)
	}
	return ""
}

// ExitCode maps the outcome to a process exit code.
func (s *Session) ExitCode() int {
	return apperrors.ExitCode(s.ErrorKind())
}
