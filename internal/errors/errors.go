// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines typed errors with categories for user-friendly reporting.
// Every failure that can end an optimization session carries a machine-readable
// Kind, and every Kind maps to a distinct process exit code so a calling driver
// can tell cancellation from failure from success.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// Connection indicates the database could not be reached or the connection broke.
	Connection Kind = "connection"
	// SchemaResolution indicates a referenced table does not exist or catalog lookup failed.
	SchemaResolution Kind = "schema_resolution"
	// PlanExecution indicates the statement failed during diagnostic execution.
	PlanExecution Kind = "plan_execution"
	// DiagnosticTimeout indicates diagnostic execution exceeded its bound.
	DiagnosticTimeout Kind = "diagnostic_timeout"
	// ModelTransient indicates a rate limit or network failure talking to the model.
	ModelTransient Kind = "model_transient"
	// ModelOutput indicates the model returned malformed or unvalidatable output.
	ModelOutput Kind = "model_output"
	// Protocol indicates a malformed inbound structured record.
	Protocol Kind = "protocol"
	// ClarificationLimit indicates the intent correction cap was reached.
	ClarificationLimit Kind = "clarification_limit"
	// Optimization indicates the optimizer could not produce a result for a reason
	// other than malformed model output.
	Optimization Kind = "optimization"
	// Config indicates invalid flags, configuration or input.
	Config Kind = "config"
	// Cancelled is the explicit user cancel outcome. It is not a failure.
	Cancelled Kind = "cancelled"
	// Unknown is used for errors that carry no kind.
	Unknown Kind = "unknown"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *E) Unwrap() error { return e.Err }

// Is reports whether target is an *E of the same kind.
// A target with an empty kind matches any *E.
func (e *E) Is(target error) bool {
	t, ok := target.(*E)
	if !ok {
		return false
	}
	return t.Kind == "" || t.Kind == e.Kind
}

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the outermost *E in err's chain, or Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// MessageOf returns the human-friendly message of the outermost *E in err's
// chain, falling back to err.Error().
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var e *E
	if stderrors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

// Exit codes, one per kind. Zero is reserved for success.
var exitCodes = map[Kind]int{
	Cancelled:          2,
	Connection:         3,
	SchemaResolution:   4,
	PlanExecution:      5,
	DiagnosticTimeout:  6,
	ModelTransient:     7,
	ModelOutput:        8,
	Protocol:           9,
	ClarificationLimit: 10,
	Optimization:       11,
	Config:             64,
}

// ExitCode maps a kind to its process exit code. Unclassified errors exit with 1.
func ExitCode(kind Kind) int {
	if kind == "" {
		return 0
	}
	if code, ok := exitCodes[kind]; ok {
		return code
	}
	return 1
}

// ExitCodeOf is ExitCode(KindOf(err)).
func ExitCodeOf(err error) int {
	return ExitCode(KindOf(err))
}
