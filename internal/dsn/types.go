// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package dsn turns the many ways a user can point precinct at a PostgreSQL
// database into one connection string: a URI, a keyword/value string, a
// pg_service.conf entry, a stored keychain entry or libpq PG* variables.
package dsn

import "fmt"

// Source records where a connection string came from.
type Source string

const (
	SourceFlag        Source = "--uri flag"
	SourceService     Source = "service file"
	SourceEnvDSN      Source = "PRECINCT_DSN environment variable"
	SourceDatabaseURL Source = "DATABASE_URL environment variable"
	SourceKeychain    Source = "OS keychain"
	SourceLibpqEnv    Source = "PG* environment variables"
)

// DSNInfo contains the parts of a PostgreSQL URI.
type DSNInfo struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Params   map[string]string
	Original string
}

// ParseError represents an error that occurred during DSN parsing
type ParseError struct {
	DSN    string
	Reason string
	Hint   string
}

func (e *ParseError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("invalid DSN format: %s\nHint: %s", e.Reason, e.Hint)
	}
	return fmt.Sprintf("invalid DSN format: %s", e.Reason)
}

// NewParseError creates a new ParseError
func NewParseError(dsn, reason, hint string) *ParseError {
	return &ParseError{DSN: dsn, Reason: reason, Hint: hint}
}
