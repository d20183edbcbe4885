// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Options are the user's connection inputs.
type Options struct {
	URI         string
	Service     string
	ServiceFile string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// Keychain returns a stored DSN, or "" when none is stored. It may be nil.
	Keychain func() (string, error)
}

// Resolved is a connection string ready for pgx plus where it came from.
type Resolved struct {
	ConnString string
	Source     Source
	// Detail is a human label such as the service name or file path.
	Detail string
}

// ErrNotConfigured means no connection source produced a DSN.
var ErrNotConfigured = errors.New("no database connection configured")

var libpqVars = []string{"PGHOST", "PGHOSTADDR", "PGPORT", "PGDATABASE", "PGUSER", "PGSERVICE"}

// Resolve picks a connection string. Explicit inputs (URI, then service)
// win; otherwise PRECINCT_DSN, DATABASE_URL, the keychain, the first entry of
// the service file and finally libpq PG* variables are tried in order.
// URI and Service are mutually exclusive.
func Resolve(opts Options) (Resolved, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if opts.URI != "" && opts.Service != "" {
		return Resolved{}, errors.New("--uri and --service are mutually exclusive")
	}

	if opts.URI != "" {
		conn, err := Parse(opts.URI)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{ConnString: conn, Source: SourceFlag}, nil
	}

	path := ServiceFilePath(opts.ServiceFile, getenv)
	if opts.Service != "" {
		conn, name, err := FromService(path, opts.Service)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{ConnString: conn, Source: SourceService, Detail: fmt.Sprintf("%s (%s)", name, path)}, nil
	}

	for _, c := range []struct {
		env    string
		source Source
	}{
		{"PRECINCT_DSN", SourceEnvDSN},
		{"DATABASE_URL", SourceDatabaseURL},
	} {
		if v := strings.TrimSpace(getenv(c.env)); v != "" {
			conn, err := Parse(v)
			if err != nil {
				return Resolved{}, fmt.Errorf("%s: %w", c.env, err)
			}
			return Resolved{ConnString: conn, Source: c.source}, nil
		}
	}

	if opts.Keychain != nil {
		if v, err := opts.Keychain(); err == nil && strings.TrimSpace(v) != "" {
			conn, err := Parse(v)
			if err != nil {
				return Resolved{}, fmt.Errorf("stored DSN: %w", err)
			}
			return Resolved{ConnString: conn, Source: SourceKeychain}, nil
		}
	}

	conn, name, err := FromService(path, "")
	if err == nil {
		return Resolved{ConnString: conn, Source: SourceService, Detail: fmt.Sprintf("%s (%s, first entry)", name, path)}, nil
	}
	if opts.ServiceFile != "" {
		return Resolved{}, err
	}

	for _, k := range libpqVars {
		if getenv(k) != "" {
			// pgx reads the PG* variables itself from an empty string
			return Resolved{ConnString: "", Source: SourceLibpqEnv}, nil
		}
	}
	return Resolved{}, ErrNotConfigured
}

// Describe renders where the connection came from.
func (r Resolved) Describe() string {
	if r.Detail != "" {
		return string(r.Source) + ": " + r.Detail
	}
	return string(r.Source)
}
