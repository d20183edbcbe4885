// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgservicefile"
)

// ErrNoServiceFile is returned when the service file does not exist.
var ErrNoServiceFile = errors.New("service file not found")

// ServiceFilePath returns explicit when set, otherwise $PGSERVICEFILE,
// otherwise ~/.pg_service.conf.
func ServiceFilePath(explicit string, getenv func(string) string) string {
	if explicit != "" {
		return explicit
	}
	if p := getenv("PGSERVICEFILE"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pg_service.conf"
	}
	return filepath.Join(home, ".pg_service.conf")
}

// FromService builds a keyword/value connection string from the named
// section of the service file at path. An empty name selects the first
// section in the file.
func FromService(path, name string) (conn string, service string, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", "", fmt.Errorf("%w: %s", ErrNoServiceFile, path)
		}
		return "", "", err
	}
	defer f.Close()

	sf, err := pgservicefile.ParseServicefile(f)
	if err != nil {
		return "", "", fmt.Errorf("parse service file %s: %w", path, err)
	}

	var svc *pgservicefile.Service
	if name == "" {
		if len(sf.Services) == 0 {
			return "", "", fmt.Errorf("no services defined in %s", path)
		}
		svc = sf.Services[0]
	} else {
		svc, err = sf.GetService(name)
		if err != nil {
			return "", "", fmt.Errorf("service %q not found in %s", name, path)
		}
	}
	return keywordValue(svc.Settings), svc.Name, nil
}

// keywordValue renders settings as a libpq keyword/value string in stable order.
func keywordValue(settings map[string]string) string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+quoteValue(settings[k]))
	}
	return strings.Join(parts, " ")
}

func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
