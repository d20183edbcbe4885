// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/sqltext"
)

// Column is one table column with its declared type.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Index describes an index on a table.
type Index struct {
	Name string `json:"name"`
	// Columns lists the key columns in index order. Expression keys appear
	// as their expression text.
	Columns    []string `json:"columns"`
	Unique     bool     `json:"unique"`
	Primary    bool     `json:"primary,omitempty"`
	Definition string   `json:"definition,omitempty"`
}

// TableSchema holds the catalog metadata of one referenced table.
type TableSchema struct {
	// Name is the reference as written in the query, case folded.
	Name string `json:"name"`
	// Resolved is the schema-qualified catalog name.
	Resolved string   `json:"resolved"`
	Kind     string   `json:"kind"`
	Columns  []Column `json:"columns"`
	Indexes  []Index  `json:"indexes"`
}

// Schemas maps a table reference to its metadata.
type Schemas map[string]TableSchema

// Names returns the table references in sorted order.
func (s Schemas) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Summary renders the schemas compactly for a model prompt, one table per
// block:
//
//	orders (public.orders, table)
//	  columns: id integer, customer_id integer, placed_at timestamp
//	  index orders_pkey (id) unique
func (s Schemas) Summary() string {
	var b strings.Builder
	for i, name := range s.Names() {
		t := s[name]
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s (%s, %s)\n", name, t.Resolved, t.Kind)
		cols := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			cols[j] = c.Name + " " + c.Type
		}
		fmt.Fprintf(&b, "  columns: %s\n", strings.Join(cols, ", "))
		if len(t.Indexes) == 0 {
			b.WriteString("  no indexes\n")
		}
		for _, idx := range t.Indexes {
			fmt.Fprintf(&b, "  index %s (%s)", idx.Name, strings.Join(idx.Columns, ", "))
			if idx.Unique {
				b.WriteString(" unique")
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// SchemaInspector resolves table references against the live catalog.
// Results are cached per reference so repeated lookups within a session
// cost one round trip.
type SchemaInspector struct {
	conn  Conn
	cache map[string]TableSchema
	mu    sync.RWMutex
}

// NewSchemaInspector creates a SchemaInspector over the session connection.
func NewSchemaInspector(conn Conn) *SchemaInspector {
	return &SchemaInspector{
		conn:  conn,
		cache: make(map[string]TableSchema),
	}
}

// Inspect returns metadata for every table q references. A reference that
// does not resolve to a relation fails the whole call; nothing is skipped.
func (si *SchemaInspector) Inspect(ctx context.Context, q *sqltext.Query) (Schemas, error) {
	out := make(Schemas, len(q.Refs))
	for _, ref := range q.Refs {
		ts, err := si.table(ctx, ref)
		if err != nil {
			return nil, err
		}
		out[ref.String()] = ts
	}
	return out, nil
}

func (si *SchemaInspector) table(ctx context.Context, ref sqltext.TableRef) (TableSchema, error) {
	key := ref.String()
	si.mu.RLock()
	if ts, ok := si.cache[key]; ok {
		si.mu.RUnlock()
		return ts, nil
	}
	si.mu.RUnlock()

	ts := TableSchema{Name: key}
	var oid uint32
	err := si.conn.QueryRow(ctx, `
		SELECT c.oid, n.nspname || '.' || c.relname,
		       CASE c.relkind
		         WHEN 'r' THEN 'table' WHEN 'p' THEN 'partitioned table'
		         WHEN 'v' THEN 'view' WHEN 'm' THEN 'materialized view'
		         WHEN 'f' THEN 'foreign table' ELSE 'relation' END
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.oid = to_regclass($1::text)`, ref.Qualified()).Scan(&oid, &ts.Resolved, &ts.Kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return ts, apperrors.Newf(apperrors.SchemaResolution, "table %q does not exist", key)
	}
	if err != nil {
		return ts, statementError(ctx, apperrors.SchemaResolution, fmt.Sprintf("failed to resolve table %q", key), err)
	}

	if ts.Columns, err = si.loadColumns(ctx, oid); err != nil {
		return ts, statementError(ctx, apperrors.SchemaResolution, fmt.Sprintf("failed to load columns of %q", key), err)
	}
	if ts.Indexes, err = si.loadIndexes(ctx, oid); err != nil {
		return ts, statementError(ctx, apperrors.SchemaResolution, fmt.Sprintf("failed to load indexes of %q", key), err)
	}

	si.mu.Lock()
	si.cache[key] = ts
	si.mu.Unlock()
	return ts, nil
}

func (si *SchemaInspector) loadColumns(ctx context.Context, oid uint32) ([]Column, error) {
	rows, err := si.conn.Query(ctx, `
		SELECT a.attname, format_type(a.atttypid, a.atttypmod)
		FROM pg_attribute a
		WHERE a.attrelid = $1 AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY a.attnum`, oid)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Column, error) {
		var c Column
		err := row.Scan(&c.Name, &c.Type)
		return c, err
	})
}

func (si *SchemaInspector) loadIndexes(ctx context.Context, oid uint32) ([]Index, error) {
	rows, err := si.conn.Query(ctx, `
		SELECT ic.relname, i.indisunique, i.indisprimary,
		       ARRAY(SELECT pg_get_indexdef(i.indexrelid, k, true)
		             FROM generate_series(1, i.indnkeyatts) AS k ORDER BY k),
		       pg_get_indexdef(i.indexrelid)
		FROM pg_index i
		JOIN pg_class ic ON ic.oid = i.indexrelid
		WHERE i.indrelid = $1
		ORDER BY ic.relname`, oid)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Index, error) {
		var idx Index
		err := row.Scan(&idx.Name, &idx.Unique, &idx.Primary, &idx.Columns, &idx.Definition)
		return idx, err
	})
}

// ClearCache drops cached metadata.
func (si *SchemaInspector) ClearCache() {
	si.mu.Lock()
	defer si.mu.Unlock()
	si.cache = make(map[string]TableSchema)
}
