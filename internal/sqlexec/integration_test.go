// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/sqltext"
)

// openTestHandle connects to PRECINCT_TEST_DSN and creates fixture tables
// a and b in a scratch schema. Tests are skipped when the variable is unset.
func openTestHandle(t *testing.T) *Handle {
	t.Helper()
	dsn := os.Getenv("PRECINCT_TEST_DSN")
	if dsn == "" {
		t.Skip("PRECINCT_TEST_DSN not set")
	}
	ctx := context.Background()
	h, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(h.Close)

	for _, stmt := range []string{
		`DROP SCHEMA IF EXISTS precinct_test CASCADE`,
		`CREATE SCHEMA precinct_test`,
		`SET search_path TO precinct_test`,
		`CREATE TABLE a (id integer PRIMARY KEY, name text NOT NULL)`,
		`CREATE TABLE b (id serial PRIMARY KEY, aid integer NOT NULL REFERENCES a(id), note varchar(40))`,
		`CREATE INDEX b_aid_idx ON b (aid)`,
		`INSERT INTO a SELECT g, 'n' || g FROM generate_series(1, 50) g`,
		`INSERT INTO b (aid) SELECT (g % 50) + 1 FROM generate_series(1, 200) g`,
	} {
		_, err := h.Conn().Exec(ctx, stmt)
		require.NoError(t, err, stmt)
	}
	t.Cleanup(func() {
		_, _ = h.Conn().Exec(context.Background(), `DROP SCHEMA IF EXISTS precinct_test CASCADE`)
	})
	return h
}

func countRows(t *testing.T, h *Handle, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.Conn().QueryRow(context.Background(), "SELECT count(*) FROM "+table).Scan(&n))
	return n
}

func TestIntegrationInspectJoin(t *testing.T) {
	h := openTestHandle(t)
	q, err := sqltext.Parse("SELECT * FROM a JOIN b ON a.id = b.aid")
	require.NoError(t, err)

	schemas, err := NewSchemaInspector(h.Conn()).Inspect(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, schemas.Names())
	assert.Equal(t, "precinct_test.b", schemas["b"].Resolved)
	assert.Equal(t, []Column{{"id", "integer"}, {"aid", "integer"}, {"note", "character varying(40)"}}, schemas["b"].Columns)

	var names []string
	for _, idx := range schemas["b"].Indexes {
		names = append(names, idx.Name)
	}
	assert.Equal(t, []string{"b_aid_idx", "b_pkey"}, names)
	assert.Equal(t, []string{"aid"}, schemas["b"].Indexes[0].Columns)
	assert.True(t, schemas["b"].Indexes[1].Unique)
}

func TestIntegrationInspectUnknownTable(t *testing.T) {
	h := openTestHandle(t)
	q, err := sqltext.Parse("SELECT * FROM a JOIN missing m ON m.id = a.id")
	require.NoError(t, err)
	_, err = NewSchemaInspector(h.Conn()).Inspect(context.Background(), q)
	assert.Equal(t, apperrors.SchemaResolution, apperrors.KindOf(err))
}

func TestIntegrationDiagnosticsLeaveDataUnchanged(t *testing.T) {
	h := openTestHandle(t)
	d := NewDiagnostics(h.Conn(), 5*time.Second, zerolog.Nop())

	for _, sql := range []string{
		"INSERT INTO b (aid) SELECT id FROM a",
		"UPDATE a SET name = 'changed'",
		"DELETE FROM b WHERE aid < 10",
	} {
		beforeA, beforeB := countRows(t, h, "a"), countRows(t, h, "b")
		q, err := sqltext.Parse(sql)
		require.NoError(t, err)
		p, err := d.Run(context.Background(), q)
		require.NoError(t, err, sql)
		assert.NotNil(t, p.Root)
		assert.Equal(t, beforeA, countRows(t, h, "a"), sql)
		assert.Equal(t, beforeB, countRows(t, h, "b"), sql)
	}
	var changed int64
	require.NoError(t, h.Conn().QueryRow(context.Background(), "SELECT count(*) FROM a WHERE name = 'changed'").Scan(&changed))
	assert.Zero(t, changed)
}

func TestIntegrationDiagnosticsTimeoutRollsBack(t *testing.T) {
	h := openTestHandle(t)
	d := NewDiagnostics(h.Conn(), 200*time.Millisecond, zerolog.Nop())
	before := countRows(t, h, "b")

	q, err := sqltext.Parse("INSERT INTO b (aid) SELECT 1 FROM pg_sleep(3)")
	require.NoError(t, err)
	_, err = d.Run(context.Background(), q)
	assert.Equal(t, apperrors.DiagnosticTimeout, apperrors.KindOf(err))

	assert.Equal(t, before, countRows(t, h, "b"))
	var inTx bool
	require.NoError(t, h.Conn().QueryRow(context.Background(),
		"SELECT pg_current_xact_id_if_assigned() IS NOT NULL").Scan(&inTx))
	assert.False(t, inTx)
}

func TestIntegrationValidatorAndExecutor(t *testing.T) {
	h := openTestHandle(t)
	v := NewValidator(h.Conn())
	require.NoError(t, v.Validate(context.Background(), "SELECT name FROM a WHERE id = 3"))
	assert.Equal(t, apperrors.PlanExecution, apperrors.KindOf(v.Validate(context.Background(), "SELECT nope FROM a")))

	res, err := NewExecutor(h.Conn(), zerolog.Nop()).Run(context.Background(), "SELECT id, name FROM a ORDER BY id", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, res.Columns)
	assert.Len(t, res.Rows, 5)
	assert.True(t, res.Truncated)
	assert.Equal(t, []any{int32(1), "n1"}, res.Rows[0])

	res, err = NewExecutor(h.Conn(), zerolog.Nop()).Run(context.Background(), "UPDATE a SET name = 'x' WHERE id <= 2", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.RowsAffected)
}
