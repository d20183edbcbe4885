// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/sqltext"
)

type fakeRow struct {
	raw []byte
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.raw
	return nil
}

// fakeTx embeds pgx.Tx so only the methods under test need bodies.
type fakeTx struct {
	pgx.Tx
	execs      []string
	row        fakeRow
	rolledBack bool
	block      bool
}

func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.execs = append(t.execs, sql)
	return pgconn.NewCommandTag("SET"), nil
}

func (t *fakeTx) QueryRow(ctx context.Context, sql string, _ ...any) pgx.Row {
	t.execs = append(t.execs, sql)
	if t.block {
		<-ctx.Done()
		return fakeRow{err: ctx.Err()}
	}
	return t.row
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

type fakeConn struct {
	tx       *fakeTx
	beginErr error
	execs    []string
	execErr  error
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, sql)
	return pgconn.NewCommandTag(""), c.execErr
}

func (c *fakeConn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeConn) QueryRow(context.Context, string, ...any) pgx.Row {
	return fakeRow{err: errors.New("not implemented")}
}

func (c *fakeConn) Begin(context.Context) (pgx.Tx, error) {
	if c.beginErr != nil {
		return nil, c.beginErr
	}
	return c.tx, nil
}

const tinyPlan = `[{"Plan": {"Node Type": "Seq Scan", "Relation Name": "a", "Total Cost": 1.5,
  "Plan Rows": 3, "Actual Rows": 3, "Actual Total Time": 0.01, "Actual Loops": 1},
  "Planning Time": 0.1, "Execution Time": 0.2}]`

func mustParse(t *testing.T, sql string) *sqltext.Query {
	t.Helper()
	q, err := sqltext.Parse(sql)
	require.NoError(t, err)
	return q
}

func TestDiagnosticsRunRollsBack(t *testing.T) {
	tx := &fakeTx{row: fakeRow{raw: []byte(tinyPlan)}}
	d := NewDiagnostics(&fakeConn{tx: tx}, 1500*time.Millisecond, zerolog.Nop())

	p, err := d.Run(context.Background(), mustParse(t, "UPDATE a SET x = 1;"))
	require.NoError(t, err)
	assert.Equal(t, "Seq Scan", p.Root.Kind)
	assert.True(t, tx.rolledBack)
	require.Len(t, tx.execs, 2)
	assert.Equal(t, "SET LOCAL statement_timeout = 1500", tx.execs[0])
	assert.Equal(t, "EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) UPDATE a SET x = 1", tx.execs[1])
}

func TestDiagnosticsErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperrors.Kind
	}{
		{"server cancel", &pgconn.PgError{Code: "57014", Message: "canceling statement due to statement timeout"}, apperrors.DiagnosticTimeout},
		{"undefined column", &pgconn.PgError{Code: "42703", Message: "column \"y\" does not exist"}, apperrors.PlanExecution},
		{"broken pipe", errors.New("conn closed"), apperrors.Connection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := &fakeTx{row: fakeRow{err: tt.err}}
			d := NewDiagnostics(&fakeConn{tx: tx}, time.Second, zerolog.Nop())
			_, err := d.Run(context.Background(), mustParse(t, "SELECT y FROM a"))
			require.Error(t, err)
			assert.Equal(t, tt.want, apperrors.KindOf(err))
			assert.True(t, tx.rolledBack)
		})
	}
}

func TestDiagnosticsClientDeadline(t *testing.T) {
	tx := &fakeTx{block: true}
	d := &Diagnostics{conn: &fakeConn{tx: tx}, timeout: 10 * time.Millisecond, log: zerolog.Nop()}

	start := time.Now()
	_, err := d.Run(context.Background(), mustParse(t, "SELECT pg_sleep(60)"))
	require.Error(t, err)
	assert.Equal(t, apperrors.DiagnosticTimeout, apperrors.KindOf(err))
	assert.True(t, tx.rolledBack)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestDiagnosticsParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tx := &fakeTx{block: true}
	d := NewDiagnostics(&fakeConn{tx: tx}, time.Second, zerolog.Nop())
	_, err := d.Run(ctx, mustParse(t, "SELECT 1"))
	assert.Equal(t, apperrors.Cancelled, apperrors.KindOf(err))
	assert.True(t, tx.rolledBack)
}

func TestDiagnosticsBeginFails(t *testing.T) {
	d := NewDiagnostics(&fakeConn{beginErr: errors.New("dial tcp: refused")}, time.Second, zerolog.Nop())
	_, err := d.Run(context.Background(), mustParse(t, "SELECT 1"))
	assert.Equal(t, apperrors.Connection, apperrors.KindOf(err))
}

func TestValidatorPreparesAndDeallocates(t *testing.T) {
	conn := &fakeConn{}
	v := NewValidator(conn)
	require.NoError(t, v.Validate(context.Background(), "SELECT id FROM a WHERE id = 1;"))
	require.Len(t, conn.execs, 2)
	assert.True(t, strings.HasPrefix(conn.execs[0], "PREPARE precinct_check_"))
	assert.True(t, strings.HasSuffix(conn.execs[0], " AS SELECT id FROM a WHERE id = 1"))
	assert.True(t, strings.HasPrefix(conn.execs[1], "DEALLOCATE precinct_check_"))
}

func TestValidatorRejects(t *testing.T) {
	conn := &fakeConn{}
	err := NewValidator(conn).Validate(context.Background(), "SELECT * FROM")
	assert.Equal(t, apperrors.PlanExecution, apperrors.KindOf(err))
	assert.Empty(t, conn.execs, "local check must fail before the server is asked")

	conn = &fakeConn{execErr: &pgconn.PgError{Code: "42P01", Message: `relation "nope" does not exist`}}
	err = NewValidator(conn).Validate(context.Background(), "SELECT * FROM nope")
	assert.Equal(t, apperrors.PlanExecution, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "42P01")
}

func TestNormalizeValue(t *testing.T) {
	id := [16]byte{0x12, 0x3e, 0x45, 0x67, 0xe8, 0x9b, 0x12, 0xd3, 0xa4, 0x56, 0x42, 0x66, 0x14, 0x17, 0x40, 0x00}
	assert.Equal(t, "123e4567-e89b-12d3-a456-426614174000", NormalizeValue(id))
	assert.Equal(t, "123e4567-e89b-12d3-a456-426614174000", NormalizeValue(id[:]))
	assert.Equal(t, `\x0102`, NormalizeValue([]byte{1, 2}))
	assert.Nil(t, NormalizeValue(nil))
	assert.Equal(t, int64(7), NormalizeValue(int64(7)))

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-01T12:00:00Z", NormalizeValue(ts))

	var num pgtype.Numeric
	require.NoError(t, num.Scan("12.5"))
	assert.Equal(t, "12.5", NormalizeValue(num))
}

func TestResultMarshalJSON(t *testing.T) {
	id := [16]byte{0x12, 0x3e, 0x45, 0x67, 0xe8, 0x9b, 0x12, 0xd3, 0xa4, 0x56, 0x42, 0x66, 0x14, 0x17, 0x40, 0x00}
	data, err := Result{Columns: []string{"id"}, Rows: [][]any{{id}}}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":["id"],"rows":[["123e4567-e89b-12d3-a456-426614174000"]]}`, string(data))
}

func TestSchemasSummary(t *testing.T) {
	s := Schemas{
		"b": {Name: "b", Resolved: "public.b", Kind: "table", Columns: []Column{{"aid", "integer"}}},
		"a": {Name: "a", Resolved: "public.a", Kind: "table",
			Columns: []Column{{"id", "integer"}, {"name", "text"}},
			Indexes: []Index{{Name: "a_pkey", Columns: []string{"id"}, Unique: true, Primary: true}}},
	}
	assert.Equal(t, []string{"a", "b"}, s.Names())
	want := "a (public.a, table)\n" +
		"  columns: id integer, name text\n" +
		"  index a_pkey (id) unique\n" +
		"\n" +
		"b (public.b, table)\n" +
		"  columns: aid integer\n" +
		"  no indexes\n"
	assert.Equal(t, want, s.Summary())
}
