// Copyright (c) 2025 Precinct
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "precinct/cli/internal/errors"
	"precinct/cli/internal/logging"
)

// Conn is the subset of a pgx connection used by this package.
// *pgxpool.Conn and *pgx.Conn both satisfy it.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Handle owns the single connection of one session. It is never shared:
// the pool is capped at one connection and that connection stays acquired
// until Close.
type Handle struct {
	pool *pgxpool.Pool
	conn *pgxpool.Conn
}

// Open connects to connString and acquires the session connection.
// An empty connString falls back to libpq PG* environment variables.
func Open(ctx context.Context, connString string) (*Handle, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Connection, "invalid connection string", errors.New(logging.Mask(err.Error())))
	}
	cfg.MaxConns = 1
	cfg.MinConns = 0
	cfg.ConnConfig.RuntimeParams["application_name"] = "precinct"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Connection, "failed to create connection pool", err)
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		pool.Close()
		return nil, connectionError(ctx, "failed to connect to database", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Release()
		pool.Close()
		return nil, connectionError(ctx, "database did not answer ping", err)
	}
	return &Handle{pool: pool, conn: conn}, nil
}

// Conn returns the session connection.
func (h *Handle) Conn() Conn { return h.conn }

// Target describes the server in a password-free form, e.g. "db@host:5432".
func (h *Handle) Target() string {
	c := h.conn.Conn().Config()
	return fmt.Sprintf("%s@%s:%d", c.Database, c.Host, c.Port)
}

// ServerVersion reports the server's version string.
func (h *Handle) ServerVersion(ctx context.Context) (string, error) {
	var v string
	if err := h.conn.QueryRow(ctx, "SHOW server_version").Scan(&v); err != nil {
		return "", connectionError(ctx, "failed to read server version", err)
	}
	return v, nil
}

// Close releases the connection and closes the pool. It is safe to call
// more than once.
func (h *Handle) Close() {
	if h == nil {
		return
	}
	if h.conn != nil {
		h.conn.Release()
		h.conn = nil
	}
	if h.pool != nil {
		h.pool.Close()
		h.pool = nil
	}
}

// connectionError maps an error without a server-side SQLSTATE.
func connectionError(ctx context.Context, msg string, err error) error {
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return apperrors.Wrap(apperrors.Cancelled, "cancelled", err)
	}
	return apperrors.Wrap(apperrors.Connection, msg, err)
}

// statementError classifies a failure of a statement sent by the session.
// Errors reported by the server get kind; everything else means the
// connection itself is unusable.
func statementError(ctx context.Context, kind apperrors.Kind, msg string, err error) error {
	if sqlState(err) != "" {
		return apperrors.Wrap(kind, msg, err)
	}
	return connectionError(ctx, msg, err)
}

// sqlState returns the SQLSTATE of a server error, or "".
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
