// Package database provides support for accessing the relational store
// that backs the chain and creator repositories: a pooled Postgres
// connection, a readiness check, and a small transaction helper.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config is the set of knobs needed to construct a connection pool.
type Config struct {
	DSN               string
	MaxConns          int32
	StatementTimeout  time.Duration
	ConnectTimeout    time.Duration
}

// Open constructs a pgxpool.Pool honoring Config, following the same
// "construct once, inject everywhere" lifecycle as the rest of this
// project's singletons.
func Open(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	if cfg.StatementTimeout > 0 {
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}

	connCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening database pool: %w", err)
	}

	if err := pool.Ping(connCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// StatusCheck validates the database is ready to accept requests, used by
// the /debug/readiness endpoint.
func StatusCheck(ctx context.Context, pool *pgxpool.Pool) error {
	var tmp bool
	const q = `SELECT true`
	return pool.QueryRow(ctx, q).Scan(&tmp)
}

// WithTx runs fn inside a transaction, setting a local statement_timeout
// first so no query issued by fn can hang past the configured ceiling. fn's
// error, if any, causes a rollback; otherwise the transaction commits.
func WithTx(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if timeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("setting statement timeout: %w", err)
		}
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
