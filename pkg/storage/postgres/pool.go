// Package postgres is the production persistence layer backing C2's Context
// Store, C4's Workflow Definition Registry, and C5's Execution Store, all
// over one jackc/pgx/v5 pool queried through jmoiron/sqlx; schema changes
// ship as pressly/goose/v3 migrations under /migrations (spec.md §4.2, §4.4,
// §4.5: "persistence is durable and survives process restarts").
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/ledgerflow/workflowengine/migrations"
)

// Open connects a pgxpool.Pool and wraps it in an *sqlx.DB so the three
// repositories below can use sqlx's struct-scanning query helpers.
func Open(ctx context.Context, dsn string, maxConns int) (*sqlx.DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	db := sqlx.NewDb(stdlib.OpenDBFromPool(pool), "pgx")
	return db, nil
}

// Migrate applies every pending goose migration embedded under /migrations.
func Migrate(db *sqlx.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db.DB, ".")
}
