package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func NewDB(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{Pool: pool}, nil
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS llm_calls (
	call_id    uuid PRIMARY KEY,
	project    text NOT NULL,
	model      text NOT NULL,
	api_base   text NOT NULL,
	status     text NOT NULL,
	error_type text,
	attempts   int NOT NULL,
	elapsed_ms bigint NOT NULL,
	called_at  timestamptz NOT NULL
)`

// EnsureSchema creates the audit table if it is missing. The table is the
// only relation this tool owns, so plain DDL beats a migration framework.
func (d *DB) EnsureSchema(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, auditSchema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (d *DB) Close() {
	if d != nil && d.Pool != nil {
		d.Pool.Close()
	}
}
