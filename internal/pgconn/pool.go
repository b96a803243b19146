package pgconn

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/withobsrvr/pgbulkload/internal/config"
)

// NewPool builds a pgxpool.Pool from the configured descriptor: parse,
// construct, ping. One pool may back several independent Loaders, each
// leasing its own Connection from it and using that connection serially.
func NewPool(ctx context.Context, pg config.PostgresConfig) (*pgxpool.Pool, error) {
	pgxCfg, err := pgxpool.ParseConfig(pg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return pool, nil
}
