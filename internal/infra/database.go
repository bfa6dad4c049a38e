package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/overlaydao/overlay-users/internal/state"
)

// OpenPostgresStore connects to PostgreSQL, verifies connectivity, ensures
// the state table exists, and returns the store plus the pool for health
// checks and shutdown.
func OpenPostgresStore(ctx context.Context, url string) (*state.PostgresStore, *pgxpool.Pool, error) {
	if url == "" {
		return nil, nil, fmt.Errorf("database url is required")
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse postgres config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := state.NewPostgres(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	return store, pool, nil
}
