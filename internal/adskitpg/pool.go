package adskitpg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Open connects a small pgx pool, verifies connectivity, and ensures the schema.
func Open(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("adskitpg.parse_config: %w", err)
	}
	config.MinConns = 1
	config.MaxConns = 4
	config.MaxConnLifetime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	pool, connectErr := pgxpool.NewWithConfig(ctx, config)
	if connectErr != nil {
		return nil, fmt.Errorf("adskitpg.connect: %w", connectErr)
	}
	if pingErr := pool.Ping(ctx); pingErr != nil {
		pool.Close()
		return nil, fmt.Errorf("adskitpg.ping: %w", pingErr)
	}
	if schemaErr := EnsureSchema(ctx, pool); schemaErr != nil {
		pool.Close()
		return nil, fmt.Errorf("adskitpg.schema: %w", schemaErr)
	}
	return pool, nil
}
