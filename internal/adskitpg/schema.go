package adskitpg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the credential and audit tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ad_credentials (
    user_id TEXT PRIMARY KEY,
    access_token TEXT NOT NULL DEFAULT '',
    refresh_token TEXT NOT NULL DEFAULT '',
    updated_at_unix BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS api_logs (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    severity TEXT NOT NULL,
    context TEXT NOT NULL,
    api TEXT NOT NULL,
    message TEXT NOT NULL DEFAULT '',
    details TEXT NOT NULL DEFAULT '',
    created_at_unix BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_api_logs_user ON api_logs (user_id);
CREATE INDEX IF NOT EXISTS idx_api_logs_created ON api_logs (created_at_unix);
`)
	return err
}
