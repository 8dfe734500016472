package adskitpg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tyemirov/adsdash/internal/adskit"
)

// PostgresAuditStore appends audit events to the api_logs table.
type PostgresAuditStore struct {
	pool *pgxpool.Pool
}

// NewPostgresAuditStore constructs a Postgres audit store.
func NewPostgresAuditStore(pool *pgxpool.Pool) *PostgresAuditStore {
	return &PostgresAuditStore{pool: pool}
}

// Append inserts one event row.
func (store *PostgresAuditStore) Append(ctx context.Context, event adskit.AuditEvent) error {
	details, encodeErr := encodeDetails(event.Details)
	if encodeErr != nil {
		return fmt.Errorf("audit_store.append.pgx: %w", encodeErr)
	}
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO api_logs (id, user_id, severity, context, api, message, details, created_at_unix)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, event.ID, event.UserID, string(event.Severity), event.Context, event.API, event.Message, details, event.CreatedAt.Unix())
	if execErr != nil {
		return fmt.Errorf("audit_store.append.pgx: %w", execErr)
	}
	return nil
}

func encodeDetails(details map[string]any) (string, error) {
	if len(details) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(details)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
