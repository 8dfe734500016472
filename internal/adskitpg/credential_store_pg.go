package adskitpg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tyemirov/adsdash/internal/adskit"
)

// PostgresCredentialStore persists Google Ads tokens in PostgreSQL through pgx.
type PostgresCredentialStore struct {
	pool *pgxpool.Pool
}

// NewPostgresCredentialStore constructs a Postgres store.
func NewPostgresCredentialStore(pool *pgxpool.Pool) *PostgresCredentialStore {
	return &PostgresCredentialStore{pool: pool}
}

// Get loads the credential row for the user.
func (store *PostgresCredentialStore) Get(ctx context.Context, userID string) (adskit.UserCredential, error) {
	if strings.TrimSpace(userID) == "" {
		return adskit.UserCredential{}, fmt.Errorf("credential_store.get.pgx: %w", adskit.ErrEmptyUserID)
	}
	credential := adskit.UserCredential{UserID: userID}
	row := store.pool.QueryRow(ctx, `
SELECT access_token, refresh_token
FROM ad_credentials
WHERE user_id = $1
`, userID)
	if scanErr := row.Scan(&credential.AccessToken, &credential.RefreshToken); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return adskit.UserCredential{}, fmt.Errorf("credential_store.get.pgx: %w", adskit.ErrCredentialNotFound)
		}
		return adskit.UserCredential{}, fmt.Errorf("credential_store.get.pgx: %w", scanErr)
	}
	return credential, nil
}

// UpdateAccessToken replaces the token only while the stored value matches expectedAccessToken.
func (store *PostgresCredentialStore) UpdateAccessToken(ctx context.Context, userID string, expectedAccessToken string, newAccessToken string) error {
	tag, execErr := store.pool.Exec(ctx, `
UPDATE ad_credentials
SET access_token = $1, updated_at_unix = $2
WHERE user_id = $3 AND access_token = $4
`, newAccessToken, time.Now().UTC().Unix(), userID, expectedAccessToken)
	if execErr != nil {
		return fmt.Errorf("credential_store.update.pgx: %w", execErr)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if scanErr := store.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ad_credentials WHERE user_id = $1)`, userID).Scan(&exists); scanErr != nil {
		return fmt.Errorf("credential_store.update.pgx: %w", scanErr)
	}
	if !exists {
		return fmt.Errorf("credential_store.update.pgx: %w", adskit.ErrCredentialNotFound)
	}
	return fmt.Errorf("credential_store.update.pgx: %w", adskit.ErrCredentialConflict)
}

// SaveGrant upserts both tokens.
func (store *PostgresCredentialStore) SaveGrant(ctx context.Context, userID string, accessToken string, refreshToken string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("credential_store.save.pgx: %w", adskit.ErrEmptyUserID)
	}
	_, execErr := store.pool.Exec(ctx, `
INSERT INTO ad_credentials (user_id, access_token, refresh_token, updated_at_unix)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE
SET access_token = EXCLUDED.access_token,
    refresh_token = EXCLUDED.refresh_token,
    updated_at_unix = EXCLUDED.updated_at_unix
`, userID, accessToken, refreshToken, time.Now().UTC().Unix())
	if execErr != nil {
		return fmt.Errorf("credential_store.save.pgx: %w", execErr)
	}
	return nil
}
