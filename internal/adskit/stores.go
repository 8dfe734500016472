package adskit

import (
	"context"
	"errors"
)

var (
	// ErrCredentialNotFound indicates no credential row exists for the user.
	ErrCredentialNotFound = errors.New("credential_store.not_found")
	// ErrCredentialConflict indicates the stored access token changed since it was read.
	ErrCredentialConflict = errors.New("credential_store.conflict")
	// ErrEmptyUserID indicates a store call without a user id.
	ErrEmptyUserID = errors.New("credential_store.empty_user_id")
)

// CredentialStore persists per-user Google Ads tokens.
type CredentialStore interface {
	Get(ctx context.Context, userID string) (UserCredential, error)
	// UpdateAccessToken replaces the access token only while the stored value still equals expectedAccessToken.
	UpdateAccessToken(ctx context.Context, userID string, expectedAccessToken string, newAccessToken string) error
	SaveGrant(ctx context.Context, userID string, accessToken string, refreshToken string) error
}

// AuditStore appends audit events.
type AuditStore interface {
	Append(ctx context.Context, event AuditEvent) error
}
