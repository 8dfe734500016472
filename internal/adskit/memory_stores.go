package adskit

import (
	"context"
	"strings"
	"sync"
)

// MemoryCredentialStore is an in-memory store intended for tests and dev.
type MemoryCredentialStore struct {
	mutex   sync.Mutex
	records map[string]UserCredential
}

// NewMemoryCredentialStore creates an empty in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{records: make(map[string]UserCredential)}
}

// Get returns the credential stored for the user.
func (store *MemoryCredentialStore) Get(ctx context.Context, userID string) (UserCredential, error) {
	if strings.TrimSpace(userID) == "" {
		return UserCredential{}, ErrEmptyUserID
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.records[userID]
	if !ok {
		return UserCredential{}, ErrCredentialNotFound
	}
	return record, nil
}

// UpdateAccessToken swaps the access token when the stored value matches expectedAccessToken.
func (store *MemoryCredentialStore) UpdateAccessToken(ctx context.Context, userID string, expectedAccessToken string, newAccessToken string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.records[userID]
	if !ok {
		return ErrCredentialNotFound
	}
	if record.AccessToken != expectedAccessToken {
		return ErrCredentialConflict
	}
	record.AccessToken = newAccessToken
	store.records[userID] = record
	return nil
}

// SaveGrant stores both tokens, replacing any existing credential.
func (store *MemoryCredentialStore) SaveGrant(ctx context.Context, userID string, accessToken string, refreshToken string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrEmptyUserID
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.records[userID] = UserCredential{
		UserID:       userID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	return nil
}

// MemoryAuditStore keeps audit events in memory.
type MemoryAuditStore struct {
	mutex  sync.Mutex
	events []AuditEvent
}

// NewMemoryAuditStore constructs an empty in-memory audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

// Append records the event.
func (store *MemoryAuditStore) Append(ctx context.Context, event AuditEvent) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.events = append(store.events, event)
	return nil
}

// Events returns a copy of all recorded events.
func (store *MemoryAuditStore) Events() []AuditEvent {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	clone := make([]AuditEvent, len(store.events))
	copy(clone, store.events)
	return clone
}
