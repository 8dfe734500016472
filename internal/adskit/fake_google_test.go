package adskit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"
)

const (
	testUserID        = "user-1"
	testAPIVersion    = "v18"
	freshTokenPayload = `{"access_token":"fresh-token","token_type":"Bearer","expires_in":3600}`
)

type fakeResponse struct {
	status int
	body   string
}

// fakeGoogle serves the OAuth token endpoint and the Google Ads REST endpoints used by the dashboard.
type fakeGoogle struct {
	mutex sync.Mutex

	tokenResponse   fakeResponse
	listResponses   []fakeResponse
	searchResponses map[string]fakeResponse

	tokenCalls  int
	listCalls   int
	searchCalls map[string]int

	lastRefreshToken   string
	lastClientID       string
	lastAuthorization  string
	lastDeveloperToken string
	lastLoginCustomer  string
}

func newFakeGoogle(t *testing.T) (*fakeGoogle, ServiceConfig, *http.Client) {
	t.Helper()
	fake := &fakeGoogle{
		tokenResponse:   fakeResponse{status: http.StatusOK, body: freshTokenPayload},
		searchResponses: map[string]fakeResponse{},
		searchCalls:     map[string]int{},
	}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	configuration := ServiceConfig{
		GoogleClientID:     "client-id",
		GoogleClientSecret: "client-secret",
		GoogleTokenURL:     server.URL + "/token",
		DeveloperToken:     "dev-token",
		AdsAPIBaseURL:      server.URL,
		AdsAPIVersion:      testAPIVersion,
	}
	return fake, configuration, server.Client()
}

func (fake *fakeGoogle) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()

	searchPrefix := "/" + testAPIVersion + "/customers/"
	switch {
	case request.URL.Path == "/token":
		fake.tokenCalls++
		_ = request.ParseForm()
		fake.lastRefreshToken = request.PostForm.Get("refresh_token")
		fake.lastClientID = request.PostForm.Get("client_id")
		writeFakeResponse(writer, fake.tokenResponse)
	case request.URL.Path == "/"+testAPIVersion+"/customers:listAccessibleCustomers":
		fake.listCalls++
		fake.captureHeaders(request)
		if len(fake.listResponses) == 0 {
			writeFakeResponse(writer, fakeResponse{status: http.StatusNotFound, body: `{}`})
			return
		}
		index := min(fake.listCalls-1, len(fake.listResponses)-1)
		writeFakeResponse(writer, fake.listResponses[index])
	case strings.HasPrefix(request.URL.Path, searchPrefix) && strings.HasSuffix(request.URL.Path, "/googleAds:search"):
		customerID := strings.TrimSuffix(strings.TrimPrefix(request.URL.Path, searchPrefix), "/googleAds:search")
		fake.searchCalls[customerID]++
		fake.captureHeaders(request)
		response, ok := fake.searchResponses[customerID]
		if !ok {
			response = fakeResponse{status: http.StatusNotFound, body: `{"error":{"status":"NOT_FOUND"}}`}
		}
		writeFakeResponse(writer, response)
	default:
		writeFakeResponse(writer, fakeResponse{status: http.StatusNotFound, body: `{}`})
	}
}

func (fake *fakeGoogle) captureHeaders(request *http.Request) {
	fake.lastAuthorization = request.Header.Get("Authorization")
	fake.lastDeveloperToken = request.Header.Get("developer-token")
	fake.lastLoginCustomer = request.Header.Get("login-customer-id")
}

// configure mutates the fake under its lock.
func (fake *fakeGoogle) configure(mutate func(fake *fakeGoogle)) {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	mutate(fake)
}

type fakeStats struct {
	tokenCalls         int
	listCalls          int
	searchCalls        map[string]int
	lastRefreshToken   string
	lastClientID       string
	lastAuthorization  string
	lastDeveloperToken string
	lastLoginCustomer  string
}

func (fake *fakeGoogle) stats() fakeStats {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	searchCalls := make(map[string]int, len(fake.searchCalls))
	for customerID, count := range fake.searchCalls {
		searchCalls[customerID] = count
	}
	return fakeStats{
		tokenCalls:         fake.tokenCalls,
		listCalls:          fake.listCalls,
		searchCalls:        searchCalls,
		lastRefreshToken:   fake.lastRefreshToken,
		lastClientID:       fake.lastClientID,
		lastAuthorization:  fake.lastAuthorization,
		lastDeveloperToken: fake.lastDeveloperToken,
		lastLoginCustomer:  fake.lastLoginCustomer,
	}
}

func (fake *fakeGoogle) networkCalls() int {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	total := fake.tokenCalls + fake.listCalls
	for _, count := range fake.searchCalls {
		total += count
	}
	return total
}

func writeFakeResponse(writer http.ResponseWriter, response fakeResponse) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(response.status)
	_, _ = writer.Write([]byte(response.body))
}

// countingCredentialStore records how many times the access token was persisted.
type countingCredentialStore struct {
	*MemoryCredentialStore
	updates int
}

func (store *countingCredentialStore) UpdateAccessToken(ctx context.Context, userID string, expectedAccessToken string, newAccessToken string) error {
	store.updates++
	return store.MemoryCredentialStore.UpdateAccessToken(ctx, userID, expectedAccessToken, newAccessToken)
}

type failingCredentialStore struct {
	*MemoryCredentialStore
	getErr error
}

func (store *failingCredentialStore) Get(ctx context.Context, userID string) (UserCredential, error) {
	return UserCredential{}, store.getErr
}

func newTestAuditor(t *testing.T) (*Auditor, *MemoryAuditStore) {
	t.Helper()
	auditStore := NewMemoryAuditStore()
	return NewAuditor(auditStore, zaptest.NewLogger(t)), auditStore
}

func lastAuditEvent(t *testing.T, store *MemoryAuditStore) AuditEvent {
	t.Helper()
	events := store.Events()
	if len(events) == 0 {
		t.Fatalf("expected at least one audit event")
	}
	return events[len(events)-1]
}
