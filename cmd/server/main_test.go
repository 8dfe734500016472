package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tyemirov/adsdash/internal/adskit"
	"github.com/tyemirov/adsdash/internal/web"
	"github.com/tyemirov/adsdash/pkg/sessionvalidator"
	"go.uber.org/zap"
	"google.golang.org/api/idtoken"
)

func setRequiredConfig() {
	viper.Set("google_client_id", "client")
	viper.Set("google_client_secret", "secret")
	viper.Set("google_ads_developer_token", "dev-token")
	viper.Set("session_signing_key", "signing-secret")
	viper.Set("session_issuer", "adsdash")
}

func TestZapLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger, err := zap.NewProduction()
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	router := gin.New()
	router.Use(zapLoggerMiddleware(logger))
	router.GET("/ping", func(contextGin *gin.Context) {
		contextGin.Status(http.StatusNoContent)
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
}

func TestRunServerMissingConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	err := runServer(&cobra.Command{}, nil)
	if err == nil {
		t.Fatalf("expected configuration error")
	}

	expectedMessage := "config.uninitialized_server_config: server configuration not prepared; PreRunE must execute before RunE"
	if err.Error() != expectedMessage {
		t.Fatalf("expected error %q, got %q", expectedMessage, err.Error())
	}
}

func TestLoadServerConfigReportsMissingFields(t *testing.T) {
	testCases := []struct {
		name            string
		omitKey         string
		expectedMessage string
	}{
		{
			name:            "client id",
			omitKey:         "google_client_id",
			expectedMessage: "config.missing_google_client_id: google_client_id must be provided",
		},
		{
			name:            "client secret",
			omitKey:         "google_client_secret",
			expectedMessage: "config.missing_google_client_secret: google_client_secret must be provided",
		},
		{
			name:            "developer token",
			omitKey:         "google_ads_developer_token",
			expectedMessage: "config.missing_developer_token: google_ads_developer_token must be provided",
		},
		{
			name:            "signing key",
			omitKey:         "session_signing_key",
			expectedMessage: "config.missing_session_signing_key: session_signing_key must be provided",
		},
		{
			name:            "issuer",
			omitKey:         "session_issuer",
			expectedMessage: "config.missing_session_issuer: session_issuer must be provided",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()

			setRequiredConfig()
			viper.Set(testCase.omitKey, "")

			_, err := LoadServerConfig()
			if err == nil {
				t.Fatalf("expected error when %s is missing", testCase.omitKey)
			}
			if err.Error() != testCase.expectedMessage {
				t.Fatalf("expected error %q, got %q", testCase.expectedMessage, err.Error())
			}
		})
	}
}

func TestLoadServerConfigDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setRequiredConfig()

	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}
	if config.ListenAddr != ":8080" {
		t.Fatalf("expected default listen address, got %q", config.ListenAddr)
	}
	if config.IdentityMode != identityModeSession {
		t.Fatalf("expected session identity mode, got %q", config.IdentityMode)
	}
	if config.DatabaseDriver != databaseDriverGORM {
		t.Fatalf("expected gorm driver, got %q", config.DatabaseDriver)
	}
	if config.Service.DeveloperToken != "dev-token" {
		t.Fatalf("unexpected developer token %q", config.Service.DeveloperToken)
	}
	if len(config.CORSOrigins) != 1 || config.CORSOrigins[0] != "*" {
		t.Fatalf("expected wildcard cors origins by default, got %v", config.CORSOrigins)
	}
}

func TestLoadServerConfigEmptyCORSOriginsStayPermissive(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setRequiredConfig()
	viper.Set("cors_allowed_origins", []string{})

	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}
	if len(config.CORSOrigins) != 1 || config.CORSOrigins[0] != "*" {
		t.Fatalf("expected wildcard cors origins, got %v", config.CORSOrigins)
	}
	if _, corsErr := web.PermissiveCORS(zap.NewNop(), config.CORSOrigins); corsErr != nil {
		t.Fatalf("expected loaded origins to configure CORS, got %v", corsErr)
	}
}

func TestLoadServerConfigGoogleModeSkipsSessionSecrets(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setRequiredConfig()
	viper.Set("session_signing_key", "")
	viper.Set("session_issuer", "")
	viper.Set("identity_mode", "Google")

	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected google identity mode to load without session secrets, got %v", err)
	}
	if config.IdentityMode != identityModeGoogle {
		t.Fatalf("expected google identity mode, got %q", config.IdentityMode)
	}
}

func TestLoadServerConfigRejectsUnknownModes(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	setRequiredConfig()
	viper.Set("identity_mode", "basic")
	if _, err := LoadServerConfig(); err == nil || !strings.HasPrefix(err.Error(), configCodeInvalidIdentityMode) {
		t.Fatalf("expected invalid identity mode error, got %v", err)
	}

	viper.Set("identity_mode", identityModeSession)
	viper.Set("database_driver", "mysql")
	if _, err := LoadServerConfig(); err == nil || !strings.HasPrefix(err.Error(), configCodeInvalidDatabaseDriver) {
		t.Fatalf("expected invalid database driver error, got %v", err)
	}
}

func TestRunServerValidatorInitFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		return http.ErrServerClosed
	})
	defer restoreServe()

	restoreValidator := withGoogleValidatorBuilderStub(func(ctx context.Context) (adskit.GoogleTokenValidator, error) {
		return nil, errors.New("validator_fail")
	})
	defer restoreValidator()

	setRequiredConfig()
	viper.Set("listen_addr", ":0")
	viper.Set("identity_mode", identityModeGoogle)

	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}

	command := &cobra.Command{}
	command.SetContext(context.WithValue(context.Background(), serverConfigContextKey, config))

	if err := runServer(command, nil); err == nil || err.Error() != "config.google_validator_init: validator_fail" {
		t.Fatalf("expected google validator init error, got %v", err)
	}
}

func TestRunServerSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		if server.Handler == nil {
			t.Fatalf("expected handler to be configured")
		}
		recorder := httptest.NewRecorder()
		server.Handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/google-ads-campaigns", nil))
		if recorder.Code != http.StatusInternalServerError {
			t.Fatalf("expected unauthenticated campaigns request to be rejected with 500, got %d", recorder.Code)
		}
		return http.ErrServerClosed
	})
	defer restoreServe()

	restoreValidator := withGoogleValidatorBuilderStub(func(ctx context.Context) (adskit.GoogleTokenValidator, error) {
		return noopGoogleValidator{}, nil
	})
	defer restoreValidator()

	setRequiredConfig()
	viper.Set("listen_addr", ":0")
	viper.Set("identity_mode", identityModeGoogle)
	viper.Set("database_url", "sqlite://"+filepath.Join(t.TempDir(), "ads.db"))

	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}

	command := &cobra.Command{}
	command.SetContext(context.WithValue(context.Background(), serverConfigContextKey, config))

	if err := runServer(command, nil); err != nil {
		t.Fatalf("expected runServer to succeed, got %v", err)
	}
}

func TestRunServerInMemoryStoreServesWhoAmI(t *testing.T) {
	gin.SetMode(gin.TestMode)

	viper.Reset()
	defer viper.Reset()

	setRequiredConfig()
	viper.Set("listen_addr", ":0")

	token, mintErr := sessionvalidator.Mint([]byte("signing-secret"), "adsdash", "user-1", "", time.Now().UTC(), time.Minute)
	if mintErr != nil {
		t.Fatalf("mint token: %v", mintErr)
	}

	restoreServe := withServeHTTPStub(func(server *http.Server) error {
		request := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		request.Header.Set("Authorization", "Bearer "+token)
		recorder := httptest.NewRecorder()
		server.Handler.ServeHTTP(recorder, request)
		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200 from /api/me, got %d: %s", recorder.Code, recorder.Body.String())
		}
		if !strings.Contains(recorder.Body.String(), `"user_id":"user-1"`) {
			t.Fatalf("unexpected /api/me body %s", recorder.Body.String())
		}
		return http.ErrServerClosed
	})
	defer restoreServe()

	config, err := LoadServerConfig()
	if err != nil {
		t.Fatalf("expected configuration load to succeed, got %v", err)
	}

	command := &cobra.Command{}
	command.SetContext(context.WithValue(context.Background(), serverConfigContextKey, config))

	if err := runServer(command, nil); err != nil {
		t.Fatalf("expected runServer to succeed with in-memory store, got %v", err)
	}
}

func TestStoreGrantPersistsCredentials(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	databaseURL := "sqlite://" + filepath.Join(t.TempDir(), "ads.db")
	viper.Set("database_url", databaseURL)

	command := newStoreGrantCommand()
	output := &bytes.Buffer{}
	command.SetOut(output)
	command.SetContext(context.Background())
	command.SetArgs([]string{"--user_id", "user-1", "--refresh_token", "refresh-1"})
	if err := command.Execute(); err != nil {
		t.Fatalf("store-grant failed: %v", err)
	}
	if !strings.Contains(output.String(), "user-1") {
		t.Fatalf("unexpected output %q", output.String())
	}

	store, err := adskit.NewDatabaseStore(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	credential, err := store.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected stored credential, got %v", err)
	}
	if credential.RefreshToken != "refresh-1" || credential.AccessToken != "" {
		t.Fatalf("unexpected credential %+v", credential)
	}
}

func TestStoreGrantRequiresUserID(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	command := newStoreGrantCommand()
	command.SetContext(context.Background())
	command.SetArgs([]string{"--refresh_token", "refresh-1"})
	command.SilenceUsage = true
	command.SilenceErrors = true
	if err := command.Execute(); err == nil || !strings.HasPrefix(err.Error(), configCodeMissingUserID) {
		t.Fatalf("expected missing user id error, got %v", err)
	}
}

func TestStoreGrantRequiresDatabaseURL(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	command := newStoreGrantCommand()
	output := &bytes.Buffer{}
	command.SetOut(output)
	command.SetContext(context.Background())
	command.SetArgs([]string{"--user_id", "user-1", "--refresh_token", "refresh-1"})
	command.SilenceUsage = true
	command.SilenceErrors = true

	err := command.Execute()
	if err == nil || !strings.HasPrefix(err.Error(), configCodeMissingDatabaseURL) {
		t.Fatalf("expected missing database url error, got %v", err)
	}
	if strings.Contains(output.String(), "stored credentials") {
		t.Fatalf("expected no success output, got %q", output.String())
	}
}

func TestDevTokenMintsVerifiableToken(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("session_signing_key", "signing-secret")
	viper.Set("session_issuer", "adsdash")

	command := newDevTokenCommand()
	output := &bytes.Buffer{}
	command.SetOut(output)
	command.SetArgs([]string{"--user_id", "user-7", "--ttl", "5m"})
	if err := command.Execute(); err != nil {
		t.Fatalf("dev-token failed: %v", err)
	}

	validator, err := sessionvalidator.New(sessionvalidator.Config{SigningKey: []byte("signing-secret"), Issuer: "adsdash"})
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	userID, err := validator.ResolveUserID(context.Background(), strings.TrimSpace(output.String()))
	if err != nil {
		t.Fatalf("expected minted token to validate, got %v", err)
	}
	if userID != "user-7" {
		t.Fatalf("expected user-7, got %q", userID)
	}
}

func TestNewRootCommandHelp(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--help"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected help execution to succeed: %v", err)
	}
}

func withServeHTTPStub(stub func(server *http.Server) error) func() {
	previous := serveHTTP
	serveHTTP = stub
	return func() {
		serveHTTP = previous
	}
}

type noopGoogleValidator struct{}

func (noopGoogleValidator) Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error) {
	return &idtoken.Payload{}, nil
}

func withGoogleValidatorBuilderStub(stub func(ctx context.Context) (adskit.GoogleTokenValidator, error)) func() {
	previous := buildGoogleTokenValidator
	buildGoogleTokenValidator = stub
	return func() {
		buildGoogleTokenValidator = previous
	}
}
