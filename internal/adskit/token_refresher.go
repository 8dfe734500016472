package adskit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// TokenRefresher ensures a usable Google Ads access token for a stored credential.
type TokenRefresher struct {
	configuration ServiceConfig
	credentials   CredentialStore
	auditor       *Auditor
	metrics       MetricsRecorder
	logger        *zap.Logger
	httpClient    *http.Client
}

// NewTokenRefresher constructs a refresher; httpClient may be nil to use the default transport.
func NewTokenRefresher(configuration ServiceConfig, credentials CredentialStore, auditor *Auditor, metrics MetricsRecorder, logger *zap.Logger, httpClient *http.Client) *TokenRefresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &TokenRefresher{
		configuration: configuration,
		credentials:   credentials,
		auditor:       auditor,
		metrics:       metrics,
		logger:        logger,
		httpClient:    httpClient,
	}
}

// EnsureAccessToken returns the stored access token or mints one from the refresh token.
// A present access token is returned as-is without contacting the provider.
func (refresher *TokenRefresher) EnsureAccessToken(ctx context.Context, credential UserCredential, auditContext string) (string, error) {
	if credential.AccessToken != "" {
		refresher.auditor.Info(ctx, credential.UserID, auditContext, "Using stored Google Ads access token", nil)
		return credential.AccessToken, nil
	}
	if credential.RefreshToken == "" {
		refresher.auditor.Error(ctx, credential.UserID, auditContext, "No access token available", nil)
		return "", fmt.Errorf("token_refresher.ensure: %w", ErrNoCredential)
	}
	if refresher.configuration.GoogleClientID == "" || refresher.configuration.GoogleClientSecret == "" {
		refresher.auditor.Error(ctx, credential.UserID, auditContext, "Missing Google OAuth credentials", nil)
		return "", fmt.Errorf("token_refresher.ensure: %w", ErrMissingProviderConfig)
	}

	accessToken, refreshErr := refresher.exchange(ctx, credential.RefreshToken)
	if refreshErr != nil {
		refresher.metrics.Increment(metricTokenRefreshFailure)
		details := map[string]any{}
		var typed *RefreshError
		if errors.As(refreshErr, &typed) && typed.Body != "" {
			details["details"] = typed.Body
		}
		refresher.auditor.Error(ctx, credential.UserID, auditContext, "Token refresh failed", details)
		return "", fmt.Errorf("token_refresher.ensure: %w", refreshErr)
	}
	refresher.metrics.Increment(metricTokenRefreshSuccess)

	if updateErr := refresher.credentials.UpdateAccessToken(ctx, credential.UserID, credential.AccessToken, accessToken); updateErr != nil {
		refresher.logger.Error("access token persistence failed",
			zap.String("code", "token_refresher.persist_failed"),
			zap.String("user_id", credential.UserID),
			zap.Error(updateErr))
	}
	refresher.auditor.Info(ctx, credential.UserID, auditContext, "Access token refreshed successfully", nil)
	return accessToken, nil
}

func (refresher *TokenRefresher) exchange(ctx context.Context, refreshToken string) (string, error) {
	oauthConfig := &oauth2.Config{
		ClientID:     refresher.configuration.GoogleClientID,
		ClientSecret: refresher.configuration.GoogleClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  refresher.configuration.tokenURL(),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	if refresher.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, refresher.httpClient)
	}
	token, err := oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return "", &RefreshError{Body: strings.TrimSpace(string(retrieveErr.Body)), Err: err}
		}
		return "", &RefreshError{Err: err}
	}
	if token.AccessToken == "" {
		return "", &RefreshError{Err: errors.New("empty access token")}
	}
	return token.AccessToken, nil
}
