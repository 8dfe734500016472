package adskit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Dashboard wires the credential store, token refresher, account resolver, and campaign lister.
type Dashboard struct {
	credentials CredentialStore
	refresher   *TokenRefresher
	accounts    *AccountResolver
	campaigns   *CampaignLister
	auditor     *Auditor
	metrics     MetricsRecorder
	logger      *zap.Logger
}

// DashboardDependencies groups the collaborators of a Dashboard.
type DashboardDependencies struct {
	Credentials CredentialStore
	Audit       AuditStore
	Metrics     MetricsRecorder
	Logger      *zap.Logger
	HTTPClient  *http.Client
}

// NewDashboard builds the full Google Ads flow from configuration.
func NewDashboard(configuration ServiceConfig, dependencies DashboardDependencies) (*Dashboard, error) {
	if dependencies.Credentials == nil {
		return nil, errors.New("dashboard.new: credential store is required")
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := dependencies.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	auditor := NewAuditor(dependencies.Audit, logger)
	client := NewAdsClient(configuration, dependencies.HTTPClient)
	return &Dashboard{
		credentials: dependencies.Credentials,
		refresher:   NewTokenRefresher(configuration, dependencies.Credentials, auditor, metrics, logger, dependencies.HTTPClient),
		accounts:    NewAccountResolver(configuration, client, auditor, metrics, logger),
		campaigns:   NewCampaignLister(client, auditor, logger),
		auditor:     auditor,
		metrics:     metrics,
		logger:      logger,
	}, nil
}

// ListAccounts resolves the user's access token and lists selectable accounts.
func (dashboard *Dashboard) ListAccounts(ctx context.Context, userID string, testMode bool) ([]AdAccount, error) {
	accessToken, tokenErr := dashboard.accessToken(ctx, userID, auditContextAccounts)
	if tokenErr != nil {
		dashboard.metrics.Increment(metricAccountsFailure)
		return nil, tokenErr
	}
	accounts, listErr := dashboard.accounts.ListAccounts(ctx, userID, accessToken, testMode)
	if listErr != nil {
		dashboard.metrics.Increment(metricAccountsFailure)
		return nil, listErr
	}
	dashboard.metrics.Increment(metricAccountsSuccess)
	return accounts, nil
}

// ListCampaigns validates the customer id before any credential or network work.
func (dashboard *Dashboard) ListCampaigns(ctx context.Context, userID string, customerID string) ([]Campaign, error) {
	if strings.TrimSpace(customerID) == "" {
		dashboard.metrics.Increment(metricCampaignsFailure)
		return dashboard.campaigns.ListCampaigns(ctx, userID, "", customerID)
	}
	accessToken, tokenErr := dashboard.accessToken(ctx, userID, auditContextCampaigns)
	if tokenErr != nil {
		dashboard.metrics.Increment(metricCampaignsFailure)
		return nil, tokenErr
	}
	campaigns, listErr := dashboard.campaigns.ListCampaigns(ctx, userID, accessToken, customerID)
	if listErr != nil {
		dashboard.metrics.Increment(metricCampaignsFailure)
		return nil, listErr
	}
	dashboard.metrics.Increment(metricCampaignsSuccess)
	return campaigns, nil
}

// CredentialStatus reports which tokens are stored for the user.
func (dashboard *Dashboard) CredentialStatus(ctx context.Context, userID string) (hasAccessToken bool, hasRefreshToken bool, err error) {
	credential, getErr := dashboard.credentials.Get(ctx, userID)
	if getErr != nil {
		if errors.Is(getErr, ErrCredentialNotFound) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("dashboard.credential_status: %w", getErr)
	}
	return credential.AccessToken != "", credential.RefreshToken != "", nil
}

func (dashboard *Dashboard) accessToken(ctx context.Context, userID string, auditContext string) (string, error) {
	credential, getErr := dashboard.credentials.Get(ctx, userID)
	if getErr != nil {
		if !errors.Is(getErr, ErrCredentialNotFound) {
			dashboard.auditor.Error(ctx, userID, auditContext, "Error getting user data", map[string]any{"error": getErr.Error()})
			return "", fmt.Errorf("dashboard.credentials: %w", getErr)
		}
		credential = UserCredential{UserID: userID}
	}
	return dashboard.refresher.EnsureAccessToken(ctx, credential, auditContext)
}
