package adskit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	fallbackCurrencyCode = "USD"
	fallbackTimeZone     = "America/New_York"

	customerDetailsQuery = `SELECT customer.id, customer.descriptive_name, customer.currency_code, customer.time_zone, customer.auto_tagging_enabled, customer.test_account FROM customer WHERE customer.id = '%s'`
)

var errCustomerRowMissing = errors.New("account_resolver.customer_row_missing")

// AccountResolver lists the Google Ads accounts a user can select.
type AccountResolver struct {
	configuration ServiceConfig
	client        *AdsClient
	auditor       *Auditor
	metrics       MetricsRecorder
	logger        *zap.Logger
}

// NewAccountResolver constructs a resolver backed by the Ads client.
func NewAccountResolver(configuration ServiceConfig, client *AdsClient, auditor *Auditor, metrics MetricsRecorder, logger *zap.Logger) *AccountResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &AccountResolver{
		configuration: configuration,
		client:        client,
		auditor:       auditor,
		metrics:       metrics,
		logger:        logger,
	}
}

// ListAccounts returns accounts in the order Google Ads listed them.
// Test mode skips the API and yields the configured fallback test account.
func (resolver *AccountResolver) ListAccounts(ctx context.Context, userID string, accessToken string, testMode bool) ([]AdAccount, error) {
	if testMode {
		fallback := resolver.fallbackAccount()
		resolver.metrics.Increment(metricAccountsFallback)
		resolver.auditor.Info(ctx, userID, auditContextAccounts, "Test mode enabled, using test account", map[string]any{
			"accountCount": 1,
			"customerId":   fallback.CustomerID,
		})
		return []AdAccount{fallback}, nil
	}

	resourceNames, listErr := resolver.client.ListAccessibleCustomers(ctx, accessToken)
	if listErr != nil {
		if isDeveloperTokenNotApproved(listErr) {
			return resolver.listTestAccounts(ctx, userID, accessToken), nil
		}
		resolver.auditor.Error(ctx, userID, auditContextAccounts, "Google Ads API error", errorDetails(listErr))
		return nil, fmt.Errorf("account_resolver.list: %w", listErr)
	}

	accounts, dropped := resolver.describeAll(ctx, accessToken, resourceNames, false)
	resolver.auditor.Info(ctx, userID, auditContextAccounts, fmt.Sprintf("Successfully fetched %d accounts", len(accounts)), map[string]any{
		"accountCount":       len(accounts),
		"droppedCustomerIds": dropped,
	})
	return accounts, nil
}

// listTestAccounts re-issues the listing after a DEVELOPER_TOKEN_NOT_APPROVED rejection and keeps test accounts only.
func (resolver *AccountResolver) listTestAccounts(ctx context.Context, userID string, accessToken string) []AdAccount {
	resolver.logger.Info("developer token not approved, searching for test accounts",
		zap.String("code", "account_resolver.developer_token_not_approved"),
		zap.String("user_id", userID))

	resourceNames, retryErr := resolver.client.ListAccessibleCustomers(ctx, accessToken)
	if retryErr != nil {
		resolver.logger.Warn("test account listing failed",
			zap.String("code", "account_resolver.test_listing_failed"),
			zap.String("user_id", userID),
			zap.Error(retryErr))
		return resolver.fallbackAccounts(ctx, userID, errorDetails(retryErr))
	}

	testAccounts, dropped := resolver.describeAll(ctx, accessToken, resourceNames, true)
	if len(testAccounts) == 0 {
		return resolver.fallbackAccounts(ctx, userID, map[string]any{"droppedCustomerIds": dropped})
	}
	resolver.auditor.Info(ctx, userID, auditContextAccounts, fmt.Sprintf("Found %d test accounts", len(testAccounts)), map[string]any{
		"accountCount":       len(testAccounts),
		"droppedCustomerIds": dropped,
	})
	return testAccounts
}

func (resolver *AccountResolver) fallbackAccounts(ctx context.Context, userID string, details map[string]any) []AdAccount {
	fallback := resolver.fallbackAccount()
	resolver.metrics.Increment(metricAccountsFallback)
	if details == nil {
		details = map[string]any{}
	}
	details["customerId"] = fallback.CustomerID
	resolver.auditor.Info(ctx, userID, auditContextAccounts, "No test accounts found, using default test account", details)
	return []AdAccount{fallback}
}

// describeAll looks up each account one at a time; failed lookups are dropped and reported by id.
func (resolver *AccountResolver) describeAll(ctx context.Context, accessToken string, resourceNames []string, testOnly bool) ([]AdAccount, []string) {
	accounts := make([]AdAccount, 0, len(resourceNames))
	dropped := make([]string, 0)
	for _, resourceName := range resourceNames {
		customerID := customerIDFromResourceName(resourceName)
		if customerID == "" {
			continue
		}
		account, describeErr := resolver.describe(ctx, accessToken, customerID)
		if describeErr != nil {
			resolver.logger.Warn("account details lookup failed",
				zap.String("code", "account_resolver.details_failed"),
				zap.String("customer_id", customerID),
				zap.Error(describeErr))
			dropped = append(dropped, customerID)
			continue
		}
		if testOnly && !account.IsTestAccount {
			continue
		}
		accounts = append(accounts, account)
	}
	return accounts, dropped
}

func (resolver *AccountResolver) describe(ctx context.Context, accessToken string, customerID string) (AdAccount, error) {
	rows, searchErr := resolver.client.Search(ctx, accessToken, customerID, fmt.Sprintf(customerDetailsQuery, customerID))
	if searchErr != nil {
		return AdAccount{}, searchErr
	}
	if len(rows) == 0 || rows[0].Customer == nil {
		return AdAccount{}, errCustomerRowMissing
	}
	customer := rows[0].Customer
	accountID := customer.ID
	if accountID == "" {
		accountID = customerID
	}
	descriptiveName := customer.DescriptiveName
	if descriptiveName == "" {
		if customer.TestAccount {
			descriptiveName = "Test Account " + accountID
		} else {
			descriptiveName = "Account " + accountID
		}
	}
	return AdAccount{
		CustomerID:         accountID,
		DescriptiveName:    descriptiveName,
		CurrencyCode:       customer.CurrencyCode,
		TimeZone:           customer.TimeZone,
		AutoTaggingEnabled: customer.AutoTaggingEnabled,
		IsTestAccount:      customer.TestAccount,
	}, nil
}

func (resolver *AccountResolver) fallbackAccount() AdAccount {
	customerID := resolver.configuration.fallbackTestCustomerID()
	autoTagging := false
	return AdAccount{
		CustomerID:         customerID,
		DescriptiveName:    "Test Account " + customerID,
		CurrencyCode:       fallbackCurrencyCode,
		TimeZone:           fallbackTimeZone,
		AutoTaggingEnabled: &autoTagging,
		IsTestAccount:      true,
	}
}

func customerIDFromResourceName(resourceName string) string {
	trimmed := strings.TrimSpace(resourceName)
	if index := strings.LastIndex(trimmed, "/"); index >= 0 {
		return trimmed[index+1:]
	}
	return trimmed
}

func errorDetails(err error) map[string]any {
	details := map[string]any{"error": err.Error()}
	var apiError *APIError
	if errors.As(err, &apiError) {
		details["status"] = apiError.StatusCode
		details["details"] = apiError.Body
	}
	return details
}
