package adskit

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	microsPerUnit = 1_000_000

	campaignsQuery = `SELECT campaign.id, campaign.name, campaign.status, campaign_budget.amount_micros FROM campaign WHERE campaign.status != 'REMOVED' ORDER BY campaign.name ASC`
)

// CampaignLister fetches the non-removed campaigns of a customer.
type CampaignLister struct {
	client  *AdsClient
	auditor *Auditor
	logger  *zap.Logger
}

// NewCampaignLister constructs a lister backed by the Ads client.
func NewCampaignLister(client *AdsClient, auditor *Auditor, logger *zap.Logger) *CampaignLister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CampaignLister{client: client, auditor: auditor, logger: logger}
}

// ListCampaigns returns campaigns in the provider's name order with budgets in currency units.
func (lister *CampaignLister) ListCampaigns(ctx context.Context, userID string, accessToken string, customerID string) ([]Campaign, error) {
	if strings.TrimSpace(customerID) == "" {
		lister.auditor.Error(ctx, userID, auditContextCampaigns, "Missing customer_id parameter", nil)
		return nil, fmt.Errorf("campaign_lister.list: %w: customer_id", ErrMissingParameter)
	}

	rows, searchErr := lister.client.Search(ctx, accessToken, customerID, campaignsQuery)
	if searchErr != nil {
		details := errorDetails(searchErr)
		details["customerId"] = customerID
		lister.auditor.Error(ctx, userID, auditContextCampaigns, "Failed to fetch campaigns", details)
		return nil, fmt.Errorf("campaign_lister.list: %w", searchErr)
	}
	if rows == nil {
		lister.auditor.Error(ctx, userID, auditContextCampaigns, "Invalid campaigns response format", map[string]any{
			"customerId": customerID,
		})
		return nil, fmt.Errorf("campaign_lister.list: %w: missing results", ErrInvalidResponseFormat)
	}

	campaigns := make([]Campaign, 0, len(rows))
	for index, row := range rows {
		campaign, mapErr := mapCampaignRow(row)
		if mapErr != nil {
			lister.logger.Warn("campaign row skipped",
				zap.String("code", "campaign_lister.row_skipped"),
				zap.String("customer_id", customerID),
				zap.Int("row", index),
				zap.Error(mapErr))
			continue
		}
		campaigns = append(campaigns, campaign)
	}

	lister.auditor.Info(ctx, userID, auditContextCampaigns, fmt.Sprintf("Successfully fetched %d campaigns", len(campaigns)), map[string]any{
		"campaignCount": len(campaigns),
		"customerId":    customerID,
	})
	return campaigns, nil
}

func mapCampaignRow(row searchRow) (Campaign, error) {
	if row.Campaign == nil {
		return Campaign{}, fmt.Errorf("campaign_lister.map: missing campaign")
	}
	budget := 0.0
	if row.CampaignBudget != nil && row.CampaignBudget.AmountMicros != "" {
		converted, convertErr := microsToUnits(row.CampaignBudget.AmountMicros)
		if convertErr != nil {
			return Campaign{}, convertErr
		}
		budget = converted
	}
	return Campaign{
		ID:     row.Campaign.ID,
		Name:   row.Campaign.Name,
		Budget: budget,
		Status: strings.ToLower(row.Campaign.Status),
	}, nil
}

func microsToUnits(micros string) (float64, error) {
	value, parseErr := strconv.ParseInt(strings.TrimSpace(micros), 10, 64)
	if parseErr != nil {
		return 0, fmt.Errorf("campaign_lister.micros: %w", parseErr)
	}
	return float64(value) / microsPerUnit, nil
}
