package adskit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

const developerTokenNotApproved = "DEVELOPER_TOKEN_NOT_APPROVED"

// AdsClient calls the Google Ads REST API on behalf of a user access token.
type AdsClient struct {
	baseURL        string
	apiVersion     string
	developerToken string
	httpClient     *http.Client
}

type listAccessibleCustomersResponse struct {
	ResourceNames *[]string `json:"resourceNames"`
}

type searchRequest struct {
	Query string `json:"query"`
}

type searchResponse struct {
	Results *[]searchRow `json:"results"`
}

type searchRow struct {
	Customer       *customerResource       `json:"customer"`
	Campaign       *campaignResource       `json:"campaign"`
	CampaignBudget *campaignBudgetResource `json:"campaignBudget"`
}

type customerResource struct {
	ID                 string `json:"id"`
	DescriptiveName    string `json:"descriptiveName"`
	CurrencyCode       string `json:"currencyCode"`
	TimeZone           string `json:"timeZone"`
	AutoTaggingEnabled *bool  `json:"autoTaggingEnabled"`
	TestAccount        bool   `json:"testAccount"`
}

type campaignResource struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type campaignBudgetResource struct {
	AmountMicros string `json:"amountMicros"`
}

// NewAdsClient constructs a client; httpClient may be nil to use the default transport.
// Every setting of httpClient is honoured; its transport carries the bearer token.
func NewAdsClient(configuration ServiceConfig, httpClient *http.Client) *AdsClient {
	return &AdsClient{
		baseURL:        strings.TrimRight(configuration.adsAPIBaseURL(), "/"),
		apiVersion:     configuration.adsAPIVersion(),
		developerToken: configuration.DeveloperToken,
		httpClient:     httpClient,
	}
}

// ListAccessibleCustomers returns the resource names of customers reachable with the access token.
func (client *AdsClient) ListAccessibleCustomers(ctx context.Context, accessToken string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/%s/customers:listAccessibleCustomers", client.baseURL, client.apiVersion)
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if requestErr != nil {
		return nil, fmt.Errorf("ads_client.list_accessible: %w", requestErr)
	}
	body, callErr := client.do(request, accessToken, "")
	if callErr != nil {
		return nil, fmt.Errorf("ads_client.list_accessible: %w", callErr)
	}
	var decoded listAccessibleCustomersResponse
	if decodeErr := json.Unmarshal(body, &decoded); decodeErr != nil {
		return nil, fmt.Errorf("ads_client.list_accessible: %w: %v", ErrInvalidResponseFormat, decodeErr)
	}
	if decoded.ResourceNames == nil {
		return nil, fmt.Errorf("ads_client.list_accessible: %w: missing resourceNames", ErrInvalidResponseFormat)
	}
	return *decoded.ResourceNames, nil
}

// Search runs a GAQL query against the customer. The result slice is nil when the response has no results field.
func (client *AdsClient) Search(ctx context.Context, accessToken string, customerID string, query string) ([]searchRow, error) {
	payload, encodeErr := json.Marshal(searchRequest{Query: query})
	if encodeErr != nil {
		return nil, fmt.Errorf("ads_client.search: %w", encodeErr)
	}
	endpoint := fmt.Sprintf("%s/%s/customers/%s/googleAds:search", client.baseURL, client.apiVersion, customerID)
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if requestErr != nil {
		return nil, fmt.Errorf("ads_client.search: %w", requestErr)
	}
	request.Header.Set("Content-Type", "application/json")
	body, callErr := client.do(request, accessToken, customerID)
	if callErr != nil {
		return nil, fmt.Errorf("ads_client.search: %w", callErr)
	}
	var decoded searchResponse
	if decodeErr := json.Unmarshal(body, &decoded); decodeErr != nil {
		return nil, fmt.Errorf("ads_client.search: %w: %v", ErrInvalidResponseFormat, decodeErr)
	}
	if decoded.Results == nil {
		return nil, nil
	}
	return *decoded.Results, nil
}

func (client *AdsClient) do(request *http.Request, accessToken string, loginCustomerID string) ([]byte, error) {
	if client.developerToken == "" {
		return nil, ErrMissingDeveloperToken
	}
	request.Header.Set("developer-token", client.developerToken)
	if loginCustomerID != "" {
		request.Header.Set("login-customer-id", loginCustomerID)
	}
	response, err := client.authorized(accessToken).Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()
	body, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return nil, readErr
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &APIError{StatusCode: response.StatusCode, Body: string(body)}
	}
	return body, nil
}

// authorized copies the injected client so its timeout and redirect policy survive,
// and wraps its transport with the bearer token.
func (client *AdsClient) authorized(accessToken string) *http.Client {
	authorized := &http.Client{}
	if client.httpClient != nil {
		copied := *client.httpClient
		authorized = &copied
	}
	authorized.Transport = &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: accessToken,
			TokenType:   "Bearer",
		}),
		Base: authorized.Transport,
	}
	return authorized
}

func isDeveloperTokenNotApproved(err error) bool {
	var apiError *APIError
	if !errors.As(err, &apiError) {
		return false
	}
	return strings.Contains(apiError.Body, developerTokenNotApproved)
}
