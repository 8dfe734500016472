package adskit

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCredential indicates the user has neither an access token nor a refresh token.
	ErrNoCredential = errors.New("ads.no_credential")
	// ErrRefreshFailed indicates the identity provider rejected the refresh token exchange.
	ErrRefreshFailed = errors.New("ads.refresh_failed")
	// ErrMissingProviderConfig indicates the OAuth client id or secret is not configured.
	ErrMissingProviderConfig = errors.New("ads.missing_provider_config")
	// ErrMissingDeveloperToken indicates the Google Ads developer token is not configured.
	ErrMissingDeveloperToken = errors.New("ads.missing_developer_token")
	// ErrMissingParameter indicates a required request parameter was empty.
	ErrMissingParameter = errors.New("ads.missing_parameter")
	// ErrAPI indicates the Google Ads API answered with a non-success status.
	ErrAPI = errors.New("ads.api_error")
	// ErrInvalidResponseFormat indicates the Google Ads API response lacked a required field.
	ErrInvalidResponseFormat = errors.New("ads.invalid_response_format")
)

// APIError carries the raw upstream body of a failed Google Ads call.
type APIError struct {
	StatusCode int
	Body       string
}

func (apiError *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", ErrAPI.Error(), apiError.StatusCode, apiError.Body)
}

// Is reports ErrAPI so callers can match any upstream failure.
func (apiError *APIError) Is(target error) bool {
	return target == ErrAPI
}

// RefreshError carries the raw body returned by the token endpoint.
type RefreshError struct {
	Body string
	Err  error
}

func (refreshError *RefreshError) Error() string {
	if refreshError.Body != "" {
		return fmt.Sprintf("%s: %s", ErrRefreshFailed.Error(), refreshError.Body)
	}
	if refreshError.Err != nil {
		return fmt.Sprintf("%s: %v", ErrRefreshFailed.Error(), refreshError.Err)
	}
	return ErrRefreshFailed.Error()
}

// Is reports ErrRefreshFailed.
func (refreshError *RefreshError) Is(target error) bool {
	return target == ErrRefreshFailed
}

func (refreshError *RefreshError) Unwrap() error {
	return refreshError.Err
}
