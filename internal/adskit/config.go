package adskit

const (
	// DefaultGoogleTokenURL is Google's OAuth 2.0 token endpoint.
	DefaultGoogleTokenURL = "https://oauth2.googleapis.com/token"
	// DefaultAdsAPIBaseURL is the Google Ads REST endpoint.
	DefaultAdsAPIBaseURL = "https://googleads.googleapis.com"
	// DefaultAdsAPIVersion is the Google Ads REST API version in use.
	DefaultAdsAPIVersion = "v18"
	// DefaultFallbackTestCustomerID is the synthetic test account served when no live account is usable.
	DefaultFallbackTestCustomerID = "2051368193"

	auditAPIGoogleAds = "google_ads"
)

// ServiceConfig carries provider credentials and Google Ads settings.
type ServiceConfig struct {
	GoogleClientID         string
	GoogleClientSecret     string
	GoogleTokenURL         string
	DeveloperToken         string
	AdsAPIBaseURL          string
	AdsAPIVersion          string
	FallbackTestCustomerID string
}

func (configuration ServiceConfig) tokenURL() string {
	if configuration.GoogleTokenURL == "" {
		return DefaultGoogleTokenURL
	}
	return configuration.GoogleTokenURL
}

func (configuration ServiceConfig) adsAPIBaseURL() string {
	if configuration.AdsAPIBaseURL == "" {
		return DefaultAdsAPIBaseURL
	}
	return configuration.AdsAPIBaseURL
}

func (configuration ServiceConfig) adsAPIVersion() string {
	if configuration.AdsAPIVersion == "" {
		return DefaultAdsAPIVersion
	}
	return configuration.AdsAPIVersion
}

func (configuration ServiceConfig) fallbackTestCustomerID() string {
	if configuration.FallbackTestCustomerID == "" {
		return DefaultFallbackTestCustomerID
	}
	return configuration.FallbackTestCustomerID
}
