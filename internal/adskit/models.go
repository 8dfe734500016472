package adskit

// UserCredential holds the Google Ads OAuth tokens stored for a user.
type UserCredential struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

// AdAccount describes a Google Ads customer the user can access.
type AdAccount struct {
	CustomerID         string `json:"customerId"`
	DescriptiveName    string `json:"descriptiveName"`
	CurrencyCode       string `json:"currencyCode,omitempty"`
	TimeZone           string `json:"timeZone,omitempty"`
	AutoTaggingEnabled *bool  `json:"autoTaggingEnabled,omitempty"`
	IsTestAccount      bool   `json:"isTestAccount"`
}

// Campaign is a normalized Google Ads campaign row.
type Campaign struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Budget float64 `json:"budget"`
	Status string  `json:"status"`
}
