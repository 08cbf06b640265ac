package models

type ProviderConfig struct {
	ID          int64  `json:"id"`
	Provider    string `json:"provider"`
	BaseURL     string `json:"base_url"`
	APIKey      string `json:"api_key"`
	WebhookURL  string `json:"webhook_url"`
	ReturnURL   string `json:"return_url"`
	CancelURL   string `json:"cancel_url"`
	Environment string `json:"environment"`
	IsActive    bool   `json:"is_active"`
}
