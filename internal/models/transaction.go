package models

import "time"

// MetadataPaymentURL is the metadata key that must always hold the provider redirect URL.
const (
	MetadataPaymentURL         = "payment_url"
	MetadataPaymentURLFallback = "payment_url_fallback"
	MetadataCustomer           = "customer"
	MetadataDescription        = "description"
	MetadataResourceID         = "resource_id"
	MetadataVerification       = "verification"
	MetadataRecoveryInfo       = "recovery_info"
)

type Transaction struct {
	ID                int64      `json:"id"`
	UserID            int64      `json:"user_id"`
	Amount            int64      `json:"amount"`
	Currency          string     `json:"currency"`
	Status            StatusType `json:"status"`
	Provider          string     `json:"provider"`
	ProviderPaymentID string     `json:"provider_payment_id"`
	ProviderStatus    string     `json:"provider_status,omitempty"`
	ExternalReference string     `json:"external_reference,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	Metadata          Metadata   `json:"metadata"`
}

// PaymentURL returns the stored redirect URL, or "" when metadata lacks one.
func (t *Transaction) PaymentURL() string {
	return t.Metadata.String(MetadataPaymentURL)
}

type StatusType string

const (
	StatusPending   StatusType = "pending"
	StatusCompleted StatusType = "completed"
	StatusFailed    StatusType = "failed"
	StatusExpired   StatusType = "expired"
)

func (s StatusType) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed, StatusExpired:
		return true
	}
	return false
}

func (s StatusType) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusExpired
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}
