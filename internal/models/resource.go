package models

import "time"

// Resource is the purchasable object a payment activates, owned by the surrounding system.
type Resource struct {
	ID            string         `json:"id"`
	Status        ResourceStatus `json:"status"`
	PaymentStatus string         `json:"payment_status"`
	TransactionID *int64         `json:"transaction_id,omitempty"`
	ActiveUntil   *time.Time     `json:"active_until,omitempty"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type ResourceStatus string

const (
	ResourcePendingPayment ResourceStatus = "pending_payment"
	ResourceActive         ResourceStatus = "active"
	ResourcePaymentFailed  ResourceStatus = "payment_failed"
	ResourcePaymentExpired ResourceStatus = "payment_expired"
)
