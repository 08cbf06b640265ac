package service

import (
	"time"

	"github.com/honeynil/payment-orchestrator/internal/models"
)

type ResultCode string

const (
	CodeOK                ResultCode = "ok"
	CodeValidation        ResultCode = "validation_error"
	CodeUnauthenticated   ResultCode = "unauthenticated"
	CodeNotFound          ResultCode = "not_found"
	CodeConfigUnavailable ResultCode = "config_unavailable"
	CodeInternal          ResultCode = "internal_error"
	CodeRecoveryRejected  ResultCode = "recovery_rejected"
	CodeSecurityBlocked   ResultCode = "security_blocked"
	CodeRecoveryFailed    ResultCode = "recovery_failed"
	CodeRateLimited       ResultCode = "rate_limited"
)

// User-facing messages. Raw internal errors never reach callers.
var failureMessages = map[ResultCode]string{
	CodeValidation:        "The payment request is invalid. Please check the amount and currency.",
	CodeUnauthenticated:   "Please sign in to start a payment.",
	CodeNotFound:          "We could not find this payment.",
	CodeConfigUnavailable: "Payments are temporarily unavailable. Please try again later.",
	CodeInternal:          "Something went wrong while processing your payment. Please try again.",
	CodeRecoveryFailed:    "The payment could not be recovered. Please try again later.",
	CodeRateLimited:       "Too many payment attempts. Please wait before trying again.",
}

var statusMessages = map[models.StatusType]string{
	models.StatusCompleted: "Payment completed successfully. Your purchase is now active.",
	models.StatusFailed:    "Payment failed. Please try again or use another payment method.",
	models.StatusExpired:   "Payment session expired. Please start a new payment.",
	models.StatusPending:   "Payment is being processed. Please check back shortly.",
}

const (
	// MessageResourceNotFound is returned when a callback names an unknown resource.
	MessageResourceNotFound = "We could not find the item this payment belongs to."
	messageFinalizeFailed   = "We could not finalize your payment yet. Please check back shortly."
	// MessageLinkMismatch is returned when a callback pairs a payment with another resource.
	MessageLinkMismatch     = "This payment does not belong to the requested item."
)

func failureMessage(code ResultCode) string {
	if m, ok := failureMessages[code]; ok {
		return m
	}
	return failureMessages[CodeInternal]
}

// FailureMessage returns the user-facing text for a failure code.
func FailureMessage(code ResultCode) string {
	return failureMessage(code)
}

func statusMessage(status models.StatusType) string {
	if m, ok := statusMessages[status]; ok {
		return m
	}
	return statusMessages[models.StatusPending]
}

type CreatePaymentRequest struct {
	Amount      int64           `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	Customer    models.Customer `json:"customer"`
	ResourceID  string          `json:"resource_id,omitempty"`
	Metadata    models.Metadata `json:"metadata,omitempty"`
}

type PaymentData struct {
	PaymentID     string            `json:"payment_id"`
	Status        models.StatusType `json:"status"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	PaymentURL    string            `json:"payment_url"`
	CreatedAt     time.Time         `json:"created_at"`
	ExpiresAt     time.Time         `json:"expires_at"`
	TransactionID int64             `json:"transaction_id"`
}

type CreatePaymentResult struct {
	Success     bool         `json:"success"`
	PaymentData *PaymentData `json:"payment_data,omitempty"`
	Code        ResultCode   `json:"code"`
	Error       string       `json:"error,omitempty"`
	// RetryReason is set when the failure is transient and eligible for recovery.
	RetryReason models.RecoveryReason `json:"retry_reason,omitempty"`
}

type VerificationResult struct {
	Success       bool            `json:"success"`
	PaymentID     string          `json:"payment_id"`
	TransactionID int64           `json:"transaction_id,omitempty"`
	Status        string          `json:"status,omitempty"`
	Amount        int64           `json:"amount,omitempty"`
	Currency      string          `json:"currency,omitempty"`
	PaymentURL    string          `json:"payment_url,omitempty"`
	Data          models.Metadata `json:"data,omitempty"`
	Code          ResultCode      `json:"code"`
	Error         string          `json:"error,omitempty"`
}

type CallbackRequest struct {
	ResourceID string `json:"resource_id"`
	PaymentID  string `json:"payment_id,omitempty"`
	RawStatus  string `json:"status,omitempty"`
}

type CallbackResult struct {
	Success          bool              `json:"success"`
	Status           models.StatusType `json:"status"`
	ResourceID       string            `json:"resource_id"`
	TransactionID    int64             `json:"transaction_id,omitempty"`
	Message          string            `json:"message"`
	VerificationData models.Metadata   `json:"verification_data,omitempty"`
}

type RecoveryResult struct {
	Success       bool                  `json:"success"`
	Code          ResultCode            `json:"code"`
	Message       string                `json:"message"`
	TransactionID int64                 `json:"transaction_id"`
	Reason        models.RecoveryReason `json:"reason"`
	AttemptNumber int                   `json:"attempt_number,omitempty"`
	Error         string                `json:"error,omitempty"`
}
