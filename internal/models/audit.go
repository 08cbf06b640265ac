package models

import (
	"strconv"
	"time"
)

// UnknownTransactionID marks audit entries that could not be linked to a transaction.
const UnknownTransactionID = "unknown"

type AuditEventType string

const (
	EventPaymentCreated             AuditEventType = "payment_created"
	EventPaymentCreationFailed      AuditEventType = "payment_creation_failed"
	EventPaymentURLCorrected        AuditEventType = "payment_url_corrected"
	EventVerificationPerformed      AuditEventType = "payment_verification_performed"
	EventVerificationFailed         AuditEventType = "payment_verification_failed"
	EventCallbackProcessed          AuditEventType = "callback_processed"
	EventSecurityEvent              AuditEventType = "security_event"
	EventRecoveryAttempt            AuditEventType = "recovery_attempt"
	EventRecoveryRejected           AuditEventType = "recovery_rejected"
	EventTransactionRecovered       AuditEventType = "transaction_recovered"
	EventRateLimitExceeded          AuditEventType = "rate_limit_exceeded"
	EventCallbackTransitionConflict AuditEventType = "callback_transition_conflict"
)

type AuditLogEntry struct {
	ID            int64          `json:"id"`
	TransactionID string         `json:"transaction_id"`
	EventType     AuditEventType `json:"event_type"`
	EventData     Metadata       `json:"event_data"`
	CreatedAt     time.Time      `json:"created_at"`
}

// TransactionRef renders a transaction id for the audit log.
func TransactionRef(id int64) string {
	if id <= 0 {
		return UnknownTransactionID
	}
	return strconv.FormatInt(id, 10)
}
