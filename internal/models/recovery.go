package models

import "time"

type RecoveryReason string

const (
	ReasonNetworkError      RecoveryReason = "network_error"
	ReasonTimeout           RecoveryReason = "timeout"
	ReasonTemporaryAPIError RecoveryReason = "temporary_api_error"
	ReasonExpiredSession    RecoveryReason = "expired_session"
)

type RecoveryAttemptStatus string

const (
	AttemptStarted   RecoveryAttemptStatus = "started"
	AttemptSucceeded RecoveryAttemptStatus = "succeeded"
	AttemptFailed    RecoveryAttemptStatus = "failed"
)

// RecoveryAttempt is the view of a "recovery_attempt" audit entry.
type RecoveryAttempt struct {
	AuditID       int64                 `json:"audit_id"`
	TransactionID string                `json:"transaction_id"`
	AttemptNumber int                   `json:"attempt_number"`
	Reason        RecoveryReason        `json:"reason"`
	Status        RecoveryAttemptStatus `json:"status"`
	Success       bool                  `json:"success"`
	Error         string                `json:"error,omitempty"`
	Timestamp     time.Time             `json:"timestamp"`
}

// RecoveryAttemptFromAudit decodes an audit entry written by the recovery manager.
func RecoveryAttemptFromAudit(e AuditLogEntry) RecoveryAttempt {
	a := RecoveryAttempt{
		AuditID:       e.ID,
		TransactionID: e.TransactionID,
		Reason:        RecoveryReason(e.EventData.String("reason")),
		Status:        RecoveryAttemptStatus(e.EventData.String("status")),
		Error:         e.EventData.String("error"),
		Timestamp:     e.CreatedAt,
	}
	switch n := e.EventData["attempt_number"].(type) {
	case float64:
		a.AttemptNumber = int(n)
	case int:
		a.AttemptNumber = n
	case int64:
		a.AttemptNumber = int(n)
	}
	a.Success, _ = e.EventData["success"].(bool)
	return a
}

type FailureReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

type RecoveryStats struct {
	Window               string               `json:"window"`
	TotalAttempts        int                  `json:"total_attempts"`
	SuccessfulRecoveries int                  `json:"successful_recoveries"`
	FailedRecoveries     int                  `json:"failed_recoveries"`
	SuccessRate          float64              `json:"success_rate"`
	CommonFailureReasons []FailureReasonCount `json:"common_failure_reasons"`
}
