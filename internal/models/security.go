package models

import "time"

type SecurityEventType string

const (
	SecuritySuspiciousActivity SecurityEventType = "suspicious_activity"
	SecurityRateLimitExceeded  SecurityEventType = "rate_limit_exceeded"
	SecurityFraudDetection     SecurityEventType = "fraud_detection"
	SecurityUnusualPattern     SecurityEventType = "unusual_pattern"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type SecurityEvent struct {
	Type          SecurityEventType `json:"type"`
	Severity      Severity          `json:"severity"`
	Description   string            `json:"description"`
	Metadata      Metadata          `json:"metadata,omitempty"`
	UserID        int64             `json:"user_id,omitempty"`
	TransactionID int64             `json:"transaction_id,omitempty"`
	DetectedAt    time.Time         `json:"detected_at"`
}

type RiskAnalysis struct {
	TransactionID int64           `json:"transaction_id"`
	RiskScore     int             `json:"risk_score"`
	Events        []SecurityEvent `json:"events"`
	ShouldBlock   bool            `json:"should_block"`
}

type RateLimitResult struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}
