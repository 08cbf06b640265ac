package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/config"
	"github.com/honeynil/payment-orchestrator/internal/infrastructure/observability"
	"github.com/honeynil/payment-orchestrator/internal/infrastructure/redis"
	"github.com/honeynil/payment-orchestrator/internal/models"
	"github.com/honeynil/payment-orchestrator/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultRateLimitAction = "payment_creation"

	frequencyScore     = 15
	highFrequencyScore = 20
	highAverageScore   = 10
	largeAmountScore   = 25
	payloadScore       = 40

	frequencyThreshold     = 3
	highFrequencyThreshold = 5
)

var (
	suspiciousTokens  = regexp.MustCompile(`(?i)\b(test|fake|dummy|null|admin|root|system)\b`)
	injectionMarkers  = regexp.MustCompile(`(?i)(<|>|javascript:|<script|on\w+\s*=)`)
	emailShape        = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	placeholderName   = regexp.MustCompile(`(?i)^(test|fake|dummy|null|admin|root|system|john doe|jane doe|asdf|xxx+|n/?a|-)$`)
	payloadSkipFields = map[string]bool{
		models.MetadataPaymentURL:         true,
		models.MetadataPaymentURLFallback: true,
		models.MetadataVerification:       true,
		models.MetadataRecoveryInfo:       true,
	}
)

// SecurityMonitor scores transactions and enforces the per-actor rate limit.
type SecurityMonitor struct {
	transactions repository.TransactionRepository
	audit        *AuditLogger
	limiter      redis.RedisClient
	cfg          config.SecurityConfig
	now          func() time.Time
}

func NewSecurityMonitor(transactions repository.TransactionRepository, audit *AuditLogger, limiter redis.RedisClient, cfg config.SecurityConfig) *SecurityMonitor {
	return &SecurityMonitor{
		transactions: transactions,
		audit:        audit,
		limiter:      limiter,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// AnalyzeTransaction has no side effect on the transaction; callers act on ShouldBlock.
func (m *SecurityMonitor) AnalyzeTransaction(ctx context.Context, transactionID int64) (*models.RiskAnalysis, error) {
	ctx, span := otel.Tracer("payment-service").Start(ctx, "AnalyzeTransaction")
	span.SetAttributes(attribute.Int64("transaction_id", transactionID))
	defer span.End()

	tx, err := m.transactions.GetByID(ctx, transactionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction lookup failed")
		slog.Error("risk analysis failed to load transaction", "method", "AnalyzeTransaction", "transaction_id", transactionID, "error", err)
		return nil, fmt.Errorf("load transaction %d: %w", transactionID, err)
	}

	now := m.now()
	analysis := &models.RiskAnalysis{TransactionID: tx.ID, Events: []models.SecurityEvent{}}

	recent, err := m.transactions.ListByUserSince(ctx, tx.UserID, now.Add(-m.cfg.ActivityWindow))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "activity lookup failed")
		slog.Error("risk analysis failed to load recent activity", "method", "AnalyzeTransaction", "transaction_id", tx.ID, "user_id", tx.UserID, "error", err)
		return nil, fmt.Errorf("load recent activity for user %d: %w", tx.UserID, err)
	}
	m.scoreActivity(analysis, tx, recent, now)

	if tx.Amount > m.cfg.LargeAmount {
		analysis.RiskScore += largeAmountScore
		analysis.Events = append(analysis.Events, m.event(tx, now, models.SecurityUnusualPattern, models.SeverityMedium,
			"Transaction amount exceeds the large-amount threshold",
			models.Metadata{"amount": tx.Amount, "threshold": m.cfg.LargeAmount}))
	}

	if markers, fields := scanPayload(tx.Metadata); len(markers) > 0 || len(fields) > 0 {
		analysis.RiskScore += payloadScore
		analysis.Events = append(analysis.Events, m.event(tx, now, models.SecurityFraudDetection, models.SeverityHigh,
			"Suspicious markers found in transaction payload",
			models.Metadata{"markers": markers, "offending_fields": fields}))
	}

	analysis.ShouldBlock = analysis.RiskScore > m.cfg.BlockThreshold
	observability.RiskScores.Observe(float64(analysis.RiskScore))
	span.SetAttributes(attribute.Int("risk_score", analysis.RiskScore), attribute.Bool("should_block", analysis.ShouldBlock))

	if len(analysis.Events) > 0 {
		entries := make([]models.AuditLogEntry, 0, len(analysis.Events))
		for _, ev := range analysis.Events {
			entries = append(entries, models.AuditLogEntry{
				TransactionID: models.TransactionRef(tx.ID),
				EventType:     models.EventSecurityEvent,
				EventData: models.Metadata{
					"type":        string(ev.Type),
					"severity":    string(ev.Severity),
					"description": ev.Description,
					"metadata":    map[string]any(ev.Metadata),
					"user_id":     ev.UserID,
					"detected_at": ev.DetectedAt.Format(time.RFC3339),
				},
			})
		}
		m.audit.LogBatch(ctx, entries)
	}

	slog.Info("risk analysis completed", "method", "AnalyzeTransaction", "transaction_id", tx.ID, "risk_score", analysis.RiskScore, "events", len(analysis.Events), "should_block", analysis.ShouldBlock)
	return analysis, nil
}

// scoreActivity looks at the actor's other transactions in the window.
func (m *SecurityMonitor) scoreActivity(analysis *models.RiskAnalysis, tx *models.Transaction, recent []models.Transaction, now time.Time) {
	var (
		count int
		total int64
	)
	for _, r := range recent {
		if r.ID == tx.ID {
			continue
		}
		count++
		total += r.Amount
	}

	if count > frequencyThreshold {
		score := frequencyScore
		if count > highFrequencyThreshold {
			score += highFrequencyScore
		}
		analysis.RiskScore += score
		analysis.Events = append(analysis.Events, m.event(tx, now, models.SecuritySuspiciousActivity, models.SeverityHigh,
			fmt.Sprintf("%d transactions by the same user within %s", count, m.cfg.ActivityWindow),
			models.Metadata{"count": count, "window": m.cfg.ActivityWindow.String()}))
	}

	if count > 0 {
		average := total / int64(count)
		if average > m.cfg.HighAverageAmount {
			analysis.RiskScore += highAverageScore
			analysis.Events = append(analysis.Events, m.event(tx, now, models.SecurityUnusualPattern, models.SeverityMedium,
				"Average transaction amount in window exceeds the high-value threshold",
				models.Metadata{"average_amount": average, "threshold": m.cfg.HighAverageAmount}))
		}
	}
}

func (m *SecurityMonitor) event(tx *models.Transaction, now time.Time, typ models.SecurityEventType, severity models.Severity, description string, meta models.Metadata) models.SecurityEvent {
	return models.SecurityEvent{
		Type:          typ,
		Severity:      severity,
		Description:   description,
		Metadata:      meta,
		UserID:        tx.UserID,
		TransactionID: tx.ID,
		DetectedAt:    now,
	}
}

// scanPayload walks the string leaves of the metadata and returns the paths
// that carry suspicious markers plus the customer fields that look malformed.
func scanPayload(meta models.Metadata) (markers []string, fields []string) {
	markers = []string{}
	fields = []string{}
	for key, value := range meta {
		if payloadSkipFields[key] {
			continue
		}
		walkStrings(key, value, func(path, s string) {
			if suspiciousTokens.MatchString(s) || injectionMarkers.MatchString(s) {
				markers = append(markers, path)
			}
		})
	}

	if customer, ok := meta[models.MetadataCustomer].(map[string]any); ok {
		if email, _ := customer["email"].(string); email != "" && !emailShape.MatchString(email) {
			fields = append(fields, "customer.email")
		}
		if name, _ := customer["name"].(string); name != "" && placeholderName.MatchString(strings.TrimSpace(name)) {
			fields = append(fields, "customer.name")
		}
	}
	sort.Strings(markers)
	return markers, fields
}

func walkStrings(path string, value any, visit func(path, s string)) {
	switch v := value.(type) {
	case string:
		visit(path, v)
	case map[string]any:
		for k, child := range v {
			walkStrings(path+"."+k, child, visit)
		}
	case models.Metadata:
		for k, child := range v {
			walkStrings(path+"."+k, child, visit)
		}
	case []any:
		for i, child := range v {
			walkStrings(path+"["+strconv.Itoa(i)+"]", child, visit)
		}
	}
}

// CheckRateLimit fails open: any error evaluating the window allows the request.
func (m *SecurityMonitor) CheckRateLimit(ctx context.Context, userID int64, action string) models.RateLimitResult {
	ctx, span := otel.Tracer("payment-service").Start(ctx, "CheckRateLimit")
	defer span.End()

	if action == "" {
		action = DefaultRateLimitAction
	}
	span.SetAttributes(attribute.Int64("user_id", userID), attribute.String("action", action))

	now := m.now()
	limit := m.cfg.RateLimitMaxRequests
	window := m.cfg.RateLimitWindow
	open := models.RateLimitResult{Allowed: true, Remaining: limit, ResetTime: now.Add(window)}

	if m.limiter == nil {
		observability.RateLimitDecisions.WithLabelValues(action, "fail_open").Inc()
		return open
	}

	key := fmt.Sprintf("ratelimit:%s:%d", action, userID)
	state, err := m.limiter.SlidingWindowHit(ctx, key, limit, window, now)
	if err != nil {
		span.RecordError(err)
		observability.RateLimitDecisions.WithLabelValues(action, "fail_open").Inc()
		slog.Warn("rate limit check failed, allowing request", "method", "CheckRateLimit", "user_id", userID, "action", action, "error", err)
		return open
	}

	remaining := limit - state.Count
	if remaining < 0 {
		remaining = 0
	}
	oldest := state.Oldest
	if oldest.IsZero() {
		oldest = now
	}
	result := models.RateLimitResult{Allowed: state.Allowed, Remaining: remaining, ResetTime: oldest.Add(window)}

	if !result.Allowed {
		observability.RateLimitDecisions.WithLabelValues(action, "denied").Inc()
		slog.Warn("rate limit exceeded", "method", "CheckRateLimit", "user_id", userID, "action", action, "count", state.Count)
		m.audit.Log(ctx, 0, models.EventRateLimitExceeded, models.Metadata{
			"type":       string(models.SecurityRateLimitExceeded),
			"severity":   string(models.SeverityMedium),
			"user_id":    userID,
			"action":     action,
			"count":      state.Count,
			"limit":      limit,
			"reset_time": result.ResetTime.Format(time.RFC3339),
		})
		return result
	}

	observability.RateLimitDecisions.WithLabelValues(action, "allowed").Inc()
	return result
}
