package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/config"
	"github.com/honeynil/payment-orchestrator/internal/infrastructure/observability"
	"github.com/honeynil/payment-orchestrator/internal/models"
	"github.com/honeynil/payment-orchestrator/internal/repository"
	pkgerrors "github.com/honeynil/payment-orchestrator/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RiskAnalyzer gates recovery on the transaction's risk score.
type RiskAnalyzer interface {
	AnalyzeTransaction(ctx context.Context, transactionID int64) (*models.RiskAnalysis, error)
}

var recoverableReasons = map[models.RecoveryReason]bool{
	models.ReasonNetworkError:      true,
	models.ReasonTimeout:           true,
	models.ReasonTemporaryAPIError: true,
	models.ReasonExpiredSession:    true,
}

var statsWindows = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
}

const (
	defaultStatsWindow = "24h"
	topFailureReasons  = 5
)

type RecoveryManager struct {
	transactions repository.TransactionRepository
	auditRepo    repository.AuditRepository
	audit        *AuditLogger
	risk         RiskAnalyzer
	provider     ProviderClient
	events       *eventEmitter
	cfg          config.RecoveryConfig
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewRecoveryManager(
	transactions repository.TransactionRepository,
	auditRepo repository.AuditRepository,
	audit *AuditLogger,
	risk RiskAnalyzer,
	provider ProviderClient,
	events *eventEmitter,
	cfg config.RecoveryConfig,
) *RecoveryManager {
	return &RecoveryManager{
		transactions: transactions,
		auditRepo:    auditRepo,
		audit:        audit,
		risk:         risk,
		provider:     provider,
		events:       events,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
		sleep:        sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *RecoveryManager) AttemptRecovery(ctx context.Context, transactionID int64, reason models.RecoveryReason) *RecoveryResult {
	ctx, span := otel.Tracer("payment-service").Start(ctx, "AttemptRecovery")
	span.SetAttributes(attribute.Int64("transaction_id", transactionID), attribute.String("reason", string(reason)))
	defer span.End()

	if !recoverableReasons[reason] {
		return r.reject(ctx, span, transactionID, reason, CodeRecoveryRejected,
			fmt.Sprintf("Recovery not allowed for this type of error: %s", reason))
	}

	tx, err := r.transactions.GetByID(ctx, transactionID)
	if err != nil {
		code := CodeInternal
		if isNotFound(err) {
			code = CodeNotFound
		}
		span.RecordError(err)
		slog.Error("recovery failed to load transaction", "method", "AttemptRecovery", "transaction_id", transactionID, "error", err)
		return r.reject(ctx, span, transactionID, reason, code, failureMessage(code))
	}
	switch tx.Status {
	case models.StatusFailed, models.StatusExpired:
	case models.StatusCompleted:
		return r.reject(ctx, span, tx.ID, reason, CodeRecoveryRejected, "Transaction is already completed and cannot be recovered")
	default:
		return r.reject(ctx, span, tx.ID, reason, CodeRecoveryRejected, "Transaction is still pending and cannot be recovered")
	}

	prior, err := r.auditRepo.ListByTransaction(ctx, models.TransactionRef(tx.ID), models.EventRecoveryAttempt)
	if err != nil {
		span.RecordError(err)
		slog.Error("recovery failed to load prior attempts", "method", "AttemptRecovery", "transaction_id", tx.ID, "error", err)
		return r.reject(ctx, span, tx.ID, reason, CodeInternal, failureMessage(CodeInternal))
	}

	if len(prior) >= r.cfg.MaxAttempts {
		return r.reject(ctx, span, tx.ID, reason, CodeRecoveryRejected,
			fmt.Sprintf("Maximum recovery attempts (%d) exceeded", r.cfg.MaxAttempts))
	}

	if wait := r.remainingDelay(prior); wait > 0 {
		seconds := int(math.Ceil(wait.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		return r.reject(ctx, span, tx.ID, reason, CodeRecoveryRejected,
			fmt.Sprintf("Please wait %d more seconds before retrying", seconds))
	}

	analysis, err := r.risk.AnalyzeTransaction(ctx, tx.ID)
	if err != nil {
		span.RecordError(err)
		return r.reject(ctx, span, tx.ID, reason, CodeRecoveryRejected, "Recovery rejected: risk analysis unavailable")
	}
	if analysis.ShouldBlock {
		return r.reject(ctx, span, tx.ID, reason, CodeSecurityBlocked,
			fmt.Sprintf("Recovery blocked by security analysis (risk score %d)", analysis.RiskScore))
	}

	return r.execute(ctx, span, tx, reason, len(prior)+1)
}

// remainingDelay is measured from the latest prior attempt.
func (r *RecoveryManager) remainingDelay(prior []models.AuditLogEntry) time.Duration {
	if len(prior) == 0 || r.cfg.DelayBetweenAttempts <= 0 {
		return 0
	}
	var latest time.Time
	for _, p := range prior {
		if p.CreatedAt.After(latest) {
			latest = p.CreatedAt
		}
	}
	elapsed := r.now().Sub(latest)
	if elapsed >= r.cfg.DelayBetweenAttempts {
		return 0
	}
	return r.cfg.DelayBetweenAttempts - elapsed
}

func (r *RecoveryManager) execute(ctx context.Context, span trace.Span, tx *models.Transaction, reason models.RecoveryReason, attempt int) *RecoveryResult {
	auditID, err := r.audit.Start(ctx, tx.ID, models.EventRecoveryAttempt, models.Metadata{
		"attempt_number": attempt,
		"reason":         string(reason),
		"status":         string(models.AttemptStarted),
		"started_at":     r.now().Format(time.RFC3339),
	})
	if err != nil {
		span.RecordError(err)
		slog.Error("recovery aborted, attempt could not be recorded", "method", "AttemptRecovery", "transaction_id", tx.ID, "attempt", attempt, "error", err)
		return r.reject(ctx, span, tx.ID, reason, CodeInternal, failureMessage(CodeInternal))
	}

	runErr := r.dispatch(ctx, tx, reason)
	if runErr == nil {
		recoveredAt := r.now()
		runErr = r.transactions.ResetToPending(ctx, tx.ID, tx.Status, models.Metadata{
			models.MetadataRecoveryInfo: map[string]any{
				"recovered":      true,
				"attempt_number": attempt,
				"recovered_at":   recoveredAt.Format(time.RFC3339),
				"reason":         string(reason),
			},
		})
	}

	outcome := models.Metadata{
		"status":      string(models.AttemptSucceeded),
		"success":     runErr == nil,
		"finished_at": r.now().Format(time.RFC3339),
	}
	if runErr != nil {
		outcome["status"] = string(models.AttemptFailed)
		outcome["error"] = runErr.Error()
	}
	r.audit.Update(ctx, auditID, outcome)

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "recovery failed")
		observability.RecoveryAttempts.WithLabelValues(string(reason), "failed").Inc()
		slog.Error("recovery attempt failed", "method", "AttemptRecovery", "transaction_id", tx.ID, "attempt", attempt, "reason", reason, "error", runErr)
		return &RecoveryResult{
			Success:       false,
			Code:          CodeRecoveryFailed,
			Message:       failureMessage(CodeRecoveryFailed),
			TransactionID: tx.ID,
			Reason:        reason,
			AttemptNumber: attempt,
			Error:         failureMessage(CodeRecoveryFailed),
		}
	}

	r.audit.Log(ctx, tx.ID, models.EventTransactionRecovered, models.Metadata{
		"attempt_number":  attempt,
		"reason":          string(reason),
		"previous_status": string(tx.Status),
	})
	tx.Status = models.StatusPending
	tx.CompletedAt = nil
	r.events.emit(ctx, EventTypePaymentRecovered, tx, models.StatusPending)
	observability.RecoveryAttempts.WithLabelValues(string(reason), "succeeded").Inc()
	slog.Info("transaction recovered", "method", "AttemptRecovery", "transaction_id", tx.ID, "attempt", attempt, "reason", reason)

	return &RecoveryResult{
		Success:       true,
		Code:          CodeOK,
		Message:       "Transaction recovered and returned to pending",
		TransactionID: tx.ID,
		Reason:        reason,
		AttemptNumber: attempt,
	}
}

func (r *RecoveryManager) dispatch(ctx context.Context, tx *models.Transaction, reason models.RecoveryReason) error {
	if r.provider == nil {
		return stderrors.New("provider client not configured")
	}
	switch reason {
	case models.ReasonNetworkError, models.ReasonTimeout:
		return r.provider.RetryPayment(ctx, tx)
	case models.ReasonTemporaryAPIError:
		if err := r.sleep(ctx, r.cfg.TemporaryErrorDelay); err != nil {
			return fmt.Errorf("waiting before retry: %w", err)
		}
		return r.provider.RetryPayment(ctx, tx)
	case models.ReasonExpiredSession:
		if err := r.provider.RefreshSession(ctx, tx); err != nil {
			return fmt.Errorf("refresh session: %w", err)
		}
		return r.provider.RetryPayment(ctx, tx)
	}
	return fmt.Errorf("no recovery strategy for %q", reason)
}

func (r *RecoveryManager) reject(ctx context.Context, span trace.Span, transactionID int64, reason models.RecoveryReason, code ResultCode, message string) *RecoveryResult {
	span.SetStatus(codes.Error, string(code))
	observability.RecoveryAttempts.WithLabelValues(string(reason), "rejected").Inc()
	slog.Warn("recovery rejected", "method", "AttemptRecovery", "transaction_id", transactionID, "reason", reason, "code", code, "message", message)
	r.audit.Log(ctx, transactionID, models.EventRecoveryRejected, models.Metadata{
		"reason":     string(reason),
		"error_code": string(code),
		"message":    message,
	})
	return &RecoveryResult{
		Success:       false,
		Code:          code,
		Message:       message,
		TransactionID: transactionID,
		Reason:        reason,
		Error:         message,
	}
}

// GetRecoveryStats aggregates recovery_attempt entries over a trailing window.
func (r *RecoveryManager) GetRecoveryStats(ctx context.Context, window string) (*models.RecoveryStats, error) {
	ctx, span := otel.Tracer("payment-service").Start(ctx, "GetRecoveryStats")
	defer span.End()

	if window == "" {
		window = defaultStatsWindow
	}
	d, ok := statsWindows[window]
	if !ok {
		return nil, fmt.Errorf("%w: %q", pkgerrors.ErrInvalidWindow, window)
	}
	span.SetAttributes(attribute.String("window", window))

	entries, err := r.auditRepo.ListByEventTypeSince(ctx, models.EventRecoveryAttempt, r.now().Add(-d))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list attempts failed")
		return nil, fmt.Errorf("list recovery attempts: %w", err)
	}

	stats := &models.RecoveryStats{Window: window, CommonFailureReasons: []models.FailureReasonCount{}}
	failures := map[string]int{}
	for _, e := range entries {
		a := models.RecoveryAttemptFromAudit(e)
		stats.TotalAttempts++
		switch {
		case a.Success:
			stats.SuccessfulRecoveries++
		case a.Status == models.AttemptFailed:
			stats.FailedRecoveries++
			key := a.Error
			if key == "" {
				key = string(a.Reason)
			}
			failures[key]++
		}
	}
	if stats.TotalAttempts > 0 {
		rate := float64(stats.SuccessfulRecoveries) / float64(stats.TotalAttempts) * 100
		stats.SuccessRate = math.Round(rate*100) / 100
	}

	for reason, count := range failures {
		stats.CommonFailureReasons = append(stats.CommonFailureReasons, models.FailureReasonCount{Reason: reason, Count: count})
	}
	sort.Slice(stats.CommonFailureReasons, func(i, j int) bool {
		a, b := stats.CommonFailureReasons[i], stats.CommonFailureReasons[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Reason < b.Reason
	})
	if len(stats.CommonFailureReasons) > topFailureReasons {
		stats.CommonFailureReasons = stats.CommonFailureReasons[:topFailureReasons]
	}
	return stats, nil
}
