package service

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/infrastructure/observability"
	"github.com/honeynil/payment-orchestrator/internal/models"
	"github.com/honeynil/payment-orchestrator/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Verifier reports the stored status of a payment.
type Verifier interface {
	VerifyPayment(ctx context.Context, paymentID string) *VerificationResult
}

// PaymentVerifier reads authoritative status from the transaction store. It never
// guesses or simulates a provider outcome.
type PaymentVerifier struct {
	transactions repository.TransactionRepository
	configs      ConfigSource
	audit        *AuditLogger
	timeout      time.Duration
	now          func() time.Time
}

func NewPaymentVerifier(transactions repository.TransactionRepository, configs ConfigSource, audit *AuditLogger, timeout time.Duration) *PaymentVerifier {
	return &PaymentVerifier{
		transactions: transactions,
		configs:      configs,
		audit:        audit,
		timeout:      timeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (v *PaymentVerifier) VerifyPayment(ctx context.Context, paymentID string) *VerificationResult {
	ctx, span := otel.Tracer("payment-service").Start(ctx, "VerifyPayment")
	span.SetAttributes(attribute.String("payment_id", paymentID))
	defer span.End()

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	tx, err := v.transactions.GetByProviderPaymentID(ctx, paymentID)
	if err != nil {
		code := CodeInternal
		if isNotFound(err) {
			code = CodeNotFound
		}
		return v.fail(ctx, span, paymentID, 0, code, err)
	}

	cfg, err := v.configs.ActiveProviderConfig(ctx)
	if err != nil {
		return v.fail(ctx, span, paymentID, tx.ID, CodeConfigUnavailable, err)
	}

	paymentURL := tx.PaymentURL()
	if paymentURL == "" {
		paymentURL = deterministicPaymentURL(cfg.BaseURL, paymentID)
		slog.Warn("stored payment url missing, using deterministic url", "method", "VerifyPayment", "transaction_id", tx.ID, "payment_id", paymentID)
	}

	data := models.Metadata{
		"payment_id":      paymentID,
		"status":          string(tx.Status),
		"provider":        tx.Provider,
		"provider_status": tx.ProviderStatus,
		"amount":          tx.Amount,
		"currency":        tx.Currency,
		"verified_at":     v.now().Format(time.RFC3339),
		"source":          "transaction_store",
		"simulated":       false,
	}

	v.audit.Log(ctx, tx.ID, models.EventVerificationPerformed, models.Metadata{
		"payment_id":        paymentID,
		"status":            string(tx.Status),
		"verification_type": "real",
		"simulated":         false,
	})
	observability.PaymentOperations.WithLabelValues("verify", "success").Inc()

	return &VerificationResult{
		Success:       true,
		PaymentID:     paymentID,
		TransactionID: tx.ID,
		Status:        string(tx.Status),
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		PaymentURL:    paymentURL,
		Data:          data,
		Code:          CodeOK,
	}
}

func (v *PaymentVerifier) fail(ctx context.Context, span trace.Span, paymentID string, txID int64, code ResultCode, err error) *VerificationResult {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(code))
	observability.PaymentOperations.WithLabelValues("verify", string(code)).Inc()
	slog.Error("payment verification failed", "method", "VerifyPayment", "payment_id", paymentID, "transaction_id", txID, "code", code, "error", err)

	v.audit.Log(ctx, txID, models.EventVerificationFailed, models.Metadata{
		"payment_id": paymentID,
		"error_code": string(code),
		"error":      err.Error(),
	})
	return &VerificationResult{
		Success:       false,
		PaymentID:     paymentID,
		TransactionID: txID,
		Code:          code,
		Error:         failureMessage(code),
	}
}

// deterministicPaymentURL is the URL shape used when a stored row lacks one.
func deterministicPaymentURL(baseURL, paymentID string) string {
	return strings.TrimRight(baseURL, "/?") + "?payment_id=" + url.QueryEscape(paymentID)
}
