package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/payment-orchestrator/internal/infrastructure/auth"
	"github.com/honeynil/payment-orchestrator/internal/infrastructure/observability"
	"github.com/honeynil/payment-orchestrator/internal/models"
	"github.com/honeynil/payment-orchestrator/internal/repository"
	pkgerrors "github.com/honeynil/payment-orchestrator/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

type PaymentCreator struct {
	transactions repository.TransactionRepository
	urls         URLBuilder
	audit        *AuditLogger
	events       *eventEmitter
	expiry       time.Duration
	timeout      time.Duration
	now          func() time.Time
}

func NewPaymentCreator(
	transactions repository.TransactionRepository,
	urls URLBuilder,
	audit *AuditLogger,
	events *eventEmitter,
	expiry time.Duration,
	timeout time.Duration,
) *PaymentCreator {
	return &PaymentCreator{
		transactions: transactions,
		urls:         urls,
		audit:        audit,
		events:       events,
		expiry:       expiry,
		timeout:      timeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// newPaymentID returns a time-prefixed id with a random suffix. Uniqueness is
// ultimately enforced by the store's unique index on provider_payment_id.
func newPaymentID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	return fmt.Sprintf("PAY-%d-%s", now.UnixMilli(), suffix)
}

// reservedMetadataKeys are written only by the payment pipeline itself.
var reservedMetadataKeys = map[string]struct{}{
	models.MetadataPaymentURL:         {},
	models.MetadataPaymentURLFallback: {},
	models.MetadataCustomer:           {},
	models.MetadataDescription:        {},
	models.MetadataResourceID:         {},
	models.MetadataVerification:       {},
	models.MetadataRecoveryInfo:       {},
}

func (c *PaymentCreator) CreatePayment(ctx context.Context, req CreatePaymentRequest) *CreatePaymentResult {
	ctx, span := otel.Tracer("payment-service").Start(ctx, "CreatePayment")
	defer span.End()

	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return c.fail(ctx, span, req, 0, CodeUnauthenticated, pkgerrors.ErrUnauthenticated)
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if err := validateCreateRequest(req); err != nil {
		return c.fail(ctx, span, req, userID, CodeValidation, err)
	}

	now := c.now()
	paymentID := newPaymentID(now)
	span.SetAttributes(
		attribute.String("payment_id", paymentID),
		attribute.Int64("user_id", userID),
		attribute.Int64("amount", req.Amount),
		attribute.String("currency", req.Currency),
	)

	genCtx, cancel := c.boundedContext(ctx)
	generated, err := c.urls.Generate(genCtx, paymentID, req.Amount, req.Currency, req.Customer)
	cancel()
	if err != nil {
		return c.fail(ctx, span, req, userID, CodeInternal, fmt.Errorf("failed to generate payment url: %w", err))
	}

	metadata := models.Metadata{}
	for k, v := range req.Metadata {
		if _, reserved := reservedMetadataKeys[k]; reserved {
			slog.Warn("dropping reserved metadata key from request", "method", "CreatePayment", "key", k, "user_id", userID)
			continue
		}
		metadata[k] = v
	}
	metadata[models.MetadataPaymentURL] = generated.URL
	metadata[models.MetadataCustomer] = map[string]any{
		"name":  req.Customer.Name,
		"email": req.Customer.Email,
		"phone": req.Customer.Phone,
	}
	if req.Description != "" {
		metadata[models.MetadataDescription] = req.Description
	}
	if req.ResourceID != "" {
		metadata[models.MetadataResourceID] = req.ResourceID
	}
	if generated.Fallback {
		metadata[models.MetadataPaymentURLFallback] = true
	}

	tx := &models.Transaction{
		UserID:            userID,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Status:            models.StatusPending,
		Provider:          generated.Provider,
		ProviderPaymentID: paymentID,
		ProviderStatus:    "created",
		ExternalReference: req.ResourceID,
		ExpiresAt:         now.Add(c.expiry),
		Metadata:          metadata,
	}

	txID, err := c.transactions.Create(ctx, tx)
	if err != nil {
		return c.fail(ctx, span, req, userID, CodeInternal, err)
	}
	tx.ID = txID

	if err := c.ensurePaymentURL(ctx, txID, paymentID, generated.URL); err != nil {
		return c.fail(ctx, span, req, userID, CodeInternal, err)
	}

	c.audit.Log(ctx, txID, models.EventPaymentCreated, models.Metadata{
		"payment_id":           paymentID,
		"user_id":              userID,
		"amount":               req.Amount,
		"currency":             req.Currency,
		"provider":             generated.Provider,
		"fallback_url":         generated.Fallback,
		"resource_id":          req.ResourceID,
		"customer_email":       maskEmail(req.Customer.Email),
		"customer_email_hash":  fingerprint(req.Customer.Email),
		"customer_phone_hash":  fingerprint(req.Customer.Phone),
		"has_customer_name":    req.Customer.Name != "",
		"description_provided": req.Description != "",
	})
	c.events.emit(ctx, EventTypePaymentCreated, tx, models.StatusPending)
	observability.PaymentOperations.WithLabelValues("create", "success").Inc()

	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	slog.Info("payment created", "method", "CreatePayment", "transaction_id", txID, "payment_id", paymentID, "user_id", userID, "fallback_url", generated.Fallback)
	return &CreatePaymentResult{
		Success: true,
		Code:    CodeOK,
		PaymentData: &PaymentData{
			PaymentID:     paymentID,
			Status:        models.StatusPending,
			Amount:        req.Amount,
			Currency:      req.Currency,
			PaymentURL:    generated.URL,
			CreatedAt:     createdAt,
			ExpiresAt:     tx.ExpiresAt,
			TransactionID: txID,
		},
	}
}

// ensurePaymentURL re-reads the persisted row and repairs a missing or divergent URL.
// Repeating it is harmless.
func (c *PaymentCreator) ensurePaymentURL(ctx context.Context, txID int64, paymentID, paymentURL string) error {
	stored, err := c.transactions.GetByID(ctx, txID)
	if err == nil && stored.PaymentURL() == paymentURL {
		return nil
	}
	if err != nil {
		slog.Warn("could not re-read created transaction, applying corrective update", "method", "ensurePaymentURL", "transaction_id", txID, "error", err)
	}

	if err := c.transactions.MergeMetadata(ctx, txID, models.Metadata{models.MetadataPaymentURL: paymentURL}); err != nil {
		slog.Error("corrective payment url update failed", "method", "ensurePaymentURL", "transaction_id", txID, "payment_id", paymentID, "error", err)
		return fmt.Errorf("%w: %v", pkgerrors.ErrMissingPaymentURL, err)
	}
	c.audit.Log(ctx, txID, models.EventPaymentURLCorrected, models.Metadata{
		"payment_id": paymentID,
	})
	slog.Warn("payment url corrected after persistence", "method", "ensurePaymentURL", "transaction_id", txID, "payment_id", paymentID)
	return nil
}

func (c *PaymentCreator) boundedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *PaymentCreator) fail(ctx context.Context, span trace.Span, req CreatePaymentRequest, userID int64, code ResultCode, err error) *CreatePaymentResult {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(code))
	observability.PaymentOperations.WithLabelValues("create", string(code)).Inc()

	retryReason, _ := ClassifyFailure(err)
	slog.Error("payment creation failed", "method", "CreatePayment", "user_id", userID, "code", code, "retry_reason", retryReason, "error", err)

	c.audit.Log(ctx, 0, models.EventPaymentCreationFailed, models.Metadata{
		"user_id":            userID,
		"amount":             req.Amount,
		"currency":           req.Currency,
		"resource_id":        req.ResourceID,
		"has_customer_email": req.Customer.Email != "",
		"error_code":         string(code),
		"error":              err.Error(),
		"retry_reason":       string(retryReason),
	})

	return &CreatePaymentResult{
		Success:     false,
		Code:        code,
		Error:       failureMessage(code),
		RetryReason: retryReason,
	}
}

func validateCreateRequest(req CreatePaymentRequest) error {
	if req.Amount <= 0 {
		return pkgerrors.ErrInvalidAmount
	}
	if !currencyPattern.MatchString(req.Currency) {
		return fmt.Errorf("%w: %q", pkgerrors.ErrInvalidCurrency, req.Currency)
	}
	if len(req.Description) > 500 {
		return fmt.Errorf("%w: description too long", pkgerrors.ErrInvalidInput)
	}
	return nil
}

func isNotFound(err error) bool {
	return stderrors.Is(err, pkgerrors.ErrTransactionNotFound) || stderrors.Is(err, pkgerrors.ErrResourceNotFound)
}
