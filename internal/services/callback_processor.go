package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/infrastructure/observability"
	"github.com/honeynil/payment-orchestrator/internal/models"
	"github.com/honeynil/payment-orchestrator/internal/repository"
	pkgerrors "github.com/honeynil/payment-orchestrator/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	sourceVerification      = "verification"
	sourceVerificationError = "verification_error"
	sourceRawStatus         = "raw_status"
	sourceResourceState     = "resource_state"

	transitionSkippedTerminal = "skipped_terminal"
	transitionConflict        = "conflict"
	transitionLinkMismatch    = "link_mismatch"
)

// CallbackProcessor is the only component that moves a transaction out of pending.
type CallbackProcessor struct {
	verifier     Verifier
	transactions repository.TransactionRepository
	resources    repository.ResourceRepository
	audit        *AuditLogger
	events       *eventEmitter
	normalizer   *StatusNormalizer
	activation   time.Duration
	now          func() time.Time
}

func NewCallbackProcessor(
	verifier Verifier,
	transactions repository.TransactionRepository,
	resources repository.ResourceRepository,
	audit *AuditLogger,
	events *eventEmitter,
	normalizer *StatusNormalizer,
	activation time.Duration,
) *CallbackProcessor {
	if normalizer == nil {
		normalizer = DefaultStatusNormalizer()
	}
	return &CallbackProcessor{
		verifier:     verifier,
		transactions: transactions,
		resources:    resources,
		audit:        audit,
		events:       events,
		normalizer:   normalizer,
		activation:   activation,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

type resolution struct {
	status           models.StatusType
	source           string
	providerStatus   string
	verificationData models.Metadata
	verifiedTxID     int64
}

func (p *CallbackProcessor) ProcessCallback(ctx context.Context, req CallbackRequest) *CallbackResult {
	ctx, span := otel.Tracer("payment-service").Start(ctx, "ProcessCallback")
	span.SetAttributes(
		attribute.String("resource_id", req.ResourceID),
		attribute.String("payment_id", req.PaymentID),
	)
	defer span.End()

	req.ResourceID = strings.TrimSpace(req.ResourceID)
	req.PaymentID = strings.TrimSpace(req.PaymentID)

	resource, err := p.resources.GetByID(ctx, req.ResourceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resource lookup failed")
		message := statusMessage(models.StatusFailed)
		if stderrors.Is(err, pkgerrors.ErrResourceNotFound) {
			message = MessageResourceNotFound
		}
		slog.Error("callback resource lookup failed", "method", "ProcessCallback", "resource_id", req.ResourceID, "error", err)
		p.auditCallback(ctx, 0, req, models.StatusFailed, "resource_lookup", "none", models.Metadata{"error": err.Error()})
		observability.PaymentOperations.WithLabelValues("callback", "resource_not_found").Inc()
		return &CallbackResult{
			Success:    false,
			Status:     models.StatusFailed,
			ResourceID: req.ResourceID,
			Message:    message,
		}
	}

	res := p.resolve(ctx, req, resource)
	tx := p.linkedTransaction(ctx, resource, req.PaymentID, res.verifiedTxID)

	var txID int64
	if tx != nil {
		txID = tx.ID
		span.SetAttributes(attribute.Int64("transaction_id", txID))
	}

	if tx != nil && tx.ExternalReference != "" && tx.ExternalReference != resource.ID {
		span.SetStatus(codes.Error, "callback resource does not match transaction")
		slog.Warn("callback resource does not match linked transaction", "method", "ProcessCallback", "resource_id", resource.ID, "transaction_id", tx.ID, "transaction_resource_id", tx.ExternalReference)
		p.auditCallback(ctx, tx.ID, req, res.status, res.source, transitionLinkMismatch, models.Metadata{
			"transaction_resource_id": tx.ExternalReference,
		})
		observability.PaymentOperations.WithLabelValues("callback", transitionLinkMismatch).Inc()
		return &CallbackResult{
			Success:    false,
			Status:     models.StatusFailed,
			ResourceID: resource.ID,
			Message:    MessageLinkMismatch,
		}
	}

	transition, effective, applyErr := p.apply(ctx, resource, tx, res)
	extra := models.Metadata{}
	if effective != res.status {
		extra["current_status"] = string(effective)
	}
	if applyErr != nil {
		span.RecordError(applyErr)
		span.SetStatus(codes.Error, "callback side effects failed")
		extra["error"] = applyErr.Error()
	}
	p.auditCallback(ctx, txID, req, res.status, res.source, transition, extra)

	result := &CallbackResult{
		Success:          applyErr == nil,
		Status:           effective,
		ResourceID:       resource.ID,
		TransactionID:    txID,
		Message:          statusMessage(effective),
		VerificationData: res.verificationData,
	}
	if applyErr != nil {
		result.Message = messageFinalizeFailed
		observability.PaymentOperations.WithLabelValues("callback", "error").Inc()
	} else {
		observability.PaymentOperations.WithLabelValues("callback", string(effective)).Inc()
	}

	slog.Info("callback processed", "method", "ProcessCallback", "resource_id", resource.ID, "transaction_id", txID, "status", res.status, "source", res.source, "transition", transition)
	return result
}

// resolve applies the priority order: verifier, then raw status, then resource
// state. A successful but non-terminal verification defers to the raw status.
func (p *CallbackProcessor) resolve(ctx context.Context, req CallbackRequest, resource *models.Resource) resolution {
	rawStatus := strings.TrimSpace(req.RawStatus)

	if req.PaymentID != "" {
		vr := p.verifier.VerifyPayment(ctx, req.PaymentID)
		if vr == nil || !vr.Success {
			slog.Warn("verification failed during callback, resolving as failed", "method", "ProcessCallback", "payment_id", req.PaymentID)
			return resolution{status: models.StatusFailed, source: sourceVerificationError, providerStatus: "verification_error"}
		}
		res := resolution{
			status:           p.normalizer.Normalize(vr.Status),
			source:           sourceVerification,
			providerStatus:   vr.Status,
			verificationData: vr.Data,
			verifiedTxID:     vr.TransactionID,
		}
		if res.status == models.StatusPending && rawStatus != "" {
			res.status = p.normalizer.Normalize(rawStatus)
			res.source = sourceRawStatus
			res.providerStatus = rawStatus
		}
		return res
	}

	if rawStatus != "" {
		return resolution{
			status:         p.normalizer.Normalize(rawStatus),
			source:         sourceRawStatus,
			providerStatus: rawStatus,
		}
	}

	status := models.StatusFailed
	if resource.Status == models.ResourceActive || p.normalizer.Normalize(resource.PaymentStatus) == models.StatusCompleted {
		status = models.StatusCompleted
	}
	return resolution{status: status, source: sourceResourceState, providerStatus: resource.PaymentStatus}
}

func (p *CallbackProcessor) linkedTransaction(ctx context.Context, resource *models.Resource, paymentID string, verifiedTxID int64) *models.Transaction {
	var (
		tx  *models.Transaction
		err error
	)
	switch {
	case verifiedTxID > 0:
		tx, err = p.transactions.GetByID(ctx, verifiedTxID)
	case resource.TransactionID != nil:
		tx, err = p.transactions.GetByID(ctx, *resource.TransactionID)
	case paymentID != "":
		tx, err = p.transactions.GetByProviderPaymentID(ctx, paymentID)
	default:
		tx, err = p.transactions.GetLatestByExternalReference(ctx, resource.ID)
	}
	if err != nil {
		if !isNotFound(err) {
			slog.Error("failed to load linked transaction", "method", "ProcessCallback", "resource_id", resource.ID, "error", err)
		}
		return nil
	}
	return tx
}

// apply writes the transaction transition first and touches the resource only
// once the transaction is known to be in the resolved status. It reports the
// transition taken and the status the caller should see.
func (p *CallbackProcessor) apply(ctx context.Context, resource *models.Resource, tx *models.Transaction, res resolution) (string, models.StatusType, error) {
	if res.status == models.StatusPending {
		return "none", res.status, nil
	}

	if tx == nil {
		if res.status == models.StatusCompleted && resource.Status == models.ResourceActive {
			return "already_" + string(res.status), res.status, nil
		}
		if err := p.markResource(ctx, resource, nil, res.status); err != nil {
			return "none", res.status, err
		}
		return "no_transaction", res.status, nil
	}

	switch tx.Status {
	case res.status:
		return p.settle(ctx, resource, tx, "already_"+string(res.status))
	case models.StatusPending:
		return p.transition(ctx, resource, tx, res)
	default:
		slog.Warn("ignoring callback transition out of terminal status", "method", "ProcessCallback", "transaction_id", tx.ID, "current", tx.Status, "requested", res.status)
		return transitionSkippedTerminal, tx.Status, nil
	}
}

func (p *CallbackProcessor) transition(ctx context.Context, resource *models.Resource, tx *models.Transaction, res resolution) (string, models.StatusType, error) {
	var completedAt *time.Time
	patch := models.Metadata{}
	if res.status == models.StatusCompleted {
		now := p.now()
		completedAt = &now
	}
	if len(res.verificationData) > 0 {
		patch[models.MetadataVerification] = map[string]any(res.verificationData)
	}

	err := p.transactions.TransitionStatus(ctx, tx.ID, models.StatusPending, res.status, res.providerStatus, completedAt, patch)
	if stderrors.Is(err, pkgerrors.ErrStatusConflict) {
		p.audit.Log(ctx, tx.ID, models.EventCallbackTransitionConflict, models.Metadata{
			"requested_status": string(res.status),
		})
		current, gerr := p.transactions.GetByID(ctx, tx.ID)
		if gerr != nil {
			return transitionConflict, res.status, fmt.Errorf("failed to reload transaction after conflict: %w", gerr)
		}
		if current.Status != res.status {
			return transitionConflict, current.Status, nil
		}
		return p.settle(ctx, resource, current, transitionConflict)
	}
	if err != nil {
		return "none", res.status, err
	}

	tx.Status = res.status
	tx.CompletedAt = completedAt
	p.events.emit(ctx, statusEventType(res.status), tx, res.status)

	transition := string(models.StatusPending) + "->" + string(res.status)
	if err := p.markResource(ctx, resource, &tx.ID, res.status); err != nil {
		return transition, res.status, err
	}
	return transition, res.status, nil
}

// settle handles a transaction that already holds the resolved status. The
// resource is only written when it does not reflect that status yet, so replays
// never extend an activation.
func (p *CallbackProcessor) settle(ctx context.Context, resource *models.Resource, tx *models.Transaction, transition string) (string, models.StatusType, error) {
	if resourceSettled(resource, tx) {
		return transition, tx.Status, nil
	}
	slog.Info("resource lagging behind transaction, reapplying", "method", "ProcessCallback", "resource_id", resource.ID, "transaction_id", tx.ID, "status", tx.Status)
	if err := p.markResource(ctx, resource, &tx.ID, tx.Status); err != nil {
		return transition, tx.Status, err
	}
	return transition, tx.Status, nil
}

func resourceSettled(resource *models.Resource, tx *models.Transaction) bool {
	switch tx.Status {
	case models.StatusCompleted:
		return resource.TransactionID != nil && *resource.TransactionID == tx.ID
	case models.StatusFailed, models.StatusExpired:
		return resource.Status != models.ResourcePendingPayment
	}
	return true
}

func (p *CallbackProcessor) markResource(ctx context.Context, resource *models.Resource, txID *int64, status models.StatusType) error {
	switch status {
	case models.StatusCompleted:
		return p.resources.Activate(ctx, resource.ID, txID, p.now().Add(p.activation))
	case models.StatusFailed:
		return p.resources.MarkPaymentState(ctx, resource.ID, models.ResourcePaymentFailed, string(status))
	case models.StatusExpired:
		return p.resources.MarkPaymentState(ctx, resource.ID, models.ResourcePaymentExpired, string(status))
	}
	return nil
}

func (p *CallbackProcessor) auditCallback(ctx context.Context, txID int64, req CallbackRequest, status models.StatusType, source, transition string, extra models.Metadata) {
	data := models.Metadata{
		"resource_id":     req.ResourceID,
		"payment_id":      req.PaymentID,
		"raw_status":      req.RawStatus,
		"resolved_status": string(status),
		"source":          source,
		"transition":      transition,
	}
	for k, v := range extra {
		data[k] = v
	}
	p.audit.Log(ctx, txID, models.EventCallbackProcessed, data)
}
