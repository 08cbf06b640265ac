package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/infrastructure/observability"
	"github.com/honeynil/payment-orchestrator/internal/models"
	"github.com/honeynil/payment-orchestrator/internal/repository"
)

const auditWriteTimeout = 5 * time.Second

// AuditLogger writes audit entries without ever failing the caller.
type AuditLogger struct {
	repo repository.AuditRepository
}

func NewAuditLogger(repo repository.AuditRepository) *AuditLogger {
	return &AuditLogger{repo: repo}
}

// auditContext detaches audit writes from caller cancellation but keeps them bounded.
func auditContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
}

func (a *AuditLogger) Log(ctx context.Context, transactionID int64, eventType models.AuditEventType, data models.Metadata) {
	if a == nil || a.repo == nil {
		return
	}
	ctx, cancel := auditContext(ctx)
	defer cancel()

	entry := &models.AuditLogEntry{
		TransactionID: models.TransactionRef(transactionID),
		EventType:     eventType,
		EventData:     data,
	}
	if _, err := a.repo.Create(ctx, entry); err != nil {
		observability.AuditWriteFailures.WithLabelValues(string(eventType)).Inc()
		slog.Error("audit write failed", "method", "AuditLogger.Log", "event_type", eventType, "transaction_id", entry.TransactionID, "error", err)
	}
}

func (a *AuditLogger) LogBatch(ctx context.Context, entries []models.AuditLogEntry) {
	if a == nil || a.repo == nil || len(entries) == 0 {
		return
	}
	ctx, cancel := auditContext(ctx)
	defer cancel()

	if err := a.repo.CreateBatch(ctx, entries); err != nil {
		observability.AuditWriteFailures.WithLabelValues(string(entries[0].EventType)).Inc()
		slog.Error("audit batch write failed", "method", "AuditLogger.LogBatch", "count", len(entries), "error", err)
	}
}

// Start writes an entry whose id the caller needs for a later Update.
// Unlike Log, the error is returned.
func (a *AuditLogger) Start(ctx context.Context, transactionID int64, eventType models.AuditEventType, data models.Metadata) (int64, error) {
	if a == nil || a.repo == nil {
		return 0, errors.New("audit repository not configured")
	}
	ctx, cancel := auditContext(ctx)
	defer cancel()

	entry := &models.AuditLogEntry{
		TransactionID: models.TransactionRef(transactionID),
		EventType:     eventType,
		EventData:     data,
	}
	id, err := a.repo.Create(ctx, entry)
	if err != nil {
		observability.AuditWriteFailures.WithLabelValues(string(eventType)).Inc()
		return 0, err
	}
	return id, nil
}

func (a *AuditLogger) Update(ctx context.Context, id int64, data models.Metadata) {
	if a == nil || a.repo == nil || id == 0 {
		return
	}
	ctx, cancel := auditContext(ctx)
	defer cancel()

	if err := a.repo.UpdateEventData(ctx, id, data); err != nil {
		observability.AuditWriteFailures.WithLabelValues("update").Inc()
		slog.Error("audit update failed", "method", "AuditLogger.Update", "audit_id", id, "error", err)
	}
}
