package repository

import (
	"context"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/models"
)

// AuditRepository is the append-only payment_audit_logs table.
type AuditRepository interface {
	Create(ctx context.Context, entry *models.AuditLogEntry) (int64, error)
	CreateBatch(ctx context.Context, entries []models.AuditLogEntry) error
	UpdateEventData(ctx context.Context, id int64, data models.Metadata) error
	ListByTransaction(ctx context.Context, transactionID string, eventType models.AuditEventType) ([]models.AuditLogEntry, error)
	ListByEventTypeSince(ctx context.Context, eventType models.AuditEventType, since time.Time) ([]models.AuditLogEntry, error)
}
