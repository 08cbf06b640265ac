package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/models"
	pkgerrors "github.com/honeynil/payment-orchestrator/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const auditTracer = "audit-repository"

type PostgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

func (r *PostgresAuditRepository) Create(ctx context.Context, entry *models.AuditLogEntry) (id int64, err error) {
	ctx, done := instrument(ctx, auditTracer, "CreateAuditEntry")
	defer func() { done(err) }()

	if entry == nil {
		err = pkgerrors.ErrNilAuditEntry
		return 0, err
	}
	if entry.TransactionID == "" {
		entry.TransactionID = models.UnknownTransactionID
	}

	query := `INSERT INTO payment_audit_logs (transaction_id, event_type, event_data) VALUES ($1, $2, $3) RETURNING id, created_at`
	var createdAt time.Time
	err = r.db.QueryRowContext(ctx, query, entry.TransactionID, entry.EventType, entry.EventData).Scan(&id, &createdAt)
	if err != nil {
		slog.Error("failed to create audit entry", "method", "Create", "transaction_id", entry.TransactionID, "event_type", entry.EventType, "error", err)
		return 0, fmt.Errorf("failed to create audit entry: %w", err)
	}
	entry.ID = id
	entry.CreatedAt = createdAt
	return id, nil
}

func (r *PostgresAuditRepository) CreateBatch(ctx context.Context, entries []models.AuditLogEntry) (err error) {
	ctx, done := instrument(ctx, auditTracer, "CreateAuditBatch", attribute.Int("count", len(entries)))
	defer func() { done(err) }()

	if len(entries) == 0 {
		return nil
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := dbTx.Rollback(); rbErr != nil {
				slog.Error("rollback failed", "method", "CreateBatch", "error", rbErr)
			}
		}
	}()

	stmt, err := dbTx.PrepareContext(ctx, `INSERT INTO payment_audit_logs (transaction_id, event_type, event_data) VALUES ($1, $2, $3)`)
	if err != nil {
		return fmt.Errorf("failed to prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		txID := e.TransactionID
		if txID == "" {
			txID = models.UnknownTransactionID
		}
		if _, err = stmt.ExecContext(ctx, txID, e.EventType, e.EventData); err != nil {
			slog.Error("failed to insert audit entry", "method", "CreateBatch", "event_type", e.EventType, "error", err)
			return fmt.Errorf("failed to insert audit entry: %w", err)
		}
	}

	if err = dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit batch: %w", err)
	}
	return nil
}

func (r *PostgresAuditRepository) UpdateEventData(ctx context.Context, id int64, data models.Metadata) (err error) {
	ctx, done := instrument(ctx, auditTracer, "UpdateAuditEventData", attribute.Int64("audit_id", id))
	defer func() { done(err) }()

	query := `UPDATE payment_audit_logs SET event_data = COALESCE(event_data, '{}'::jsonb) || $2::jsonb WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, data)
	if err != nil {
		slog.Error("failed to update audit entry", "method", "UpdateEventData", "audit_id", id, "error", err)
		return fmt.Errorf("failed to update audit entry: %w", err)
	}
	return expectOneRow(res, pkgerrors.ErrAuditEntryNotFound)
}

func (r *PostgresAuditRepository) ListByTransaction(ctx context.Context, transactionID string, eventType models.AuditEventType) (entries []models.AuditLogEntry, err error) {
	ctx, done := instrument(ctx, auditTracer, "ListAuditByTransaction",
		attribute.String("transaction_id", transactionID),
		attribute.String("event_type", string(eventType)),
	)
	defer func() { done(err) }()

	query := `SELECT id, transaction_id, event_type, event_data, created_at FROM payment_audit_logs WHERE transaction_id = $1 AND event_type = $2 ORDER BY created_at DESC, id DESC`
	entries, err = r.list(ctx, query, transactionID, eventType)
	if err != nil {
		slog.Error("failed to list audit entries", "method", "ListByTransaction", "transaction_id", transactionID, "error", err)
	}
	return entries, err
}

func (r *PostgresAuditRepository) ListByEventTypeSince(ctx context.Context, eventType models.AuditEventType, since time.Time) (entries []models.AuditLogEntry, err error) {
	ctx, done := instrument(ctx, auditTracer, "ListAuditByEventTypeSince", attribute.String("event_type", string(eventType)))
	defer func() { done(err) }()

	query := `SELECT id, transaction_id, event_type, event_data, created_at FROM payment_audit_logs WHERE event_type = $1 AND created_at >= $2 ORDER BY created_at DESC, id DESC`
	entries, err = r.list(ctx, query, eventType, since)
	if err != nil {
		slog.Error("failed to list audit entries", "method", "ListByEventTypeSince", "event_type", eventType, "error", err)
	}
	return entries, err
}

func (r *PostgresAuditRepository) list(ctx context.Context, query string, args ...any) ([]models.AuditLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var out []models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.EventType, &e.EventData, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}
	return out, nil
}
