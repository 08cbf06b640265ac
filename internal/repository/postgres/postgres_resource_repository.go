package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/models"
	pkgerrors "github.com/honeynil/payment-orchestrator/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

const resourceTracer = "resource-repository"

type PostgresResourceRepository struct {
	db *sql.DB
}

func NewPostgresResourceRepository(db *sql.DB) *PostgresResourceRepository {
	return &PostgresResourceRepository{db: db}
}

func (r *PostgresResourceRepository) GetByID(ctx context.Context, id string) (res *models.Resource, err error) {
	ctx, done := instrument(ctx, resourceTracer, "GetResourceByID", attribute.String("resource_id", id))
	defer func() { done(err) }()

	query := `SELECT id, status, COALESCE(payment_status, ''), transaction_id, active_until, updated_at FROM payable_resources WHERE id = $1`
	var (
		resource    models.Resource
		txID        sql.NullInt64
		activeUntil sql.NullTime
	)
	err = r.db.QueryRowContext(ctx, query, id).Scan(
		&resource.ID,
		&resource.Status,
		&resource.PaymentStatus,
		&txID,
		&activeUntil,
		&resource.UpdatedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrResourceNotFound
		slog.Warn("resource not found", "method", "GetByID", "resource_id", id)
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get resource", "method", "GetByID", "resource_id", id, "error", err)
		return nil, fmt.Errorf("failed to get resource: %w", err)
	}
	if txID.Valid {
		v := txID.Int64
		resource.TransactionID = &v
	}
	if activeUntil.Valid {
		t := activeUntil.Time
		resource.ActiveUntil = &t
	}
	return &resource, nil
}

func (r *PostgresResourceRepository) Activate(ctx context.Context, id string, transactionID *int64, activeUntil time.Time) (err error) {
	ctx, done := instrument(ctx, resourceTracer, "ActivateResource", attribute.String("resource_id", id))
	defer func() { done(err) }()

	query := `UPDATE payable_resources SET status = $2, payment_status = $3, transaction_id = COALESCE($4, transaction_id), active_until = $5, updated_at = now() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, models.ResourceActive, string(models.StatusCompleted), transactionID, activeUntil)
	if err != nil {
		slog.Error("failed to activate resource", "method", "Activate", "resource_id", id, "error", err)
		return fmt.Errorf("failed to activate resource: %w", err)
	}
	if err = expectOneRow(res, pkgerrors.ErrResourceNotFound); err != nil {
		return err
	}
	slog.Info("resource activated", "method", "Activate", "resource_id", id, "active_until", activeUntil)
	return nil
}

func (r *PostgresResourceRepository) MarkPaymentState(ctx context.Context, id string, status models.ResourceStatus, paymentStatus string) (err error) {
	ctx, done := instrument(ctx, resourceTracer, "MarkResourcePaymentState", attribute.String("resource_id", id))
	defer func() { done(err) }()

	query := `UPDATE payable_resources SET status = $2, payment_status = $3, updated_at = now() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, paymentStatus)
	if err != nil {
		slog.Error("failed to update resource", "method", "MarkPaymentState", "resource_id", id, "error", err)
		return fmt.Errorf("failed to update resource: %w", err)
	}
	if err = expectOneRow(res, pkgerrors.ErrResourceNotFound); err != nil {
		return err
	}
	slog.Info("resource payment state updated", "method", "MarkPaymentState", "resource_id", id, "status", status)
	return nil
}
