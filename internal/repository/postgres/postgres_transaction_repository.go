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

const transactionTracer = "transaction-repository"

const transactionColumns = `id, user_id, amount, currency, status, provider, provider_payment_id,
	COALESCE(provider_status, ''), COALESCE(external_reference, ''), created_at, expires_at, completed_at, metadata`

type PostgresTransactionRepository struct {
	db *sql.DB
}

func NewPostgresTransactionRepository(db *sql.DB) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var tx models.Transaction
	var completedAt sql.NullTime
	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Amount,
		&tx.Currency,
		&tx.Status,
		&tx.Provider,
		&tx.ProviderPaymentID,
		&tx.ProviderStatus,
		&tx.ExternalReference,
		&tx.CreatedAt,
		&tx.ExpiresAt,
		&completedAt,
		&tx.Metadata,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		tx.CompletedAt = &t
	}
	if tx.Metadata == nil {
		tx.Metadata = models.Metadata{}
	}
	return &tx, nil
}

func (r *PostgresTransactionRepository) Create(ctx context.Context, tx *models.Transaction) (id int64, err error) {
	ctx, done := instrument(ctx, transactionTracer, "CreateTransaction")
	defer func() { done(err) }()

	if tx == nil {
		err = pkgerrors.ErrNilTransaction
		slog.Error("failed to create transaction", "method", "Create", "error", err)
		return 0, err
	}
	if !tx.Status.Valid() {
		err = pkgerrors.ErrInvalidTransactionStatus
		slog.Error("invalid transaction status", "method", "Create", "status", tx.Status, "error", err)
		return 0, err
	}
	if tx.Amount <= 0 {
		err = pkgerrors.ErrInvalidAmount
		slog.Error("amount must be positive", "method", "Create", "amount", tx.Amount, "error", err)
		return 0, err
	}

	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "Create", "error", err)
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	query := `INSERT INTO payment_transactions (user_id, amount, currency, status, provider, provider_payment_id, provider_status, external_reference, expires_at, metadata) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id, created_at`
	var createdAt time.Time
	err = dbTx.QueryRowContext(ctx, query,
		tx.UserID, tx.Amount, tx.Currency, tx.Status, tx.Provider, tx.ProviderPaymentID,
		tx.ProviderStatus, tx.ExternalReference, tx.ExpiresAt, tx.Metadata,
	).Scan(&id, &createdAt)
	if err != nil {
		if rbErr := dbTx.Rollback(); rbErr != nil {
			err = fmt.Errorf("rollback failed: %v; original error: %w", rbErr, err)
			slog.Error("rollback failed", "method", "Create", "error", rbErr)
		} else {
			slog.Error("failed to create transaction", "method", "Create", "user_id", tx.UserID, "payment_id", tx.ProviderPaymentID, "error", err)
		}
		return 0, fmt.Errorf("failed to create transaction: %w", err)
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "Create", "error", err)
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	tx.ID = id
	tx.CreatedAt = createdAt
	slog.Info("transaction created", "method", "Create", "id", id, "user_id", tx.UserID, "payment_id", tx.ProviderPaymentID, "status", tx.Status)
	return id, nil
}

func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id int64) (tx *models.Transaction, err error) {
	ctx, done := instrument(ctx, transactionTracer, "GetTransactionByID", attribute.Int64("transaction_id", id))
	defer func() { done(err) }()

	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE id = $1`
	tx, err = scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrTransactionNotFound
		slog.Warn("transaction not found", "method", "GetByID", "transaction_id", id)
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get transaction by id", "method", "GetByID", "transaction_id", id, "error", err)
		return nil, fmt.Errorf("failed to get transaction by id: %w", err)
	}
	return tx, nil
}

func (r *PostgresTransactionRepository) GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (tx *models.Transaction, err error) {
	ctx, done := instrument(ctx, transactionTracer, "GetTransactionByProviderPaymentID", attribute.String("payment_id", providerPaymentID))
	defer func() { done(err) }()

	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE provider_payment_id = $1`
	tx, err = scanTransaction(r.db.QueryRowContext(ctx, query, providerPaymentID))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrTransactionNotFound
		slog.Warn("transaction not found", "method", "GetByProviderPaymentID", "payment_id", providerPaymentID)
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get transaction by payment id", "method", "GetByProviderPaymentID", "payment_id", providerPaymentID, "error", err)
		return nil, fmt.Errorf("failed to get transaction by payment id: %w", err)
	}
	return tx, nil
}

func (r *PostgresTransactionRepository) GetLatestByExternalReference(ctx context.Context, reference string) (tx *models.Transaction, err error) {
	ctx, done := instrument(ctx, transactionTracer, "GetLatestTransactionByReference", attribute.String("external_reference", reference))
	defer func() { done(err) }()

	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE external_reference = $1 ORDER BY created_at DESC LIMIT 1`
	tx, err = scanTransaction(r.db.QueryRowContext(ctx, query, reference))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrTransactionNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get transaction by reference", "method", "GetLatestByExternalReference", "external_reference", reference, "error", err)
		return nil, fmt.Errorf("failed to get transaction by reference: %w", err)
	}
	return tx, nil
}

func (r *PostgresTransactionRepository) ListByUserSince(ctx context.Context, userID int64, since time.Time) (txs []models.Transaction, err error) {
	ctx, done := instrument(ctx, transactionTracer, "ListTransactionsByUserSince", attribute.Int64("user_id", userID))
	defer func() { done(err) }()

	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE user_id = $1 AND created_at >= $2 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID, since)
	if err != nil {
		slog.Error("failed to list transactions", "method", "ListByUserSince", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		tx, scanErr := scanTransaction(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan transaction: %w", scanErr)
			return nil, err
		}
		txs = append(txs, *tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}

func (r *PostgresTransactionRepository) MergeMetadata(ctx context.Context, id int64, patch models.Metadata) (err error) {
	ctx, done := instrument(ctx, transactionTracer, "MergeTransactionMetadata", attribute.Int64("transaction_id", id))
	defer func() { done(err) }()

	query := `UPDATE payment_transactions SET metadata = COALESCE(metadata, '{}'::jsonb) || $2::jsonb WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, patch)
	if err != nil {
		slog.Error("failed to merge metadata", "method", "MergeMetadata", "transaction_id", id, "error", err)
		return fmt.Errorf("failed to merge metadata: %w", err)
	}
	if err = expectOneRow(res, pkgerrors.ErrTransactionNotFound); err != nil {
		return err
	}
	slog.Info("transaction metadata updated", "method", "MergeMetadata", "transaction_id", id)
	return nil
}

func (r *PostgresTransactionRepository) TransitionStatus(ctx context.Context, id int64, from, to models.StatusType, providerStatus string, completedAt *time.Time, patch models.Metadata) (err error) {
	ctx, done := instrument(ctx, transactionTracer, "TransitionTransactionStatus",
		attribute.Int64("transaction_id", id),
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	)
	defer func() { done(err) }()

	if !to.Valid() || !from.Valid() {
		err = pkgerrors.ErrInvalidTransactionStatus
		return err
	}

	query := `UPDATE payment_transactions SET status = $3, provider_status = $4, completed_at = COALESCE($5, completed_at), metadata = COALESCE(metadata, '{}'::jsonb) || $6::jsonb WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, providerStatus, completedAt, patch)
	if err != nil {
		slog.Error("failed to update transaction status", "method", "TransitionStatus", "transaction_id", id, "error", err)
		return fmt.Errorf("failed to update transaction status: %w", err)
	}
	if err = expectOneRow(res, pkgerrors.ErrStatusConflict); err != nil {
		slog.Warn("transaction status precondition failed", "method", "TransitionStatus", "transaction_id", id, "expected", from, "target", to)
		return err
	}
	slog.Info("transaction status changed", "method", "TransitionStatus", "transaction_id", id, "from", from, "to", to)
	return nil
}

func (r *PostgresTransactionRepository) ResetToPending(ctx context.Context, id int64, from models.StatusType, patch models.Metadata) (err error) {
	ctx, done := instrument(ctx, transactionTracer, "ResetTransactionToPending",
		attribute.Int64("transaction_id", id),
		attribute.String("from", string(from)),
	)
	defer func() { done(err) }()

	query := `UPDATE payment_transactions SET status = 'pending', completed_at = NULL, metadata = COALESCE(metadata, '{}'::jsonb) || $3::jsonb WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, patch)
	if err != nil {
		slog.Error("failed to reset transaction", "method", "ResetToPending", "transaction_id", id, "error", err)
		return fmt.Errorf("failed to reset transaction: %w", err)
	}
	if err = expectOneRow(res, pkgerrors.ErrStatusConflict); err != nil {
		slog.Warn("transaction status precondition failed", "method", "ResetToPending", "transaction_id", id, "expected", from)
		return err
	}
	slog.Info("transaction reset to pending", "method", "ResetToPending", "transaction_id", id)
	return nil
}

func expectOneRow(res sql.Result, zeroErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return zeroErr
	}
	return nil
}
