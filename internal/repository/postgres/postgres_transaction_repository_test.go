package postgres_test

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/honeynil/payment-orchestrator/internal/models"
	"github.com/honeynil/payment-orchestrator/internal/repository/postgres"
	pkgerrors "github.com/honeynil/payment-orchestrator/pkg/errors"
	"github.com/stretchr/testify/assert"
)

var transactionRowColumns = []string{
	"id", "user_id", "amount", "currency", "status", "provider", "provider_payment_id",
	"provider_status", "external_reference", "created_at", "expires_at", "completed_at", "metadata",
}

func newPendingTransaction() *models.Transaction {
	return &models.Transaction{
		UserID:            1,
		Amount:            50000,
		Currency:          "XAF",
		Status:            models.StatusPending,
		Provider:          "cinetpay",
		ProviderPaymentID: "PAY-1-ABC",
		ProviderStatus:    "created",
		ExternalReference: "listing-9",
		ExpiresAt:         time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
		Metadata:          models.Metadata{"payment_url": "https://checkout.example.com/pay?payment_id=PAY-1-ABC"},
	}
}

func TestPostgresTransactionRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresTransactionRepository(db)
	ctx := context.Background()
	insert := regexp.QuoteMeta(`INSERT INTO payment_transactions`)

	t.Run("NilTransaction", func(t *testing.T) {
		id, err := repo.Create(ctx, nil)
		assert.Equal(t, int64(0), id)
		assert.ErrorIs(t, err, pkgerrors.ErrNilTransaction)
	})

	t.Run("InvalidStatus", func(t *testing.T) {
		tx := newPendingTransaction()
		tx.Status = "invalid"
		id, err := repo.Create(ctx, tx)
		assert.Equal(t, int64(0), id)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransactionStatus)
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		tx := newPendingTransaction()
		tx.Amount = 0
		id, err := repo.Create(ctx, tx)
		assert.Equal(t, int64(0), id)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidAmount)
	})

	t.Run("Success", func(t *testing.T) {
		tx := newPendingTransaction()
		createdAt := time.Now().UTC()
		mock.ExpectBegin()
		mock.ExpectQuery(insert).
			WithArgs(tx.UserID, tx.Amount, tx.Currency, tx.Status, tx.Provider, tx.ProviderPaymentID,
				tx.ProviderStatus, tx.ExternalReference, tx.ExpiresAt,
				`{"payment_url":"https://checkout.example.com/pay?payment_id=PAY-1-ABC"}`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), createdAt))
		mock.ExpectCommit()

		id, err := repo.Create(ctx, tx)
		assert.NoError(t, err)
		assert.Equal(t, int64(7), id)
		assert.Equal(t, int64(7), tx.ID)
		assert.WithinDuration(t, createdAt, tx.CreatedAt, time.Second)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseError", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(insert).WillReturnError(fmt.Errorf("duplicate key value violates unique constraint"))
		mock.ExpectRollback()

		id, err := repo.Create(ctx, newPendingTransaction())
		assert.Equal(t, int64(0), id)
		assert.Contains(t, err.Error(), "failed to create transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackError", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(insert).WillReturnError(fmt.Errorf("database error"))
		mock.ExpectRollback().WillReturnError(fmt.Errorf("rollback error"))

		_, err := repo.Create(ctx, newPendingTransaction())
		assert.Contains(t, err.Error(), "rollback failed")
		assert.Contains(t, err.Error(), "database error")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("CommitError", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(insert).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(8), time.Now()))
		mock.ExpectCommit().WillReturnError(fmt.Errorf("commit error"))

		id, err := repo.Create(ctx, newPendingTransaction())
		assert.Equal(t, int64(0), id)
		assert.Contains(t, err.Error(), "failed to commit transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTransactionRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresTransactionRepository(db)
	ctx := context.Background()
	query := regexp.QuoteMeta(`FROM payment_transactions WHERE id = $1`)

	t.Run("Success", func(t *testing.T) {
		createdAt := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
		completedAt := createdAt.Add(5 * time.Minute)
		mock.ExpectQuery(query).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(transactionRowColumns).AddRow(
				int64(7), int64(1), int64(50000), "XAF", "completed", "cinetpay", "PAY-1-ABC",
				"paid", "listing-9", createdAt, createdAt.Add(24*time.Hour), completedAt,
				[]byte(`{"payment_url":"https://checkout.example.com/pay","customer":{"name":"Awa"}}`),
			))

		tx, err := repo.GetByID(ctx, 7)
		assert.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, tx.Status)
		assert.Equal(t, "paid", tx.ProviderStatus)
		assert.Equal(t, "https://checkout.example.com/pay", tx.PaymentURL())
		assert.Equal(t, map[string]any{"name": "Awa"}, tx.Metadata["customer"])
		if assert.NotNil(t, tx.CompletedAt) {
			assert.Equal(t, completedAt, *tx.CompletedAt)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NullMetadataAndCompletion", func(t *testing.T) {
		now := time.Now().UTC()
		mock.ExpectQuery(query).
			WithArgs(int64(8)).
			WillReturnRows(sqlmock.NewRows(transactionRowColumns).AddRow(
				int64(8), int64(1), int64(100), "EUR", "pending", "unconfigured", "PAY-2",
				"", "", now, now, nil, nil,
			))

		tx, err := repo.GetByID(ctx, 8)
		assert.NoError(t, err)
		assert.Nil(t, tx.CompletedAt)
		assert.NotNil(t, tx.Metadata)
		assert.Empty(t, tx.PaymentURL())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("TransactionNotFound", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(int64(9)).WillReturnError(sql.ErrNoRows)

		tx, err := repo.GetByID(ctx, 9)
		assert.Nil(t, tx)
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DatabaseError", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(int64(10)).WillReturnError(fmt.Errorf("database error"))

		tx, err := repo.GetByID(ctx, 10)
		assert.Nil(t, tx)
		assert.Contains(t, err.Error(), "failed to get transaction by id")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTransactionRepository_Lookups(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresTransactionRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	row := func(id int64) *sqlmock.Rows {
		return sqlmock.NewRows(transactionRowColumns).AddRow(
			id, int64(1), int64(100), "EUR", "pending", "cinetpay", "PAY-1-ABC", "created", "listing-9", now, now, nil, []byte(`{}`))
	}

	t.Run("ByProviderPaymentID", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE provider_payment_id = $1`)).WithArgs("PAY-1-ABC").WillReturnRows(row(3))

		tx, err := repo.GetByProviderPaymentID(ctx, "PAY-1-ABC")
		assert.NoError(t, err)
		assert.Equal(t, int64(3), tx.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ByProviderPaymentIDNotFound", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE provider_payment_id = $1`)).WithArgs("PAY-none").WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByProviderPaymentID(ctx, "PAY-none")
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
	})

	t.Run("LatestByExternalReference", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE external_reference = $1 ORDER BY created_at DESC LIMIT 1`)).
			WithArgs("listing-9").WillReturnRows(row(4))

		tx, err := repo.GetLatestByExternalReference(ctx, "listing-9")
		assert.NoError(t, err)
		assert.Equal(t, "listing-9", tx.ExternalReference)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ListByUserSince", func(t *testing.T) {
		since := now.Add(-time.Hour)
		rows := sqlmock.NewRows(transactionRowColumns).
			AddRow(int64(5), int64(1), int64(100), "EUR", "pending", "cinetpay", "PAY-5", "", "", now, now, nil, []byte(`{}`)).
			AddRow(int64(6), int64(1), int64(200), "EUR", "failed", "cinetpay", "PAY-6", "", "", now, now, nil, []byte(`{}`))
		mock.ExpectQuery(regexp.QuoteMeta(`WHERE user_id = $1 AND created_at >= $2`)).WithArgs(int64(1), since).WillReturnRows(rows)

		txs, err := repo.ListByUserSince(ctx, 1, since)
		assert.NoError(t, err)
		assert.Len(t, txs, 2)
		assert.Equal(t, int64(200), txs[1].Amount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTransactionRepository_TransitionStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresTransactionRepository(db)
	ctx := context.Background()
	update := regexp.QuoteMeta(`UPDATE payment_transactions SET status = $3`)
	completedAt := time.Date(2026, 3, 14, 12, 5, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(update).
			WithArgs(int64(7), "pending", "completed", "paid", completedAt, `{"verification":{"source":"transaction_store"}}`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.TransitionStatus(ctx, 7, models.StatusPending, models.StatusCompleted, "paid", &completedAt,
			models.Metadata{"verification": map[string]any{"source": "transaction_store"}})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("StatusConflict", func(t *testing.T) {
		mock.ExpectExec(update).
			WithArgs(int64(7), "pending", "failed", "cancelled", nil, "{}").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.TransitionStatus(ctx, 7, models.StatusPending, models.StatusFailed, "cancelled", nil, nil)
		assert.ErrorIs(t, err, pkgerrors.ErrStatusConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InvalidTarget", func(t *testing.T) {
		err := repo.TransitionStatus(ctx, 7, models.StatusPending, "refunded", "", nil, nil)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidTransactionStatus)
	})
}

func TestPostgresTransactionRepository_MetadataAndReset(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresTransactionRepository(db)
	ctx := context.Background()

	t.Run("MergeMetadata", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`SET metadata = COALESCE(metadata, '{}'::jsonb) || $2::jsonb WHERE id = $1`)).
			WithArgs(int64(7), `{"payment_url":"https://x.test/p"}`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.MergeMetadata(ctx, 7, models.Metadata{"payment_url": "https://x.test/p"}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MergeMetadataMissingRow", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE payment_transactions SET metadata`)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.MergeMetadata(ctx, 99, models.Metadata{"a": 1})
		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
	})

	t.Run("ResetToPending", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`SET status = 'pending', completed_at = NULL`)).
			WithArgs(int64(7), "failed", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.ResetToPending(ctx, 7, models.StatusFailed, models.Metadata{"recovery_info": map[string]any{"recovered": true}})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ResetToPendingConflict", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`WHERE id = $1 AND status = $2`)).
			WithArgs(int64(7), "expired", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.ResetToPending(ctx, 7, models.StatusExpired, nil)
		assert.ErrorIs(t, err, pkgerrors.ErrStatusConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
