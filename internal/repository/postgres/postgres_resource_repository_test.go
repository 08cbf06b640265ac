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

func TestPostgresResourceRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresResourceRepository(db)
	ctx := context.Background()
	query := regexp.QuoteMeta(`FROM payable_resources WHERE id = $1`)
	columns := []string{"id", "status", "payment_status", "transaction_id", "active_until", "updated_at"}

	t.Run("Success", func(t *testing.T) {
		activeUntil := time.Date(2026, 4, 13, 12, 0, 0, 0, time.UTC)
		mock.ExpectQuery(query).WithArgs("listing-9").
			WillReturnRows(sqlmock.NewRows(columns).AddRow("listing-9", "active", "completed", int64(7), activeUntil, time.Now()))

		res, err := repo.GetByID(ctx, "listing-9")
		assert.NoError(t, err)
		assert.Equal(t, models.ResourceActive, res.Status)
		if assert.NotNil(t, res.TransactionID) {
			assert.Equal(t, int64(7), *res.TransactionID)
		}
		if assert.NotNil(t, res.ActiveUntil) {
			assert.Equal(t, activeUntil, *res.ActiveUntil)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("PendingWithoutLink", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("listing-10").
			WillReturnRows(sqlmock.NewRows(columns).AddRow("listing-10", "pending_payment", "", nil, nil, time.Now()))

		res, err := repo.GetByID(ctx, "listing-10")
		assert.NoError(t, err)
		assert.Nil(t, res.TransactionID)
		assert.Nil(t, res.ActiveUntil)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("missing").WillReturnError(sql.ErrNoRows)

		res, err := repo.GetByID(ctx, "missing")
		assert.Nil(t, res)
		assert.ErrorIs(t, err, pkgerrors.ErrResourceNotFound)
	})
}

func TestPostgresResourceRepository_Updates(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresResourceRepository(db)
	ctx := context.Background()

	t.Run("Activate", func(t *testing.T) {
		txID := int64(7)
		until := time.Date(2026, 4, 13, 12, 0, 0, 0, time.UTC)
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE payable_resources SET status = $2, payment_status = $3, transaction_id = COALESCE($4, transaction_id)`)).
			WithArgs("listing-9", "active", "completed", txID, until).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Activate(ctx, "listing-9", &txID, until))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ActivateMissing", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE payable_resources`)).
			WithArgs("missing", "active", "completed", nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.Activate(ctx, "missing", nil, time.Now())
		assert.ErrorIs(t, err, pkgerrors.ErrResourceNotFound)
	})

	t.Run("MarkPaymentState", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`SET status = $2, payment_status = $3, updated_at = now() WHERE id = $1`)).
			WithArgs("listing-9", "payment_failed", "failed").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.MarkPaymentState(ctx, "listing-9", models.ResourcePaymentFailed, "failed"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("MarkPaymentStateError", func(t *testing.T) {
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE payable_resources`)).WillReturnError(fmt.Errorf("database error"))

		err := repo.MarkPaymentState(ctx, "listing-9", models.ResourcePaymentExpired, "expired")
		assert.Contains(t, err.Error(), "failed to update resource")
	})
}

func TestPostgresProviderConfigRepository_GetActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()
	repo := postgres.NewPostgresProviderConfigRepository(db)
	ctx := context.Background()
	query := regexp.QuoteMeta(`FROM payment_provider_configs WHERE is_active = true`)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows(
			[]string{"id", "provider", "base_url", "api_key", "webhook_url", "return_url", "cancel_url", "environment", "is_active"}).
			AddRow(int64(1), "cinetpay", "https://checkout.example.com/pay", "sk_live_123", "", "https://shop.example.com/return", "https://shop.example.com/cancel", "production", true))

		cfg, err := repo.GetActive(ctx)
		assert.NoError(t, err)
		assert.Equal(t, "cinetpay", cfg.Provider)
		assert.True(t, cfg.IsActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("NoActiveConfig", func(t *testing.T) {
		mock.ExpectQuery(query).WillReturnError(sql.ErrNoRows)

		cfg, err := repo.GetActive(ctx)
		assert.Nil(t, cfg)
		assert.ErrorIs(t, err, pkgerrors.ErrProviderConfigNotFound)
	})
}
