package mocks

import (
	"context"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/models"
	"github.com/stretchr/testify/mock"
)

type TransactionRepository struct {
	mock.Mock
}

func (m *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) (int64, error) {
	args := m.Called(ctx, tx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *TransactionRepository) GetByID(ctx context.Context, id int64) (*models.Transaction, error) {
	args := m.Called(ctx, id)
	if fn, ok := args.Get(0).(func(context.Context, int64) *models.Transaction); ok {
		return fn(ctx, id), args.Error(1)
	}
	tx, _ := args.Get(0).(*models.Transaction)
	return tx, args.Error(1)
}

func (m *TransactionRepository) GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.Transaction, error) {
	args := m.Called(ctx, providerPaymentID)
	tx, _ := args.Get(0).(*models.Transaction)
	return tx, args.Error(1)
}

func (m *TransactionRepository) GetLatestByExternalReference(ctx context.Context, reference string) (*models.Transaction, error) {
	args := m.Called(ctx, reference)
	tx, _ := args.Get(0).(*models.Transaction)
	return tx, args.Error(1)
}

func (m *TransactionRepository) ListByUserSince(ctx context.Context, userID int64, since time.Time) ([]models.Transaction, error) {
	args := m.Called(ctx, userID, since)
	txs, _ := args.Get(0).([]models.Transaction)
	return txs, args.Error(1)
}

func (m *TransactionRepository) MergeMetadata(ctx context.Context, id int64, patch models.Metadata) error {
	return m.Called(ctx, id, patch).Error(0)
}

func (m *TransactionRepository) TransitionStatus(ctx context.Context, id int64, from, to models.StatusType, providerStatus string, completedAt *time.Time, patch models.Metadata) error {
	return m.Called(ctx, id, from, to, providerStatus, completedAt, patch).Error(0)
}

func (m *TransactionRepository) ResetToPending(ctx context.Context, id int64, from models.StatusType, patch models.Metadata) error {
	return m.Called(ctx, id, from, patch).Error(0)
}
