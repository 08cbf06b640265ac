package mocks

import (
	"context"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/models"
	"github.com/stretchr/testify/mock"
)

type ResourceRepository struct {
	mock.Mock
}

func (m *ResourceRepository) GetByID(ctx context.Context, id string) (*models.Resource, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*models.Resource)
	return r, args.Error(1)
}

func (m *ResourceRepository) Activate(ctx context.Context, id string, transactionID *int64, activeUntil time.Time) error {
	return m.Called(ctx, id, transactionID, activeUntil).Error(0)
}

func (m *ResourceRepository) MarkPaymentState(ctx context.Context, id string, status models.ResourceStatus, paymentStatus string) error {
	return m.Called(ctx, id, status, paymentStatus).Error(0)
}
