package mocks

import (
	"context"

	"github.com/honeynil/payment-orchestrator/internal/models"
	"github.com/stretchr/testify/mock"
)

type ProviderConfigRepository struct {
	mock.Mock
}

func (m *ProviderConfigRepository) GetActive(ctx context.Context) (*models.ProviderConfig, error) {
	args := m.Called(ctx)
	cfg, _ := args.Get(0).(*models.ProviderConfig)
	return cfg, args.Error(1)
}
