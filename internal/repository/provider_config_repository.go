package repository

import (
	"context"

	"github.com/honeynil/payment-orchestrator/internal/models"
)

type ProviderConfigRepository interface {
	GetActive(ctx context.Context) (*models.ProviderConfig, error)
}
