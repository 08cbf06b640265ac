package repository

import (
	"context"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/models"
)

type ResourceRepository interface {
	GetByID(ctx context.Context, id string) (*models.Resource, error)
	Activate(ctx context.Context, id string, transactionID *int64, activeUntil time.Time) error
	MarkPaymentState(ctx context.Context, id string, status models.ResourceStatus, paymentStatus string) error
}
