package repository

import (
	"context"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/models"
)

type TransactionRepository interface {
	Create(ctx context.Context, tx *models.Transaction) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Transaction, error)
	GetByProviderPaymentID(ctx context.Context, providerPaymentID string) (*models.Transaction, error)
	GetLatestByExternalReference(ctx context.Context, reference string) (*models.Transaction, error)
	ListByUserSince(ctx context.Context, userID int64, since time.Time) ([]models.Transaction, error)
	MergeMetadata(ctx context.Context, id int64, patch models.Metadata) error
	// TransitionStatus moves a transaction from the expected status to a new one.
	// It returns ErrStatusConflict when the stored status no longer matches from.
	TransitionStatus(ctx context.Context, id int64, from, to models.StatusType, providerStatus string, completedAt *time.Time, patch models.Metadata) error
	// ResetToPending moves a terminal transaction back to pending under the same precondition.
	ResetToPending(ctx context.Context, id int64, from models.StatusType, patch models.Metadata) error
}
