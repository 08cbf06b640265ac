package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/honeynil/payment-orchestrator/internal/models"
	pkgerrors "github.com/honeynil/payment-orchestrator/pkg/errors"
)

type PostgresProviderConfigRepository struct {
	db *sql.DB
}

func NewPostgresProviderConfigRepository(db *sql.DB) *PostgresProviderConfigRepository {
	return &PostgresProviderConfigRepository{db: db}
}

func (r *PostgresProviderConfigRepository) GetActive(ctx context.Context) (cfg *models.ProviderConfig, err error) {
	ctx, done := instrument(ctx, "provider-config-repository", "GetActiveProviderConfig")
	defer func() { done(err) }()

	query := `SELECT id, provider, base_url, api_key, COALESCE(webhook_url, ''), COALESCE(return_url, ''), COALESCE(cancel_url, ''), environment, is_active
		FROM payment_provider_configs WHERE is_active = true ORDER BY id DESC LIMIT 1`
	var c models.ProviderConfig
	err = r.db.QueryRowContext(ctx, query).Scan(
		&c.ID,
		&c.Provider,
		&c.BaseURL,
		&c.APIKey,
		&c.WebhookURL,
		&c.ReturnURL,
		&c.CancelURL,
		&c.Environment,
		&c.IsActive,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrProviderConfigNotFound
		slog.Warn("no active provider config", "method", "GetActive")
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get provider config", "method", "GetActive", "error", err)
		return nil, fmt.Errorf("failed to get provider config: %w", err)
	}
	return &c, nil
}
