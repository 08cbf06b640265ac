package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/infrastructure/redis"
	"github.com/honeynil/payment-orchestrator/internal/models"
	"github.com/honeynil/payment-orchestrator/internal/repository"
	pkgerrors "github.com/honeynil/payment-orchestrator/pkg/errors"
)

const providerConfigCacheKey = "payment:provider_config:active"

// ConfigSource supplies the active provider configuration, read-only.
type ConfigSource interface {
	ActiveProviderConfig(ctx context.Context) (*models.ProviderConfig, error)
}

// ProviderConfigService reads the active provider config through a Redis cache.
type ProviderConfigService struct {
	repo  repository.ProviderConfigRepository
	cache redis.RedisClient
	ttl   time.Duration
}

func NewProviderConfigService(repo repository.ProviderConfigRepository, cache redis.RedisClient, ttl time.Duration) *ProviderConfigService {
	return &ProviderConfigService{repo: repo, cache: cache, ttl: ttl}
}

func (s *ProviderConfigService) ActiveProviderConfig(ctx context.Context) (*models.ProviderConfig, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, providerConfigCacheKey)
		switch {
		case err == nil:
			var cfg models.ProviderConfig
			if err := json.Unmarshal([]byte(cached), &cfg); err == nil {
				return &cfg, nil
			}
			slog.Warn("discarding malformed cached provider config", "method", "ActiveProviderConfig")
		case !stderrors.Is(err, redis.ErrKeyNotFound):
			slog.Warn("provider config cache unavailable", "method", "ActiveProviderConfig", "error", err)
		}
	}

	cfg, err := s.repo.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.ttl > 0 {
		if raw, err := json.Marshal(cfg); err == nil {
			if err := s.cache.Set(ctx, providerConfigCacheKey, string(raw), s.ttl); err != nil {
				slog.Warn("failed to cache provider config", "method", "ActiveProviderConfig", "error", err)
			}
		}
	}
	return cfg, nil
}

// validateProviderConfig rejects configs that cannot produce a navigable URL.
func validateProviderConfig(cfg *models.ProviderConfig) (*url.URL, error) {
	if cfg == nil {
		return nil, pkgerrors.ErrProviderConfigNotFound
	}
	if !cfg.IsActive {
		return nil, fmt.Errorf("%w: provider %q is not active", pkgerrors.ErrInvalidProviderConfig, cfg.Provider)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: missing api key", pkgerrors.ErrInvalidProviderConfig)
	}
	u, err := parseAbsoluteURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidProviderConfig, err)
	}
	return u, nil
}

func parseAbsoluteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("base url %q is not an absolute http(s) url", raw)
	}
	return u, nil
}
