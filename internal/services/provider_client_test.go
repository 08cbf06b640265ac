package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/infrastructure/redis"
	redismocks "github.com/honeynil/payment-orchestrator/internal/infrastructure/redis/mocks"
	"github.com/honeynil/payment-orchestrator/internal/models"
	"github.com/honeynil/payment-orchestrator/internal/repository/mocks"
	pkgerrors "github.com/honeynil/payment-orchestrator/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func providerConfigFor(baseURL string) staticConfigs {
	cfg := activeProviderConfig()
	cfg.BaseURL = baseURL
	return staticConfigs{cfg: cfg}
}

func TestHTTPProviderClient(t *testing.T) {
	tx := &models.Transaction{ID: 37, Amount: 1000, Currency: "EUR", ProviderPaymentID: "PAY-9", ExternalReference: "listing-7"}

	t.Run("RetryPayment", func(t *testing.T) {
		var got providerRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1/payments/PAY-9/retry", r.URL.Path)
			assert.Equal(t, "Bearer sk_live_123", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		client := NewHTTPProviderClient(providerConfigFor(srv.URL), srv.Client(), time.Second)
		require.NoError(t, client.RetryPayment(context.Background(), tx))
		assert.Equal(t, providerRequest{PaymentID: "PAY-9", TransactionID: 37, Amount: 1000, Currency: "EUR", ExternalReference: "listing-7"}, got)
	})

	t.Run("RefreshSession", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/sessions/refresh", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		client := NewHTTPProviderClient(providerConfigFor(srv.URL), srv.Client(), time.Second)
		assert.NoError(t, client.RefreshSession(context.Background(), tx))
	})

	t.Run("RejectedStatusIsClassified", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		client := NewHTTPProviderClient(providerConfigFor(srv.URL), srv.Client(), time.Second)
		err := client.RetryPayment(context.Background(), tx)

		var provErr *ProviderError
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "retry", provErr.Op)
		reason, ok := ClassifyFailure(err)
		assert.True(t, ok)
		assert.Equal(t, models.ReasonTemporaryAPIError, reason)
	})

	t.Run("TimeoutIsClassified", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		client := NewHTTPProviderClient(providerConfigFor(srv.URL), srv.Client(), 20*time.Millisecond)
		err := client.RetryPayment(context.Background(), tx)

		reason, ok := ClassifyFailure(err)
		assert.True(t, ok)
		assert.Equal(t, models.ReasonTimeout, reason)
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		client := NewHTTPProviderClient(providerConfigFor("not a url"), nil, time.Second)
		err := client.RetryPayment(context.Background(), tx)
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidProviderConfig)
	})

	t.Run("ConfigUnavailable", func(t *testing.T) {
		client := NewHTTPProviderClient(staticConfigs{err: pkgerrors.ErrProviderConfigNotFound}, nil, time.Second)
		err := client.RefreshSession(context.Background(), tx)
		assert.ErrorIs(t, err, pkgerrors.ErrProviderConfigNotFound)
	})
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }

func (timeoutErr) Timeout() bool { return true }

func (timeoutErr) Temporary() bool { return true }

func TestClassifyFailure(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		reason models.RecoveryReason
		ok     bool
	}{
		{"Nil", nil, "", false},
		{"Deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), models.ReasonTimeout, true},
		{"NetTimeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, models.ReasonTimeout, true},
		{"ConnectionRefused", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, models.ReasonNetworkError, true},
		{"Unauthorized", &ProviderError{Op: "retry", StatusCode: http.StatusUnauthorized}, models.ReasonExpiredSession, true},
		{"SessionExpired419", &ProviderError{Op: "retry", StatusCode: 419}, models.ReasonExpiredSession, true},
		{"TooManyRequests", &ProviderError{Op: "retry", StatusCode: http.StatusTooManyRequests}, models.ReasonTemporaryAPIError, true},
		{"BadGateway", &ProviderError{Op: "retry", StatusCode: http.StatusBadGateway}, models.ReasonTemporaryAPIError, true},
		{"BadRequest", &ProviderError{Op: "retry", StatusCode: http.StatusBadRequest}, "", false},
		{"Other", errors.New("boom"), "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reason, ok := ClassifyFailure(tc.err)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestProviderConfigService(t *testing.T) {
	ctx := context.Background()

	t.Run("CacheHit", func(t *testing.T) {
		repo := &mocks.ProviderConfigRepository{}
		cache := &redismocks.RedisClient{}
		raw, _ := json.Marshal(activeProviderConfig())
		cache.On("Get", mock.Anything, providerConfigCacheKey).Return(string(raw), nil)

		cfg, err := NewProviderConfigService(repo, cache, time.Minute).ActiveProviderConfig(ctx)

		require.NoError(t, err)
		assert.Equal(t, "cinetpay", cfg.Provider)
		repo.AssertNotCalled(t, "GetActive", mock.Anything)
	})

	t.Run("CacheMissLoadsAndStores", func(t *testing.T) {
		repo := &mocks.ProviderConfigRepository{}
		cache := &redismocks.RedisClient{}
		cache.On("Get", mock.Anything, providerConfigCacheKey).Return("", redis.ErrKeyNotFound)
		repo.On("GetActive", mock.Anything).Return(activeProviderConfig(), nil)
		cache.On("Set", mock.Anything, providerConfigCacheKey, mock.AnythingOfType("string"), time.Minute).Return(nil)

		cfg, err := NewProviderConfigService(repo, cache, time.Minute).ActiveProviderConfig(ctx)

		require.NoError(t, err)
		assert.Equal(t, "sk_live_123", cfg.APIKey)
		cache.AssertExpectations(t)
	})

	t.Run("CacheErrorFallsThrough", func(t *testing.T) {
		repo := &mocks.ProviderConfigRepository{}
		cache := &redismocks.RedisClient{}
		cache.On("Get", mock.Anything, providerConfigCacheKey).Return("", errors.New("redis down"))
		repo.On("GetActive", mock.Anything).Return(activeProviderConfig(), nil)
		cache.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))

		cfg, err := NewProviderConfigService(repo, cache, time.Minute).ActiveProviderConfig(ctx)

		require.NoError(t, err)
		assert.True(t, cfg.IsActive)
	})

	t.Run("NoActiveConfig", func(t *testing.T) {
		repo := &mocks.ProviderConfigRepository{}
		repo.On("GetActive", mock.Anything).Return(nil, pkgerrors.ErrProviderConfigNotFound)

		_, err := NewProviderConfigService(repo, nil, time.Minute).ActiveProviderConfig(ctx)

		assert.ErrorIs(t, err, pkgerrors.ErrProviderConfigNotFound)
	})
}
