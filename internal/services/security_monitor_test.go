package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/config"
	"github.com/honeynil/payment-orchestrator/internal/infrastructure/redis"
	redismocks "github.com/honeynil/payment-orchestrator/internal/infrastructure/redis/mocks"
	"github.com/honeynil/payment-orchestrator/internal/models"
	"github.com/honeynil/payment-orchestrator/internal/repository/mocks"
	pkgerrors "github.com/honeynil/payment-orchestrator/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(txRepo *mocks.TransactionRepository, auditRepo *mocks.AuditRepository, limiter redis.RedisClient) *SecurityMonitor {
	m := NewSecurityMonitor(txRepo, NewAuditLogger(auditRepo), limiter, config.Default().Security)
	m.now = func() time.Time { return fixedNow }
	return m
}

func history(n int, amount int64) []models.Transaction {
	out := make([]models.Transaction, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Transaction{ID: int64(100 + i), UserID: 5, Amount: amount})
	}
	return out
}

func TestSecurityMonitor_AnalyzeTransaction(t *testing.T) {
	since := fixedNow.Add(-time.Hour)

	t.Run("LargeAmountOnly", func(t *testing.T) {
		tx := &models.Transaction{ID: 1, UserID: 5, Amount: 2000000, Metadata: models.Metadata{
			models.MetadataPaymentURL: "https://checkout.example.com/pay?payment_id=PAY-test",
			models.MetadataCustomer:   map[string]any{"name": "Awa Ndiaye", "email": "awa@example.org"},
		}}
		txRepo := &mocks.TransactionRepository{}
		txRepo.On("GetByID", mock.Anything, int64(1)).Return(tx, nil)
		txRepo.On("ListByUserSince", mock.Anything, int64(5), since).Return([]models.Transaction{*tx}, nil)
		auditRepo := &mocks.AuditRepository{}
		auditRepo.On("CreateBatch", mock.Anything, mock.MatchedBy(func(entries []models.AuditLogEntry) bool {
			return len(entries) == 1 && entries[0].EventType == models.EventSecurityEvent && entries[0].TransactionID == "1"
		})).Return(nil).Once()

		analysis, err := newTestMonitor(txRepo, auditRepo, nil).AnalyzeTransaction(context.Background(), 1)

		require.NoError(t, err)
		assert.Equal(t, 25, analysis.RiskScore)
		assert.False(t, analysis.ShouldBlock)
		require.Len(t, analysis.Events, 1)
		assert.Equal(t, models.SecurityUnusualPattern, analysis.Events[0].Type)
		assert.Equal(t, models.SeverityMedium, analysis.Events[0].Severity)
		auditRepo.AssertExpectations(t)
	})

	t.Run("NoSignals", func(t *testing.T) {
		tx := &models.Transaction{ID: 2, UserID: 5, Amount: 1000}
		txRepo := &mocks.TransactionRepository{}
		txRepo.On("GetByID", mock.Anything, int64(2)).Return(tx, nil)
		txRepo.On("ListByUserSince", mock.Anything, int64(5), since).Return(history(3, 1000), nil)
		auditRepo := &mocks.AuditRepository{}

		analysis, err := newTestMonitor(txRepo, auditRepo, nil).AnalyzeTransaction(context.Background(), 2)

		require.NoError(t, err)
		assert.Zero(t, analysis.RiskScore)
		assert.Empty(t, analysis.Events)
		auditRepo.AssertNotCalled(t, "CreateBatch", mock.Anything, mock.Anything)
	})

	t.Run("Frequency", func(t *testing.T) {
		cases := []struct {
			name  string
			count int
			want  int
		}{
			{"FourOthers", 4, 15},
			{"SixOthers", 6, 35},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				tx := &models.Transaction{ID: 3, UserID: 5, Amount: 1000}
				txRepo := &mocks.TransactionRepository{}
				txRepo.On("GetByID", mock.Anything, int64(3)).Return(tx, nil)
				txRepo.On("ListByUserSince", mock.Anything, int64(5), since).Return(append(history(tc.count, 1000), *tx), nil)

				analysis, err := newTestMonitor(txRepo, permissiveAudit(), nil).AnalyzeTransaction(context.Background(), 3)

				require.NoError(t, err)
				assert.Equal(t, tc.want, analysis.RiskScore)
				require.Len(t, analysis.Events, 1)
				assert.Equal(t, models.SecuritySuspiciousActivity, analysis.Events[0].Type)
				assert.Equal(t, models.SeverityHigh, analysis.Events[0].Severity)
			})
		}
	})

	t.Run("HighAverage", func(t *testing.T) {
		tx := &models.Transaction{ID: 4, UserID: 5, Amount: 1000}
		txRepo := &mocks.TransactionRepository{}
		txRepo.On("GetByID", mock.Anything, int64(4)).Return(tx, nil)
		txRepo.On("ListByUserSince", mock.Anything, int64(5), since).Return(history(2, 600000), nil)

		analysis, err := newTestMonitor(txRepo, permissiveAudit(), nil).AnalyzeTransaction(context.Background(), 4)

		require.NoError(t, err)
		assert.Equal(t, 10, analysis.RiskScore)
	})

	t.Run("SuspiciousPayload", func(t *testing.T) {
		tx := &models.Transaction{ID: 5, UserID: 5, Amount: 1000, Metadata: models.Metadata{
			models.MetadataCustomer:    map[string]any{"name": "test", "email": "not-an-email", "phone": ""},
			models.MetadataDescription: "<script>alert(1)</script>",
		}}
		txRepo := &mocks.TransactionRepository{}
		txRepo.On("GetByID", mock.Anything, int64(5)).Return(tx, nil)
		txRepo.On("ListByUserSince", mock.Anything, int64(5), since).Return(nil, nil)

		analysis, err := newTestMonitor(txRepo, permissiveAudit(), nil).AnalyzeTransaction(context.Background(), 5)

		require.NoError(t, err)
		assert.Equal(t, 40, analysis.RiskScore)
		require.Len(t, analysis.Events, 1)
		ev := analysis.Events[0]
		assert.Equal(t, models.SecurityFraudDetection, ev.Type)
		assert.Equal(t, models.SeverityHigh, ev.Severity)
		assert.ElementsMatch(t, []string{"customer.email", "customer.name"}, ev.Metadata["offending_fields"])
		assert.Contains(t, ev.Metadata["markers"], "description")
	})

	t.Run("CombinedSignalsBlock", func(t *testing.T) {
		tx := &models.Transaction{ID: 6, UserID: 5, Amount: 2000000, Metadata: models.Metadata{
			models.MetadataDescription: "admin",
		}}
		txRepo := &mocks.TransactionRepository{}
		txRepo.On("GetByID", mock.Anything, int64(6)).Return(tx, nil)
		txRepo.On("ListByUserSince", mock.Anything, int64(5), since).Return(history(7, 600000), nil)

		analysis, err := newTestMonitor(txRepo, permissiveAudit(), nil).AnalyzeTransaction(context.Background(), 6)

		require.NoError(t, err)
		assert.Equal(t, 110, analysis.RiskScore)
		assert.True(t, analysis.ShouldBlock)
		assert.Len(t, analysis.Events, 4)
	})

	t.Run("TransactionNotFound", func(t *testing.T) {
		txRepo := &mocks.TransactionRepository{}
		txRepo.On("GetByID", mock.Anything, int64(404)).Return(nil, pkgerrors.ErrTransactionNotFound)

		_, err := newTestMonitor(txRepo, permissiveAudit(), nil).AnalyzeTransaction(context.Background(), 404)

		assert.ErrorIs(t, err, pkgerrors.ErrTransactionNotFound)
	})
}

func TestSecurityMonitor_CheckRateLimit(t *testing.T) {
	window := 60 * time.Minute

	t.Run("Allowed", func(t *testing.T) {
		limiter := &redismocks.RedisClient{}
		limiter.On("SlidingWindowHit", mock.Anything, "ratelimit:payment_creation:42", 10, window, fixedNow).
			Return(redis.WindowState{Allowed: true, Count: 3, Oldest: fixedNow.Add(-5 * time.Minute)}, nil)

		res := newTestMonitor(&mocks.TransactionRepository{}, &mocks.AuditRepository{}, limiter).CheckRateLimit(context.Background(), 42, "")

		assert.True(t, res.Allowed)
		assert.Equal(t, 7, res.Remaining)
		assert.Equal(t, fixedNow.Add(55*time.Minute), res.ResetTime)
		limiter.AssertExpectations(t)
	})

	t.Run("Exceeded", func(t *testing.T) {
		limiter := &redismocks.RedisClient{}
		limiter.On("SlidingWindowHit", mock.Anything, "ratelimit:payment_creation:42", 10, window, fixedNow).
			Return(redis.WindowState{Allowed: false, Count: 10, Oldest: fixedNow.Add(-10 * time.Minute)}, nil)
		auditRepo := &mocks.AuditRepository{}
		auditRepo.On("Create", mock.Anything, auditEntry(models.EventRateLimitExceeded)).Return(int64(1), nil).Once()

		res := newTestMonitor(&mocks.TransactionRepository{}, auditRepo, limiter).CheckRateLimit(context.Background(), 42, "payment_creation")

		assert.False(t, res.Allowed)
		assert.Zero(t, res.Remaining)
		assert.Equal(t, fixedNow.Add(50*time.Minute), res.ResetTime)
		auditRepo.AssertExpectations(t)
	})

	t.Run("FailsOpenOnError", func(t *testing.T) {
		limiter := &redismocks.RedisClient{}
		limiter.On("SlidingWindowHit", mock.Anything, "ratelimit:refund:42", 10, window, fixedNow).
			Return(redis.WindowState{}, errors.New("NOSCRIPT"))
		auditRepo := &mocks.AuditRepository{}

		res := newTestMonitor(&mocks.TransactionRepository{}, auditRepo, limiter).CheckRateLimit(context.Background(), 42, "refund")

		assert.True(t, res.Allowed)
		assert.Equal(t, 10, res.Remaining)
		auditRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("FailsOpenWithoutLimiter", func(t *testing.T) {
		res := newTestMonitor(&mocks.TransactionRepository{}, &mocks.AuditRepository{}, nil).CheckRateLimit(context.Background(), 42, "")
		assert.True(t, res.Allowed)
	})
}
