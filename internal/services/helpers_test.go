package service

import (
	"context"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/infrastructure/auth"
	"github.com/honeynil/payment-orchestrator/internal/models"
	"github.com/honeynil/payment-orchestrator/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type staticConfigs struct {
	cfg *models.ProviderConfig
	err error
}

func (s staticConfigs) ActiveProviderConfig(ctx context.Context) (*models.ProviderConfig, error) {
	return s.cfg, s.err
}

func activeProviderConfig() *models.ProviderConfig {
	return &models.ProviderConfig{
		ID:          1,
		Provider:    "cinetpay",
		BaseURL:     "https://checkout.example.com/pay",
		APIKey:      "sk_live_123",
		ReturnURL:   "https://shop.example.com/return",
		CancelURL:   "https://shop.example.com/cancel",
		Environment: "production",
		IsActive:    true,
	}
}

func authedContext(userID int64) context.Context {
	return auth.WithUserID(context.Background(), userID)
}

// permissiveAudit accepts any audit write.
func permissiveAudit() *mocks.AuditRepository {
	repo := &mocks.AuditRepository{}
	repo.On("Create", mock.Anything, mock.Anything).Return(int64(1), nil).Maybe()
	repo.On("CreateBatch", mock.Anything, mock.Anything).Return(nil).Maybe()
	repo.On("UpdateEventData", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	return repo
}

func auditEntry(eventType models.AuditEventType) interface{} {
	return mock.MatchedBy(func(e *models.AuditLogEntry) bool { return e.EventType == eventType })
}

type stubVerifier struct {
	result *VerificationResult
	calls  int
}

func (s *stubVerifier) VerifyPayment(ctx context.Context, paymentID string) *VerificationResult {
	s.calls++
	return s.result
}

type stubRisk struct {
	analysis *models.RiskAnalysis
	err      error
}

func (s stubRisk) AnalyzeTransaction(ctx context.Context, transactionID int64) (*models.RiskAnalysis, error) {
	return s.analysis, s.err
}

type fakeProvider struct {
	retryErr   error
	refreshErr error
	retries    int
	refreshes  int
}

func (f *fakeProvider) RetryPayment(ctx context.Context, tx *models.Transaction) error {
	f.retries++
	return f.retryErr
}

func (f *fakeProvider) RefreshSession(ctx context.Context, tx *models.Transaction) error {
	f.refreshes++
	return f.refreshErr
}
