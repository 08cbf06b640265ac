package mocks

import (
	"context"

	"github.com/honeynil/payment-orchestrator/internal/models"
	service "github.com/honeynil/payment-orchestrator/internal/services"
	"github.com/stretchr/testify/mock"
)

type PaymentService struct {
	mock.Mock
}

func (m *PaymentService) CreatePayment(ctx context.Context, req service.CreatePaymentRequest) *service.CreatePaymentResult {
	return m.Called(ctx, req).Get(0).(*service.CreatePaymentResult)
}

func (m *PaymentService) VerifyPayment(ctx context.Context, paymentID string) *service.VerificationResult {
	return m.Called(ctx, paymentID).Get(0).(*service.VerificationResult)
}

func (m *PaymentService) ProcessCallback(ctx context.Context, req service.CallbackRequest) *service.CallbackResult {
	return m.Called(ctx, req).Get(0).(*service.CallbackResult)
}

func (m *PaymentService) AttemptRecovery(ctx context.Context, transactionID int64, reason models.RecoveryReason) *service.RecoveryResult {
	return m.Called(ctx, transactionID, reason).Get(0).(*service.RecoveryResult)
}

func (m *PaymentService) CheckRateLimit(ctx context.Context, userID int64, action string) models.RateLimitResult {
	return m.Called(ctx, userID, action).Get(0).(models.RateLimitResult)
}

func (m *PaymentService) GetRecoveryStats(ctx context.Context, window string) (*models.RecoveryStats, error) {
	args := m.Called(ctx, window)
	stats, _ := args.Get(0).(*models.RecoveryStats)
	return stats, args.Error(1)
}

func (m *PaymentService) AnalyzeTransaction(ctx context.Context, transactionID int64) (*models.RiskAnalysis, error) {
	args := m.Called(ctx, transactionID)
	analysis, _ := args.Get(0).(*models.RiskAnalysis)
	return analysis, args.Error(1)
}

func (m *PaymentService) TransactionOwner(ctx context.Context, transactionID int64) (int64, error) {
	args := m.Called(ctx, transactionID)
	return args.Get(0).(int64), args.Error(1)
}
