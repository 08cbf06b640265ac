package service

import (
	"context"
	"net/http"

	"github.com/honeynil/payment-orchestrator/internal/config"
	"github.com/honeynil/payment-orchestrator/internal/infrastructure/kafka"
	"github.com/honeynil/payment-orchestrator/internal/infrastructure/redis"
	"github.com/honeynil/payment-orchestrator/internal/models"
	"github.com/honeynil/payment-orchestrator/internal/repository"
)

type PaymentService interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) *CreatePaymentResult
	VerifyPayment(ctx context.Context, paymentID string) *VerificationResult
	ProcessCallback(ctx context.Context, req CallbackRequest) *CallbackResult
	AttemptRecovery(ctx context.Context, transactionID int64, reason models.RecoveryReason) *RecoveryResult
	CheckRateLimit(ctx context.Context, userID int64, action string) models.RateLimitResult
	GetRecoveryStats(ctx context.Context, window string) (*models.RecoveryStats, error)
	AnalyzeTransaction(ctx context.Context, transactionID int64) (*models.RiskAnalysis, error)
	TransactionOwner(ctx context.Context, transactionID int64) (int64, error)
}

type Dependencies struct {
	Transactions    repository.TransactionRepository
	Audit           repository.AuditRepository
	Resources       repository.ResourceRepository
	ProviderConfigs repository.ProviderConfigRepository
	Redis           redis.RedisClient
	Events          EventPublisher
	// Provider defaults to an HTTP client against the active provider config.
	Provider ProviderClient
}

type paymentService struct {
	*PaymentCreator
	*PaymentVerifier
	*CallbackProcessor
	*SecurityMonitor
	*RecoveryManager

	transactions repository.TransactionRepository
}

func NewPaymentService(deps Dependencies, cfg *config.Config) *paymentService {
	audit := NewAuditLogger(deps.Audit)
	events := &eventEmitter{publisher: deps.Events, topic: cfg.PaymentEventsTopic}
	configs := NewProviderConfigService(deps.ProviderConfigs, deps.Redis, cfg.Payment.ProviderConfigCacheTTL)

	provider := deps.Provider
	if provider == nil {
		provider = NewHTTPProviderClient(configs, &http.Client{}, cfg.Payment.ProviderTimeout)
	}

	verifier := NewPaymentVerifier(deps.Transactions, configs, audit, cfg.Payment.ProviderTimeout)
	monitor := NewSecurityMonitor(deps.Transactions, audit, deps.Redis, cfg.Security)

	return &paymentService{
		PaymentCreator: NewPaymentCreator(
			deps.Transactions,
			NewURLGenerator(configs, cfg.Payment.FallbackBaseURL),
			audit,
			events,
			cfg.Payment.Expiry,
			cfg.Payment.ProviderTimeout,
		),
		PaymentVerifier: verifier,
		CallbackProcessor: NewCallbackProcessor(
			verifier,
			deps.Transactions,
			deps.Resources,
			audit,
			events,
			DefaultStatusNormalizer(),
			cfg.Payment.ResourceActivation,
		),
		SecurityMonitor: monitor,
		RecoveryManager: NewRecoveryManager(deps.Transactions, deps.Audit, audit, monitor, provider, events, cfg.Recovery),
		transactions:    deps.Transactions,
	}
}

// TransactionOwner returns the user a transaction was created for.
func (s *paymentService) TransactionOwner(ctx context.Context, transactionID int64) (int64, error) {
	tx, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return 0, err
	}
	return tx.UserID, nil
}

// CallbackHandler adapts ProcessCallback to the Kafka consumer. Processing
// failures are reported so the consumer logs them.
func CallbackHandler(svc PaymentService) kafka.CallbackHandler {
	return func(ctx context.Context, n kafka.CallbackNotification) error {
		res := svc.ProcessCallback(ctx, CallbackRequest{
			ResourceID: n.ResourceID,
			PaymentID:  n.PaymentID,
			RawStatus:  n.Status,
		})
		if !res.Success {
			return &CallbackError{ResourceID: res.ResourceID, Status: res.Status, Message: res.Message}
		}
		return nil
	}
}

type CallbackError struct {
	ResourceID string
	Status     models.StatusType
	Message    string
}

func (e *CallbackError) Error() string {
	return "callback for resource " + e.ResourceID + " not processed (" + string(e.Status) + "): " + e.Message
}
