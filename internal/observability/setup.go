package observability

import (
	"context"

	"github.com/honeynil/payment-orchestrator/internal/config"
	"github.com/honeynil/payment-orchestrator/internal/infrastructure/observability"
)

// Setup initializes logs, metrics and traces and returns the tracer shutdown hook.
func Setup(ctx context.Context, serviceName string, cfg *config.Config) func(context.Context) error {
	observability.InitLogger(cfg.LogLevel)
	observability.InitMetrics(cfg.MetricsAddr)
	return observability.InitTracing(ctx, serviceName, cfg.OTLPEndpoint)
}
