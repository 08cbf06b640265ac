package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/infrastructure/observability"
	pkgerrors "github.com/honeynil/payment-orchestrator/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// instrument opens a span and returns a finisher that records the call outcome
// in both the span and the repository metrics.
func instrument(ctx context.Context, tracerName, method string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, method)
	span.SetAttributes(attrs...)
	start := time.Now()

	return ctx, func(err error) {
		status := "success"
		switch {
		case err == nil:
		case isNotFound(err):
			status = "not_found"
		default:
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RepositoryCalls.WithLabelValues(method, status).Inc()
		observability.RepositoryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		span.End()
	}
}

func isNotFound(err error) bool {
	return stderrors.Is(err, pkgerrors.ErrTransactionNotFound) ||
		stderrors.Is(err, pkgerrors.ErrResourceNotFound) ||
		stderrors.Is(err, pkgerrors.ErrProviderConfigNotFound) ||
		stderrors.Is(err, pkgerrors.ErrAuditEntryNotFound)
}
