package observability

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RepositoryCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_calls_total",
			Help: "Total number of repository method calls",
		},
		[]string{"method", "status"},
	)

	RepositoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_duration_seconds",
			Help:    "Duration of repository method calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	PaymentOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_operations_total",
			Help: "Payment operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	RecoveryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_recovery_attempts_total",
			Help: "Recovery attempts by reason and outcome",
		},
		[]string{"reason", "outcome"},
	)

	RiskScores = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payment_risk_score",
			Help:    "Distribution of computed transaction risk scores",
			Buckets: []float64{0, 10, 25, 40, 55, 70, 85, 100, 150},
		},
	)

	RateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_rate_limit_decisions_total",
			Help: "Rate limit decisions by action",
		},
		[]string{"action", "decision"},
	)

	AuditWriteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_audit_write_failures_total",
			Help: "Audit log writes that failed and were swallowed",
		},
		[]string{"event_type"},
	)
)

var registerOnce sync.Once

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RepositoryCalls,
			RepositoryDuration,
			PaymentOperations,
			RecoveryAttempts,
			RiskScores,
			RateLimitDecisions,
			AuditWriteFailures,
		)
	})
}

// InitMetrics registers collectors and serves /metrics on addr in the background.
func InitMetrics(addr string) {
	RegisterMetrics()
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
}
