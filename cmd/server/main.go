package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/api"
	"github.com/honeynil/payment-orchestrator/internal/config"
	"github.com/honeynil/payment-orchestrator/internal/infrastructure/kafka"
	"github.com/honeynil/payment-orchestrator/internal/infrastructure/redis"
	"github.com/honeynil/payment-orchestrator/internal/observability"
	core "github.com/honeynil/payment-orchestrator/internal/repository/postgres"
	service "github.com/honeynil/payment-orchestrator/internal/services"
	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := observability.Setup(ctx, "payment-service", cfg)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Error("tracer shutdown failed", "error", err)
		}
	}()

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		slog.Error("failed to open Postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		slog.Error("failed to connect to Postgres", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(cfg.RedisAddr)
	defer redisClient.Close()

	producer := kafka.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	svc := service.NewPaymentService(service.Dependencies{
		Transactions:    core.NewPostgresTransactionRepository(db),
		Audit:           core.NewPostgresAuditRepository(db),
		Resources:       core.NewPostgresResourceRepository(db),
		ProviderConfigs: core.NewPostgresProviderConfigRepository(db),
		Redis:           redisClient,
		Events:          producer,
	}, cfg)

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.PaymentCallbacksTopic, cfg.CallbackConsumerGroup, service.CallbackHandler(svc))
	go consumer.Consume(ctx)
	defer consumer.Close()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.SetupRouter(svc, cfg.JWTSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("starting server", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	slog.Info("server stopped")
}
