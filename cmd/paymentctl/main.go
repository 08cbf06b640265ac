package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/config"
	"github.com/honeynil/payment-orchestrator/internal/infrastructure/auth"
	"github.com/honeynil/payment-orchestrator/internal/infrastructure/kafka"
	"github.com/honeynil/payment-orchestrator/internal/infrastructure/observability"
	"github.com/honeynil/payment-orchestrator/internal/infrastructure/redis"
	"github.com/honeynil/payment-orchestrator/internal/models"
	core "github.com/honeynil/payment-orchestrator/internal/repository/postgres"
	service "github.com/honeynil/payment-orchestrator/internal/services"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "paymentctl",
		Short:         "Operational commands for the payment orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(recoverCmd())
	rootCmd.AddCommand(riskCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(rateLimitCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the service wired against the configured stores.
type app struct {
	svc   service.PaymentService
	close func()
}

func newApp() (*app, error) {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel)
	observability.RegisterMetrics()

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	redisClient := redis.NewClient(cfg.RedisAddr)
	producer := kafka.NewProducer(cfg.KafkaBrokers)

	svc := service.NewPaymentService(service.Dependencies{
		Transactions:    core.NewPostgresTransactionRepository(db),
		Audit:           core.NewPostgresAuditRepository(db),
		Resources:       core.NewPostgresResourceRepository(db),
		ProviderConfigs: core.NewPostgresProviderConfigRepository(db),
		Redis:           redisClient,
		Events:          producer,
	}, cfg)

	return &app{
		svc: svc,
		close: func() {
			producer.Close()
			redisClient.Close()
			db.Close()
		},
	}, nil
}

func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd.Context(), a, args)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [payment-id]",
		Short: "Verify a payment by its provider payment id",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			return printJSON(a.svc.VerifyPayment(ctx, args[0]))
		}),
	}
}

func recoverCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "recover [transaction-id]",
		Short: "Attempt recovery of a failed transaction",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			res := a.svc.AttemptRecovery(ctx, id, models.RecoveryReason(reason))
			if err := printJSON(res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("recovery of transaction %d: %s", id, res.Code)
			}
			return nil
		}),
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", string(models.ReasonNetworkError), "Failure reason (network_error, timeout, temporary_api_error, expired_session)")
	return cmd
}

func riskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "risk [transaction-id]",
		Short: "Run risk analysis for a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			analysis, err := a.svc.AnalyzeTransaction(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(analysis)
		}),
	}
}

func statsCmd() *cobra.Command {
	var window string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show recovery statistics",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
			stats, err := a.svc.GetRecoveryStats(ctx, window)
			if err != nil {
				return err
			}
			return printJSON(stats)
		}),
	}
	cmd.Flags().StringVarP(&window, "window", "w", "24h", "Time window (1h, 24h, 7d)")
	return cmd
}

func rateLimitCmd() *cobra.Command {
	var action string
	cmd := &cobra.Command{
		Use:   "rate-limit [user-id]",
		Short: "Check (and count) a rate limit hit for a user",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(ctx context.Context, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return printJSON(a.svc.CheckRateLimit(ctx, id, action))
		}),
	}
	cmd.Flags().StringVarP(&action, "action", "a", service.DefaultRateLimitAction, "Rate limited action")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Issue a bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			cfg := config.Load()
			token, err := auth.GenerateJWT(cfg.JWTSecret, id, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
