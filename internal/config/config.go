package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string
	JWTSecret    string
	HTTPAddr     string
	MetricsAddr  string
	OTLPEndpoint string
	LogLevel     string

	PaymentEventsTopic    string
	PaymentCallbacksTopic string
	CallbackConsumerGroup string

	Payment  PaymentConfig
	Recovery RecoveryConfig
	Security SecurityConfig
}

type PaymentConfig struct {
	Expiry                 time.Duration
	ResourceActivation     time.Duration
	FallbackBaseURL        string
	ProviderTimeout        time.Duration
	ProviderConfigCacheTTL time.Duration
}

type RecoveryConfig struct {
	MaxAttempts          int
	DelayBetweenAttempts time.Duration
	TemporaryErrorDelay  time.Duration
}

type SecurityConfig struct {
	// BlockThreshold is the risk score above which a transaction is blocked.
	BlockThreshold       int
	LargeAmount          int64
	HighAverageAmount    int64
	ActivityWindow       time.Duration
	RateLimitMaxRequests int
	RateLimitWindow      time.Duration
}

func Default() *Config {
	return &Config{
		PostgresDSN:           "host=localhost user=postgres password=postgres dbname=payments sslmode=disable",
		RedisAddr:             "localhost:6379",
		KafkaBrokers:          []string{"localhost:9092"},
		JWTSecret:             "supersecret",
		HTTPAddr:              ":8080",
		MetricsAddr:           ":9090",
		LogLevel:              "info",
		PaymentEventsTopic:    "payment-events",
		PaymentCallbacksTopic: "payment-callbacks",
		CallbackConsumerGroup: "payment-orchestrator-callbacks",
		Payment: PaymentConfig{
			Expiry:                 24 * time.Hour,
			ResourceActivation:     30 * 24 * time.Hour,
			FallbackBaseURL:        "https://pay.localhost/checkout",
			ProviderTimeout:        15 * time.Second,
			ProviderConfigCacheTTL: 5 * time.Minute,
		},
		Recovery: RecoveryConfig{
			MaxAttempts:          3,
			DelayBetweenAttempts: 30 * time.Second,
			TemporaryErrorDelay:  5 * time.Second,
		},
		Security: SecurityConfig{
			BlockThreshold:       70,
			LargeAmount:          1000000,
			HighAverageAmount:    500000,
			ActivityWindow:       time.Hour,
			RateLimitMaxRequests: 10,
			RateLimitWindow:      60 * time.Minute,
		},
	}
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := Default()
	cfg.PostgresDSN = stringEnv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.RedisAddr = stringEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.KafkaBrokers = listEnv("KAFKA_BROKER", cfg.KafkaBrokers)
	cfg.JWTSecret = stringEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.HTTPAddr = stringEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = stringEnv("METRICS_ADDR", cfg.MetricsAddr)
	cfg.OTLPEndpoint = stringEnv("OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.LogLevel = stringEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.PaymentEventsTopic = stringEnv("PAYMENT_EVENTS_TOPIC", cfg.PaymentEventsTopic)
	cfg.PaymentCallbacksTopic = stringEnv("PAYMENT_CALLBACKS_TOPIC", cfg.PaymentCallbacksTopic)
	cfg.CallbackConsumerGroup = stringEnv("PAYMENT_CALLBACKS_GROUP", cfg.CallbackConsumerGroup)

	cfg.Payment.Expiry = durationEnv("PAYMENT_EXPIRY", cfg.Payment.Expiry)
	cfg.Payment.ResourceActivation = durationEnv("RESOURCE_ACTIVATION_PERIOD", cfg.Payment.ResourceActivation)
	cfg.Payment.FallbackBaseURL = stringEnv("FALLBACK_PAYMENT_BASE_URL", cfg.Payment.FallbackBaseURL)
	cfg.Payment.ProviderTimeout = durationEnv("PROVIDER_TIMEOUT", cfg.Payment.ProviderTimeout)
	cfg.Payment.ProviderConfigCacheTTL = durationEnv("PROVIDER_CONFIG_CACHE_TTL", cfg.Payment.ProviderConfigCacheTTL)

	cfg.Recovery.MaxAttempts = intEnv("RECOVERY_MAX_ATTEMPTS", cfg.Recovery.MaxAttempts)
	cfg.Recovery.DelayBetweenAttempts = durationEnv("RECOVERY_DELAY_BETWEEN_ATTEMPTS", cfg.Recovery.DelayBetweenAttempts)
	cfg.Recovery.TemporaryErrorDelay = durationEnv("RECOVERY_TEMPORARY_ERROR_DELAY", cfg.Recovery.TemporaryErrorDelay)

	cfg.Security.BlockThreshold = intEnv("RISK_BLOCK_THRESHOLD", cfg.Security.BlockThreshold)
	cfg.Security.LargeAmount = int64(intEnv("RISK_LARGE_AMOUNT", int(cfg.Security.LargeAmount)))
	cfg.Security.HighAverageAmount = int64(intEnv("RISK_HIGH_AVERAGE_AMOUNT", int(cfg.Security.HighAverageAmount)))
	cfg.Security.RateLimitMaxRequests = intEnv("RATE_LIMIT_MAX", cfg.Security.RateLimitMaxRequests)
	cfg.Security.RateLimitWindow = durationEnv("RATE_LIMIT_WINDOW", cfg.Security.RateLimitWindow)

	slog.Info("config loaded",
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"http_addr", cfg.HTTPAddr,
		"recovery_max_attempts", cfg.Recovery.MaxAttempts,
		"risk_block_threshold", cfg.Security.BlockThreshold)
	return cfg
}

func stringEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func listEnv(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func intEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer env value, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func durationEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration env value, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
