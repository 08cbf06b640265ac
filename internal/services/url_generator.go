package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/honeynil/payment-orchestrator/internal/models"
	pkgerrors "github.com/honeynil/payment-orchestrator/pkg/errors"
)

const fallbackProviderName = "unconfigured"

type GeneratedURL struct {
	URL      string
	Provider string
	// Fallback reports that provider config was unusable and the URL carries
	// no return/cancel targets.
	Fallback bool
}

// URLBuilder builds the hosted payment page URL for a transaction.
type URLBuilder interface {
	Generate(ctx context.Context, paymentID string, amount int64, currency string, customer models.Customer) (GeneratedURL, error)
}

type URLGenerator struct {
	configs         ConfigSource
	fallbackBaseURL string
}

func NewURLGenerator(configs ConfigSource, fallbackBaseURL string) *URLGenerator {
	return &URLGenerator{configs: configs, fallbackBaseURL: fallbackBaseURL}
}

func (g *URLGenerator) Generate(ctx context.Context, paymentID string, amount int64, currency string, customer models.Customer) (GeneratedURL, error) {
	if paymentID == "" {
		return GeneratedURL{}, fmt.Errorf("%w: empty payment id", pkgerrors.ErrInvalidInput)
	}

	cfg, err := g.configs.ActiveProviderConfig(ctx)
	if err != nil {
		return g.fallback(paymentID, amount, currency, err)
	}
	base, err := validateProviderConfig(cfg)
	if err != nil {
		return g.fallback(paymentID, amount, currency, err)
	}

	q := base.Query()
	q.Set("payment_id", paymentID)
	q.Set("amount", strconv.FormatInt(amount, 10))
	q.Set("currency", currency)
	q.Set("customer_name", customer.Name)
	q.Set("customer_email", customer.Email)
	q.Set("customer_phone", customer.Phone)
	q.Set("return_url", cfg.ReturnURL)
	q.Set("cancel_url", cfg.CancelURL)
	q.Set("api_key", cfg.APIKey)
	base.RawQuery = q.Encode()

	return GeneratedURL{URL: base.String(), Provider: cfg.Provider}, nil
}

func (g *URLGenerator) fallback(paymentID string, amount int64, currency string, cause error) (GeneratedURL, error) {
	base, err := parseAbsoluteURL(g.fallbackBaseURL)
	if err != nil {
		slog.Error("fallback payment url unavailable", "method", "URLGenerator.Generate", "payment_id", paymentID, "cause", cause, "error", err)
		return GeneratedURL{}, fmt.Errorf("provider config unusable (%v) and fallback url invalid: %w", cause, err)
	}

	q := base.Query()
	q.Set("payment_id", paymentID)
	q.Set("amount", strconv.FormatInt(amount, 10))
	q.Set("currency", currency)
	base.RawQuery = q.Encode()

	slog.Warn("using fallback payment url",
		"method", "URLGenerator.Generate",
		"fallback", true,
		"payment_id", paymentID,
		"cause", cause)
	return GeneratedURL{URL: base.String(), Provider: fallbackProviderName, Fallback: true}, nil
}
