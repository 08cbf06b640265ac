package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/models"
)

// ProviderClient performs the outward calls used by recovery.
type ProviderClient interface {
	RetryPayment(ctx context.Context, tx *models.Transaction) error
	RefreshSession(ctx context.Context, tx *models.Transaction) error
}

type HTTPProviderClient struct {
	configs ConfigSource
	http    *http.Client
	timeout time.Duration
}

func NewHTTPProviderClient(configs ConfigSource, httpClient *http.Client, timeout time.Duration) *HTTPProviderClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPProviderClient{configs: configs, http: httpClient, timeout: timeout}
}

type providerRequest struct {
	PaymentID         string `json:"payment_id"`
	TransactionID     int64  `json:"transaction_id"`
	Amount            int64  `json:"amount"`
	Currency          string `json:"currency"`
	ExternalReference string `json:"external_reference,omitempty"`
}

func (c *HTTPProviderClient) RetryPayment(ctx context.Context, tx *models.Transaction) error {
	return c.post(ctx, "retry", "/api/v1/payments/"+url.PathEscape(tx.ProviderPaymentID)+"/retry", tx)
}

func (c *HTTPProviderClient) RefreshSession(ctx context.Context, tx *models.Transaction) error {
	return c.post(ctx, "refresh_session", "/api/v1/sessions/refresh", tx)
}

func (c *HTTPProviderClient) post(ctx context.Context, op, path string, tx *models.Transaction) error {
	cfg, err := c.configs.ActiveProviderConfig(ctx)
	if err != nil {
		return fmt.Errorf("load provider config: %w", err)
	}
	base, err := validateProviderConfig(cfg)
	if err != nil {
		return err
	}
	endpoint := (&url.URL{Scheme: base.Scheme, Host: base.Host, Path: path}).String()

	body, err := json.Marshal(providerRequest{
		PaymentID:         tx.ProviderPaymentID,
		TransactionID:     tx.ID,
		Amount:            tx.Amount,
		Currency:          tx.Currency,
		ExternalReference: tx.ExternalReference,
	})
	if err != nil {
		return fmt.Errorf("marshal provider request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("provider %s: %w", op, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("provider call rejected", "method", "HTTPProviderClient."+op, "payment_id", tx.ProviderPaymentID, "status_code", resp.StatusCode)
		return &ProviderError{Op: op, StatusCode: resp.StatusCode}
	}
	return nil
}
