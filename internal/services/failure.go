package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"

	"github.com/honeynil/payment-orchestrator/internal/models"
)

// ProviderError is a non-2xx response from the payment provider API.
type ProviderError struct {
	Op         string
	StatusCode int
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s returned status %d", e.Op, e.StatusCode)
}

// ClassifyFailure maps an outward-call error onto a recoverable reason.
// The second return is false for errors that must not be retried.
func ClassifyFailure(err error) (models.RecoveryReason, bool) {
	if err == nil {
		return "", false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return models.ReasonTimeout, true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return models.ReasonTimeout, true
		}
		return models.ReasonNetworkError, true
	}
	var provErr *ProviderError
	if stderrors.As(err, &provErr) {
		switch {
		case provErr.StatusCode == http.StatusUnauthorized || provErr.StatusCode == 419:
			return models.ReasonExpiredSession, true
		case provErr.StatusCode == http.StatusTooManyRequests || provErr.StatusCode >= 500:
			return models.ReasonTemporaryAPIError, true
		}
		return "", false
	}
	return "", false
}
