package errors

import (
	"errors"
)

var (
	ErrNilTransaction           = errors.New("transaction is nil")
	ErrInvalidTransactionStatus = errors.New("invalid transaction status")
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrStatusConflict           = errors.New("transaction status changed concurrently")
	ErrResourceNotFound         = errors.New("resource not found")
	ErrProviderConfigNotFound   = errors.New("active provider config not found")
	ErrInvalidProviderConfig    = errors.New("invalid provider config")
	ErrNilAuditEntry            = errors.New("audit entry is nil")
	ErrAuditEntryNotFound       = errors.New("audit entry not found")
	ErrUnauthenticated          = errors.New("unauthenticated actor")
	ErrInvalidInput             = errors.New("invalid input")
	ErrInvalidAmount            = errors.New("amount must be positive")
	ErrInvalidCurrency          = errors.New("invalid currency code")
	ErrMissingPaymentURL        = errors.New("payment url missing after persistence")
	ErrInvalidWindow            = errors.New("invalid stats window")
)
