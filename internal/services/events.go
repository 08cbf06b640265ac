package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/payment-orchestrator/internal/models"
)

// EventPublisher is satisfied by the Kafka producer.
type EventPublisher interface {
	Send(ctx context.Context, topic string, key int64, value []byte) error
}

const (
	EventTypePaymentCreated   = "payment.created"
	EventTypePaymentRecovered = "payment.recovered"
)

func statusEventType(status models.StatusType) string {
	return "payment." + string(status)
}

type lifecycleEvent struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	TransactionID int64             `json:"transaction_id"`
	PaymentID     string            `json:"payment_id"`
	UserID        int64             `json:"user_id"`
	Status        models.StatusType `json:"status"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	OccurredAt    string            `json:"occurred_at"`
}

type eventEmitter struct {
	publisher EventPublisher
	topic     string
}

// emit publishes a lifecycle event; delivery failures are logged and dropped.
func (e *eventEmitter) emit(ctx context.Context, eventType string, tx *models.Transaction, status models.StatusType) {
	if e == nil || e.publisher == nil || tx == nil {
		return
	}
	payload, err := json.Marshal(lifecycleEvent{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		TransactionID: tx.ID,
		PaymentID:     tx.ProviderPaymentID,
		UserID:        tx.UserID,
		Status:        status,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		slog.Error("failed to marshal lifecycle event", "event_type", eventType, "transaction_id", tx.ID, "error", err)
		return
	}
	if err := e.publisher.Send(ctx, e.topic, tx.ID, payload); err != nil {
		slog.Error("failed to publish lifecycle event", "event_type", eventType, "transaction_id", tx.ID, "error", err)
	}
}
