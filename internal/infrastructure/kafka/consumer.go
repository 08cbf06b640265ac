package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"
)

// CallbackNotification is a provider status notification delivered server-to-server.
type CallbackNotification struct {
	ResourceID string `json:"resource_id"`
	PaymentID  string `json:"payment_id,omitempty"`
	Status     string `json:"status,omitempty"`
}

// CallbackHandler processes one decoded notification.
type CallbackHandler func(ctx context.Context, n CallbackNotification) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  messageReader
	topic   string
	handler CallbackHandler
}

func NewConsumer(brokers []string, topic, groupID string, handler CallbackHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		topic:   topic,
		handler: handler,
	}
}

// Consume reads notifications until ctx is cancelled. Malformed messages are
// committed and skipped; handler errors are logged and the offset still advances
// since the callback path records its own failure in the audit log.
func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				slog.Info("Kafka consumer stopped", "topic", c.topic)
				return
			}
			slog.Error("failed to read Kafka message", "topic", c.topic, "error", err)
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			slog.Error("failed to commit Kafka message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	slog.Info("Kafka message received", "topic", msg.Topic, "key", string(msg.Key), "offset", msg.Offset)

	var n CallbackNotification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		slog.Error("failed to unmarshal callback notification", "offset", msg.Offset, "error", err)
		return
	}
	n.ResourceID = strings.TrimSpace(n.ResourceID)
	if n.ResourceID == "" {
		slog.Error("invalid callback notification: missing resource_id", "offset", msg.Offset)
		return
	}

	if err := c.handler(ctx, n); err != nil {
		slog.Error("failed to process callback notification", "resource_id", n.ResourceID, "payment_id", n.PaymentID, "error", err)
		return
	}
	slog.Info("callback notification processed", "resource_id", n.ResourceID, "payment_id", n.PaymentID)
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
