package mocks

import (
	"context"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/models"
	"github.com/stretchr/testify/mock"
)

type AuditRepository struct {
	mock.Mock
}

func (m *AuditRepository) Create(ctx context.Context, entry *models.AuditLogEntry) (int64, error) {
	args := m.Called(ctx, entry)
	return args.Get(0).(int64), args.Error(1)
}

func (m *AuditRepository) CreateBatch(ctx context.Context, entries []models.AuditLogEntry) error {
	return m.Called(ctx, entries).Error(0)
}

func (m *AuditRepository) UpdateEventData(ctx context.Context, id int64, data models.Metadata) error {
	return m.Called(ctx, id, data).Error(0)
}

func (m *AuditRepository) ListByTransaction(ctx context.Context, transactionID string, eventType models.AuditEventType) ([]models.AuditLogEntry, error) {
	args := m.Called(ctx, transactionID, eventType)
	entries, _ := args.Get(0).([]models.AuditLogEntry)
	return entries, args.Error(1)
}

func (m *AuditRepository) ListByEventTypeSince(ctx context.Context, eventType models.AuditEventType, since time.Time) ([]models.AuditLogEntry, error) {
	args := m.Called(ctx, eventType, since)
	entries, _ := args.Get(0).([]models.AuditLogEntry)
	return entries, args.Error(1)
}
