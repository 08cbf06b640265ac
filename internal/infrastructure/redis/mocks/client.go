package mocks

import (
	"context"
	"time"

	"github.com/honeynil/payment-orchestrator/internal/infrastructure/redis"
	"github.com/stretchr/testify/mock"
)

type RedisClient struct {
	mock.Mock
}

func (m *RedisClient) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.Called(ctx, key, value, expiration).Error(0)
}

func (m *RedisClient) Del(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *RedisClient) SlidingWindowHit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (redis.WindowState, error) {
	args := m.Called(ctx, key, limit, window, now)
	state, _ := args.Get(0).(redis.WindowState)
	return state, args.Error(1)
}

func (m *RedisClient) Close() error {
	return m.Called().Error(0)
}
