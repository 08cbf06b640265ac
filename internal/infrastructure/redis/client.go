package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	stderrors "errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrKeyNotFound = stderrors.New("key not found")

// RedisClient defines the interface for Redis operations.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, key string) error
	// SlidingWindowHit records a hit in the rolling window stored at key when fewer than
	// limit hits are present and reports the resulting state.
	SlidingWindowHit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (WindowState, error)
	Close() error
}

type WindowState struct {
	Allowed bool
	Count   int
	// Oldest is the timestamp of the oldest hit still inside the window.
	Oldest time.Time
}

// Client is the implementation of RedisClient.
type Client struct {
	client *redis.Client
}

// slidingWindowScript trims expired hits, admits the new one when under the limit,
// and returns {allowed, count, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = now
if oldest[2] then
  oldestScore = tonumber(oldest[2])
end
return {allowed, count, oldestScore}
`)

func NewClient(addr string) *Client {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		slog.Error("failed to connect to Redis", "addr", addr, "error", err)
		panic(err)
	}

	slog.Info("connected to Redis", "addr", addr)
	return &Client{client: client}
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

func (c *Client) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *Client) SlidingWindowHit(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (WindowState, error) {
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())
	res, err := slidingWindowScript.Run(ctx, c.client, []string{key},
		now.UnixMilli(), window.Milliseconds(), limit, member).Slice()
	if err != nil {
		return WindowState{}, fmt.Errorf("sliding window script failed: %w", err)
	}
	if len(res) != 3 {
		return WindowState{}, fmt.Errorf("unexpected sliding window reply length %d", len(res))
	}

	allowed, err := toInt64(res[0])
	if err != nil {
		return WindowState{}, err
	}
	count, err := toInt64(res[1])
	if err != nil {
		return WindowState{}, err
	}
	oldest, err := toInt64(res[2])
	if err != nil {
		return WindowState{}, err
	}
	return WindowState{
		Allowed: allowed == 1,
		Count:   int(count),
		Oldest:  time.UnixMilli(oldest),
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis reply type %T", v)
	}
}
