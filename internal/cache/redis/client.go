package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/dss-dashboard/backend/pkg/logger"
)

const forecastPrefix = "forecast:"

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("cache unavailable")

type Options struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
	// BreakerFailures consecutive failures open the breaker for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

type Client struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	ttl     time.Duration
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", addr))

	return newWithClient(rdb, opts), nil
}

func newWithClient(rdb *redis.Client, opts Options) *Client {
	failures := opts.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	return &Client{
		client: rdb,
		ttl:    opts.TTL,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "redis-forecast-cache",
			Timeout: opts.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Cache breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func ForecastKey(hash string) string {
	return forecastPrefix + hash
}

func (c *Client) execute(fn func() (interface{}, error)) (interface{}, error) {
	v, err := c.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, err
}

// GetForecast decodes the cached value for hash into out. A miss is not an error.
func (c *Client) GetForecast(ctx context.Context, hash string, out interface{}) (bool, error) {
	v, err := c.execute(func() (interface{}, error) {
		data, err := c.client.Get(ctx, ForecastKey(hash)).Bytes()
		if err == redis.Nil {
			return nil, nil
		}
		return data, err
	})
	if err != nil {
		return false, fmt.Errorf("failed to get forecast cache: %w", err)
	}
	data, _ := v.([]byte)
	if data == nil {
		return false, nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal forecast: %w", err)
	}

	logger.Debug("Forecast cache hit", zap.String("hash", hash))
	return true, nil
}

func (c *Client) SetForecast(ctx context.Context, hash string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal forecast: %w", err)
	}

	_, err = c.execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, ForecastKey(hash), data, c.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to set forecast cache: %w", err)
	}

	logger.Debug("Forecast cached", zap.String("hash", hash), zap.Duration("ttl", c.ttl))
	return nil
}

// InvalidateForecasts drops every cached forecast after a snapshot refresh.
func (c *Client) InvalidateForecasts(ctx context.Context) error {
	_, err := c.execute(func() (interface{}, error) {
		iter := c.client.Scan(ctx, 0, forecastPrefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				logger.Warn("Failed to delete cache key", zap.Error(err))
			}
		}
		return nil, iter.Err()
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate forecast cache: %w", err)
	}

	logger.Info("Forecast cache invalidated")
	return nil
}
