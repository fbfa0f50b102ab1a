package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreachable(t *testing.T) *Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := newWithClient(rdb, Options{TTL: time.Minute, BreakerFailures: 2, BreakerTimeout: time.Hour})
	t.Cleanup(func() { c.Close() })
	return c
}

func TestForecastKey(t *testing.T) {
	assert.Equal(t, "forecast:abc", ForecastKey("abc"))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	c := unreachable(t)
	ctx := context.Background()
	var out map[string]int

	for i := 0; i < 2; i++ {
		_, err := c.GetForecast(ctx, "k", &out)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	_, err := c.GetForecast(ctx, "k", &out)
	assert.ErrorIs(t, err, ErrUnavailable)

	err = c.SetForecast(ctx, "k", map[string]int{"a": 1})
	assert.ErrorIs(t, err, ErrUnavailable)
}
