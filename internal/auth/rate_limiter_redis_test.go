package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLimiter(t *testing.T) (*RedisRateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRateLimiter(client, "ratelimit:"), mr
}

func TestRedisRateLimiter_FixedWindow(t *testing.T) {
	rl, mr := newTestRedisLimiter(t)
	ctx := context.Background()
	window := 15 * time.Minute

	for i := 0; i < 5; i++ {
		res, err := rl.Check(ctx, "login:1.2.3.4", 5, window)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "attempt %d", i+1)
		assert.Equal(t, 4-i, res.Remaining)
	}

	res, err := rl.Check(ctx, "login:1.2.3.4", 5, window)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Greater(t, res.RetryAfter, 0)
	assert.LessOrEqual(t, res.RetryAfter, 900)

	mr.FastForward(window + time.Second)

	res, err = rl.Check(ctx, "login:1.2.3.4", 5, window)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.Remaining)
}

func TestRedisRateLimiter_KeyPrefixAndTTL(t *testing.T) {
	rl, mr := newTestRedisLimiter(t)

	_, err := rl.Check(context.Background(), "signup:10.0.0.1", 10, time.Hour)
	require.NoError(t, err)

	assert.True(t, mr.Exists("ratelimit:signup:10.0.0.1"))
	assert.Equal(t, time.Hour, mr.TTL("ratelimit:signup:10.0.0.1"))
}

func TestRedisRateLimiter_Reset(t *testing.T) {
	rl, mr := newTestRedisLimiter(t)
	ctx := context.Background()

	_, err := rl.Check(ctx, "forgot:1.1.1.1", 1, time.Hour)
	require.NoError(t, err)
	res, err := rl.Check(ctx, "forgot:1.1.1.1", 1, time.Hour)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	require.NoError(t, rl.Reset(ctx, "forgot:1.1.1.1"))
	assert.False(t, mr.Exists("ratelimit:forgot:1.1.1.1"))

	res, err = rl.Check(ctx, "forgot:1.1.1.1", 1, time.Hour)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRedisRateLimiter_ServerDown(t *testing.T) {
	rl, mr := newTestRedisLimiter(t)
	mr.Close()

	_, err := rl.Check(context.Background(), "login:1.2.3.4", 5, time.Minute)
	assert.Error(t, err)
}
