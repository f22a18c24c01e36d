package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// fixedWindowScript increments the counter and starts the window on the first hit.
// Returns {count, ttl_ms}.
var fixedWindowScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if current == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisRateLimiter implements RateLimiter on a shared Redis so that every
// instance of the service sees the same counters.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisRateLimiter creates a limiter storing counters under prefix
func NewRedisRateLimiter(client redis.UniversalClient, prefix string) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, prefix: prefix}
}

// Check counts one attempt. Unlike the in-memory limiter, denied attempts
// are counted too; the window itself is never extended.
func (r *RedisRateLimiter) Check(ctx context.Context, key string, maxAttempts int, window time.Duration) (RateLimitResult, error) {
	vals, err := fixedWindowScript.Run(ctx, r.client, []string{r.prefix + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return RateLimitResult{}, oops.Code("RATE_LIMIT_FAILED").
			With("operation", "fixed window script").
			With("key", key).
			Wrap(err)
	}
	if len(vals) != 2 {
		return RateLimitResult{}, oops.Code("RATE_LIMIT_FAILED").
			With("key", key).
			Errorf("unexpected script reply length %d", len(vals))
	}

	count, ttl := int(vals[0]), time.Duration(vals[1])*time.Millisecond
	if count <= maxAttempts {
		return RateLimitResult{Allowed: true, Remaining: maxAttempts - count}, nil
	}

	return RateLimitResult{
		Allowed:    false,
		Remaining:  0,
		RetryAfter: max(ceilSeconds(ttl), 1),
	}, nil
}

// Reset clears the rate limit for a key
func (r *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return oops.Code("RATE_LIMIT_RESET_FAILED").With("key", key).Wrap(err)
	}
	return nil
}
