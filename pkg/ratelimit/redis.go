package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiter shares a fixed window counter across replicas. When Redis is
// unreachable it degrades to a LocalLimiter.
type RedisLimiter struct {
	client   *redis.Client
	window   time.Duration
	prefix   string
	fallback *LocalLimiter
	logger   *zap.Logger
}

// NewRedis builds a Redis-backed limiter. A nil client yields a limiter that
// always uses the local fallback.
func NewRedis(client *redis.Client, window time.Duration, prefix string, logger *zap.Logger) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if prefix == "" {
		prefix = "rl:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLimiter{
		client:   client,
		window:   window,
		prefix:   prefix,
		fallback: NewLocal(window),
		logger:   logger,
	}
}

// Allow increments the counter for key.
func (l *RedisLimiter) Allow(key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	if l.client == nil {
		return l.fallback.Allow(key, limit)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	res, err := fixedWindowScript.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil || len(res) < 2 {
		l.logger.Warn("rate limit store unavailable, using local limiter", zap.Error(err))
		return l.fallback.Allow(key, limit)
	}

	count, ttlMs := int(res[0]), res[1]
	if ttlMs < 0 {
		ttlMs = l.window.Milliseconds()
	}
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Now().UTC().Add(time.Duration(ttlMs) * time.Millisecond),
	}
}
