// Package ratelimit provides a per-key fixed-window admission counter backed
// by Redis. Atomicity comes from a Lua check-and-increment, which avoids the
// GET -> check -> INCR race when multiple dispatch workers share a key.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// The script checks the counter before incrementing so a denied call never
// consumes budget. Returns {allowed, current}.
const windowLuaScript = `
local key = KEYS[1]
local increment = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current = tonumber(redis.call("GET", key) or "0")

if current + increment > limit then
    return {0, current}
end

local newVal = redis.call("INCRBY", key, increment)
if newVal == increment then
    redis.call("EXPIRE", key, ttl)
end

return {1, newVal}
`

// Limiter admits up to Ceiling operations per Window for each key. It holds
// no business data and is safe for concurrent use.
type Limiter struct {
	redis   *redis.Client
	script  *redis.Script
	window  time.Duration
	ceiling int
	prefix  string
}

// New creates a limiter. window and ceiling are configuration, not per-call
// parameters, so every call site shares one policy per limiter instance.
func New(client *redis.Client, window time.Duration, ceiling int) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	if ceiling <= 0 {
		ceiling = 100
	}
	return &Limiter{
		redis:   client,
		script:  redis.NewScript(windowLuaScript),
		window:  window,
		ceiling: ceiling,
		prefix:  "ratelimit",
	}
}

// NewFromURL connects to Redis and returns a limiter on that connection.
func NewFromURL(redisURL string, window time.Duration, ceiling int) (*Limiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return New(client, window, ceiling), nil
}

// Allow reports whether n more operations may proceed for key within the
// current window. When denied, retryAfter is the wait until the window
// resets; the caller decides whether to queue, reject, or back off. The
// request is never silently dropped.
func (l *Limiter) Allow(ctx context.Context, key string, n int) (allowed bool, retryAfter time.Duration, err error) {
	if n < 1 {
		n = 1
	}

	now := time.Now()
	bucket := now.UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)

	// TTL of two windows so a bucket outlives clock skew between workers.
	ttl := int((2 * l.window).Seconds())
	if ttl < 1 {
		ttl = 1
	}

	result, err := l.script.Run(ctx, l.redis, []string{redisKey}, n, l.ceiling, ttl).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	if result[0].(int64) == 1 {
		return true, 0, nil
	}

	windowEnd := time.Unix(0, (bucket+1)*int64(l.window))
	retryAfter = windowEnd.Sub(now)
	if retryAfter <= 0 {
		retryAfter = time.Millisecond
	}
	return false, retryAfter, nil
}

// Ceiling reports the per-window admission limit. Callers that batch their
// requests can size batches with it, since a single request for more than
// the ceiling can never be admitted.
func (l *Limiter) Ceiling() int { return l.ceiling }

// Usage returns the current count and ceiling for a key, for status endpoints.
func (l *Limiter) Usage(ctx context.Context, key string) (current int, ceiling int, err error) {
	bucket := time.Now().UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)

	current, err = l.redis.Get(ctx, redisKey).Int()
	if err == redis.Nil {
		return 0, l.ceiling, nil
	}
	if err != nil {
		return 0, l.ceiling, err
	}
	return current, l.ceiling, nil
}

// Close releases the Redis connection.
func (l *Limiter) Close() error {
	return l.redis.Close()
}
