// Package ratelimit implements the Redis sliding-window rate limiter of
// spec.md §5: a sorted set of millisecond timestamps keyed by rate-limit
// name, trimmed and checked atomically via a Lua script.
//
// Grounded on _examples/rishavpaul-system-design/rate-limiter/gateway/ratelimiter/token_bucket.go,
// whose redis.NewScript(...).Run(...).Int64Slice() shape is reused here;
// the script body is rewritten from a token-bucket HSET body to the
// ZREMRANGEBYSCORE/ZADD/ZCARD sliding-window body spec.md §5 specifies.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript atomically: drops timestamps older than the window,
// records the current request, and reports whether the count (including
// this request) is within limit.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window_ms)
redis.call('ZADD', key, now, now .. '-' .. math.random())
local count = redis.call('ZCARD', key)
redis.call('PEXPIRE', key, window_ms)

local allowed = 0
if count <= limit then
  allowed = 1
end

return {allowed, count}
`)

// Limiter enforces a sliding-window limit for one rate-limit name.
type Limiter struct {
	client redis.Cmdable
	limit  int64
	window time.Duration
}

// Result is the outcome of one Allow check.
type Result struct {
	Allowed bool
	Count   int64
	Limit   int64
}

// New constructs a sliding-window limiter of limit requests per window.
func New(client redis.Cmdable, limit int64, window time.Duration) *Limiter {
	return &Limiter{client: client, limit: limit, window: window}
}

// Allow records one request attempt under key (e.g. "<task-name>",
// "monitored", "competitor"; stored in Redis as "rate:"+key) and reports
// whether it falls within the configured window/limit (spec.md §5,
// Invariant 5).
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	now := float64(time.Now().UnixMilli())
	windowMS := float64(l.window.Milliseconds())

	raw, err := slidingWindowScript.Run(ctx, l.client, []string{redisKey(key)}, now, windowMS, l.limit).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	return Result{Allowed: raw[0] == 1, Count: raw[1], Limit: l.limit}, nil
}

func redisKey(name string) string {
	return "rate:" + name
}

// ParseRateString parses the "<N>/<unit>" task-type rate-limit strings of
// spec.md §4.3/§5 (e.g. "10/m") into a limit and a window; the unit is
// "s", "m" or "h" (one second, minute or hour).
func ParseRateString(s string) (limit int64, window time.Duration, ok bool) {
	n := 0
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		n = n*10 + int(s[i]-'0')
		i++
	}
	if i == 0 || i >= len(s) || s[i] != '/' {
		return 0, 0, false
	}
	switch s[i+1:] {
	case "s":
		return int64(n), time.Second, true
	case "m":
		return int64(n), time.Minute, true
	case "h":
		return int64(n), time.Hour, true
	default:
		return 0, 0, false
	}
}
