// Package kv wraps the Redis client shared by every KV-resident subsystem
// named in spec.md §3/§6: scheduler state, circuit state, rate-limiter
// windows, cache entries, robots.txt cache, the global suspend flag, and
// heartbeats.
//
// Grounded on _examples/suprachakra-Airline-Revenue-Optimization-System's
// services/api_gateway/src/ratelimit/rate_limiter.go NewRateLimiter, which
// builds a *redis.Client from config and pings it before returning.
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iaros/marketwatch/internal/config"
)

// GlobalSuspendKey is the single KV key gating all outbound scraping.
const GlobalSuspendKey = "scraping:suspended"

// New constructs and health-checks a Redis client from config.
func New(cfg config.Redis) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// IsGloballySuspended reports whether scraping is globally suspended.
func IsGloballySuspended(ctx context.Context, client redis.Cmdable) (bool, error) {
	n, err := client.Exists(ctx, GlobalSuspendKey).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SuspendGlobally sets the global suspend flag for the given duration.
func SuspendGlobally(ctx context.Context, client redis.Cmdable, d time.Duration) error {
	return client.Set(ctx, GlobalSuspendKey, "1", d).Err()
}

// Heartbeat records the current time under key, used by the health
// endpoint's beat-lag check (spec.md §6).
func Heartbeat(ctx context.Context, client redis.Cmdable, key string) error {
	return client.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), 0).Err()
}

// HeartbeatAge returns how long ago the heartbeat at key was recorded.
func HeartbeatAge(ctx context.Context, client redis.Cmdable, key string) (time.Duration, error) {
	raw, err := client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, fmt.Errorf("no heartbeat recorded for %s", key)
	}
	if err != nil {
		return 0, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, err
	}
	return time.Since(t), nil
}

// Suspension adapts IsGloballySuspended into the narrow
// method-valued interfaces internal/dispatcher and internal/scrapepipeline
// each declare for themselves (both want a type, not a free function).
type Suspension struct {
	Client redis.Cmdable
}

func (s Suspension) IsGloballySuspended(ctx context.Context) (bool, error) {
	return IsGloballySuspended(ctx, s.Client)
}

// Beat adapts Heartbeat into internal/dispatcher.Heartbeater.
type Beat struct {
	Client redis.Cmdable
}

func (b Beat) Heartbeat(ctx context.Context, key string) error {
	return Heartbeat(ctx, b.Client, key)
}
