package httpapi

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iaros/marketwatch/internal/kv"
)

// RedisPinger adapts a redis.Cmdable into RedisHealth.
type RedisPinger struct {
	Client redis.Cmdable
}

func (p RedisPinger) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.Client.Ping(ctx).Err()
}

// Heartbeat adapts a Redis-backed dispatcher heartbeat key into a
// HeartbeatChecker.
type Heartbeat struct {
	Client redis.Cmdable
	Key    string
}

func (h Heartbeat) Age() (time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return kv.HeartbeatAge(ctx, h.Client, h.Key)
}
