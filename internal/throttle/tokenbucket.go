// Package throttle implements the anti-blocking throttle stack of spec.md
// §4.4: a token bucket with jitter, a humanized-delay sleeper, and 429
// backoff with adaptive rate decrease.
//
// Grounded on _examples/original_source/market_scraper/scraper_app/utils/throttle_manager.py
// (ThrottleManager.wait/backoff), translated method-for-method: refill
// proportional to elapsed monotonic time, sleep to the next token if the
// bucket is empty, always add jitter, and on 429 apply exponential
// backoff while decaying the refill rate with a floor.
package throttle

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/iaros/marketwatch/internal/circuitbreaker"
	"github.com/iaros/marketwatch/internal/metrics"
)

// TokenBucket is a jittered, circuit-breaker-integrated token bucket.
type TokenBucket struct {
	mu sync.Mutex

	rate       float64 // tokens per second; mutated by Backoff
	capacity   float64
	tokens     float64
	timestamp  time.Time

	jitterMin time.Duration
	jitterMax time.Duration

	minRate        float64
	decreaseFactor float64

	breaker *circuitbreaker.Breaker

	nowFn   func() time.Time
	sleepFn func(time.Duration)
	randFn  func() float64
}

// Option customizes a TokenBucket beyond its required fields (used by
// tests to inject deterministic clocks).
type Option func(*TokenBucket)

// New constructs a token bucket with the given refill rate (tokens/s),
// capacity, and jitter range, integrated with breaker for failure
// recording on backoff.
func New(rate, capacity float64, jitterMin, jitterMax time.Duration, minRate, decreaseFactor float64, breaker *circuitbreaker.Breaker, opts ...Option) *TokenBucket {
	tb := &TokenBucket{
		rate:           rate,
		capacity:       capacity,
		tokens:         capacity,
		timestamp:      time.Now(),
		jitterMin:      jitterMin,
		jitterMax:      jitterMax,
		minRate:        minRate,
		decreaseFactor: decreaseFactor,
		breaker:        breaker,
		nowFn:          time.Now,
		sleepFn:        time.Sleep,
		randFn:         rand.Float64,
	}
	for _, o := range opts {
		o(tb)
	}
	return tb
}

func (tb *TokenBucket) jitter() time.Duration {
	span := tb.jitterMax - tb.jitterMin
	d := tb.jitterMin + time.Duration(tb.randFn()*float64(span))
	metrics.ScraperJitterSeconds.Observe(d.Seconds())
	return d
}

// Wait refills the bucket proportional to elapsed time, sleeps until a
// token is available if needed, consumes one token, and always applies
// jitter (spec.md §4.4 "Token bucket").
func (tb *TokenBucket) Wait(ctx context.Context) {
	tb.mu.Lock()
	now := tb.nowFn()
	elapsed := now.Sub(tb.timestamp).Seconds()
	tb.tokens = min(tb.capacity, tb.tokens+elapsed*tb.rate)
	tb.timestamp = now

	var sleepFor time.Duration
	if tb.tokens < 1.0 {
		sleepSeconds := (1.0 - tb.tokens) / tb.rate
		sleepFor = time.Duration(sleepSeconds*float64(time.Second)) + tb.jitter()
		tb.tokens = 0
	} else {
		tb.tokens -= 1.0
		sleepFor = tb.jitter()
	}
	tb.mu.Unlock()

	sleepCtx(ctx, tb.sleepFn, sleepFor)
}

// Backoff applies exponential backoff on attempt and decays the refill
// rate by decreaseFactor, floored at minRate, then records a failure on
// circuitKey (spec.md §4.4 "Backoff on 429").
func (tb *TokenBucket) Backoff(ctx context.Context, attempt int, circuitKey string) {
	tb.mu.Lock()
	base := tb.jitterMin + time.Duration(tb.randFn()*float64(tb.jitterMax-tb.jitterMin))
	metrics.ScraperJitterSeconds.Observe(base.Seconds())
	delay := time.Duration(float64(uint64(1)<<uint(attempt)) * float64(base))

	newRate := tb.rate * tb.decreaseFactor
	if newRate < tb.minRate {
		newRate = tb.minRate
	}
	if newRate < tb.rate {
		tb.rate = newRate
	}
	metrics.ScraperBackoffFactor.Set(tb.rate)
	tb.mu.Unlock()

	sleepCtx(ctx, tb.sleepFn, delay)

	if tb.breaker != nil {
		tb.breaker.RecordFailure(ctx, circuitKey)
	}
}

// Rate returns the current refill rate, useful for tests/metrics.
func (tb *TokenBucket) Rate() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.rate
}

func sleepCtx(ctx context.Context, sleepFn func(time.Duration), d time.Duration) {
	if d <= 0 || ctx.Err() != nil {
		return
	}
	sleepFn(d)
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
