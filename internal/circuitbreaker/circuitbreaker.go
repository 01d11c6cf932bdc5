// Package circuitbreaker implements the multi-level, Redis-backed circuit
// breaker of spec.md §4.5: three escalating suspension levels keyed by an
// arbitrary "circuit key" (per task type, per user+URL, etc.), shared
// across every worker process via Redis.
//
// Grounded on _examples/original_source/market_scraper/app/utils/circuit_breaker.py
// (CircuitBreaker), translated level-walk-for-level-walk: INCR the
// failures counter, set its TTL to the longest suspend duration on the
// first failure, then walk levels from highest to lowest threshold,
// applying the first one met. L3's "reuse L2's duration" quirk (spec.md
// §9 Open Question 2) is preserved exactly, not fixed.
package circuitbreaker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iaros/marketwatch/internal/metrics"
)

// Level is one failure-count threshold and its suspension duration.
type Level struct {
	Threshold int
	Suspend   time.Duration
}

// Breaker is the Redis-backed multi-level circuit breaker.
type Breaker struct {
	redis      redis.Cmdable
	levels     []Level
	webhookURL string
	httpClient *http.Client
	logger     *zap.Logger
	mu         sync.Mutex
}

// New constructs a Breaker with the given levels (lowest threshold first)
// and an optional Slack webhook URL notified at the highest level.
func New(client redis.Cmdable, levels []Level, webhookURL string, logger *zap.Logger) *Breaker {
	return &Breaker{
		redis:      client,
		levels:     levels,
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
	}
}

func keys(circuitKey string) (failures, suspend string) {
	return circuitKey + ":failures", circuitKey + ":suspend"
}

// AllowRequest reports true iff the circuit is closed (no suspend flag).
func (b *Breaker) AllowRequest(ctx context.Context, circuitKey string) (bool, error) {
	_, suspendKey := keys(circuitKey)
	n, err := b.redis.Exists(ctx, suspendKey).Result()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// RecordFailure increments the failure counter and, if a level threshold
// is newly met, opens the circuit for that level's duration. At the
// highest level it also posts a best-effort Slack notification.
func (b *Breaker) RecordFailure(ctx context.Context, circuitKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	failuresKey, suspendKey := keys(circuitKey)

	count, err := b.redis.Incr(ctx, failuresKey).Result()
	if err != nil {
		return err
	}

	if count == 1 {
		maxSuspend := b.levels[0].Suspend
		for _, lvl := range b.levels {
			if lvl.Suspend > maxSuspend {
				maxSuspend = lvl.Suspend
			}
		}
		b.redis.Expire(ctx, failuresKey, maxSuspend)
	}

	for idx := len(b.levels) - 1; idx >= 0; idx-- {
		lvl := b.levels[idx]
		if int64(lvl.Threshold) > count {
			continue
		}
		suspendFor := lvl.Suspend
		// L3 reuses L2's duration (spec.md §9 Open Question); preserved as-is.
		if idx == len(b.levels)-1 && idx > 0 {
			suspendFor = b.levels[idx-1].Suspend
		}
		if err := b.redis.Set(ctx, suspendKey, "1", suspendFor).Err(); err != nil {
			return err
		}

		metrics.ScraperCircuitOpen.WithLabelValues("open").Set(1)
		metrics.ScraperCircuitOpen.WithLabelValues("closed").Set(0)
		metrics.ScraperCircuitStateChangesTotal.WithLabelValues("open").Inc()

		if idx == len(b.levels)-1 && b.webhookURL != "" {
			b.notifySlack(lvl.Threshold, suspendFor)
		}
		break
	}
	return nil
}

// RecordSuccess closes the circuit, clearing both keys.
func (b *Breaker) RecordSuccess(ctx context.Context, circuitKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	failuresKey, suspendKey := keys(circuitKey)
	if err := b.redis.Del(ctx, failuresKey, suspendKey).Err(); err != nil {
		return err
	}
	metrics.ScraperCircuitOpen.WithLabelValues("open").Set(0)
	metrics.ScraperCircuitOpen.WithLabelValues("closed").Set(1)
	metrics.ScraperCircuitStateChangesTotal.WithLabelValues("closed").Inc()
	return nil
}

func (b *Breaker) notifySlack(threshold int, suspend time.Duration) {
	payload := map[string]string{
		"text": fmt.Sprintf(":rotating_light: *Circuit Breaker* level 3 triggered!\nThreshold: %d failures reached.\nSuspension: %d min.", threshold, int(suspend.Minutes())),
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, b.webhookURL, strings.NewReader(string(body)))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.httpClient.Do(req)
	if err != nil {
		b.logger.Warn("circuit_breaker_slack_notify_failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()
}
