// Package scheduler implements the Adaptive Recheck Scheduler of spec.md
// §4.1: for each monitored product, decide when it is next polled,
// adapting to volatility, price targets, peak hours, and failures.
//
// Grounded on _examples/original_source/market_scraper/app/utils/adaptive_recheck.py
// (AdaptiveRecheckManager), translated field-for-field and algorithm-step-
// for-algorithm-step into Go with decimal arithmetic for money comparisons.
package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iaros/marketwatch/internal/config"
	"github.com/iaros/marketwatch/internal/metrics"
)

// Comparison is the subset of a PriceComparison snapshot the schedule
// algorithm reads (spec.md §4.1 step 1-3).
type Comparison struct {
	HasAlerts               bool
	LowestCompetitorPrice   *decimal.Decimal
	AverageCompetitorPrice  *decimal.Decimal
}

// Product is the subset of MonitoredProduct the schedule algorithm reads.
type Product struct {
	ID          string
	TargetPrice decimal.Decimal
}

// Scheduler computes and persists next-check timestamps in Redis.
type Scheduler struct {
	redis  redis.Cmdable
	cfg    config.Scheduler
	logger *zap.Logger
	now    func() time.Time
	rand   func() float64
}

// New constructs a Scheduler. client may be nil-safe callers should treat
// Redis errors as "defer to next invocation" per spec.md §4.1 Failure
// semantics; New itself never fails.
func New(client redis.Cmdable, cfg config.Scheduler, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		redis:  client,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		rand:   rand.Float64,
	}
}

func nextKey(id string) string { return fmt.Sprintf("recheck:next:%s", id) }
func failKey(id string) string { return fmt.Sprintf("recheck:fail:%s", id) }

// ShouldRecheck reports whether identifier has no scheduled time, or the
// scheduled time has passed. A Redis error is treated as "true" (spec.md
// §4.1 Failure semantics: "the caller must treat should_recheck as true").
func (s *Scheduler) ShouldRecheck(ctx context.Context, identifier string) bool {
	raw, err := s.redis.Get(ctx, nextKey(identifier)).Result()
	if err == redis.Nil {
		return true
	}
	if err != nil {
		s.logger.Warn("scheduler_kv_unavailable", zap.String("identifier", identifier), zap.Error(err))
		return true
	}
	next, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return true
	}
	return !next.After(s.now())
}

// RecordResult clears the failure counter on success, or increments it
// (TTL 24h) on failure.
func (s *Scheduler) RecordResult(ctx context.Context, identifier string, success bool) {
	if success {
		if err := s.redis.Del(ctx, failKey(identifier)).Err(); err != nil {
			s.logger.Warn("scheduler_record_result_failed", zap.Error(err))
		}
		return
	}
	key := failKey(identifier)
	n, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		s.logger.Warn("scheduler_record_result_failed", zap.Error(err))
		return
	}
	if n == 1 {
		s.redis.Expire(ctx, key, 24*time.Hour)
	}
}

func (s *Scheduler) failures(ctx context.Context, identifier string) int {
	n, err := s.redis.Get(ctx, failKey(identifier)).Int()
	if err != nil {
		return 0
	}
	return n
}

// ScheduleNext computes the next check timestamp for product given its
// most recent comparisons (most recent first), persists it to Redis, and
// emits a metric. On Redis unavailability it is a no-op: scheduling is
// deferred to the next invocation (spec.md §4.1 Failure semantics), and
// the computed-but-unpersisted timestamp is still returned.
func (s *Scheduler) ScheduleNext(ctx context.Context, product Product, recent []Comparison) time.Time {
	interval := s.cfg.BaseInterval.Seconds()

	if len(recent) > 0 && recent[0].HasAlerts {
		interval *= 0.5
	}

	if len(recent) > 0 && recent[0].LowestCompetitorPrice != nil && product.TargetPrice.IsPositive() {
		diff := recent[0].LowestCompetitorPrice.Sub(product.TargetPrice).Abs()
		threshold := product.TargetPrice.Mul(decimal.NewFromFloat(0.05))
		if diff.LessThanOrEqual(threshold) {
			interval *= 0.7
		}
	}

	if avgs := collectAverages(recent); len(avgs) >= 2 {
		mean := meanOf(avgs)
		spread := maxOf(avgs).Sub(minOf(avgs))
		if mean.IsPositive() && spread.GreaterThan(mean.Mul(decimal.NewFromFloat(0.1))) {
			interval *= 0.7
		} else {
			interval *= 1.2
		}
	}

	hour := s.now().Hour()
	if hour >= s.cfg.PeakStart && hour < s.cfg.PeakEnd {
		interval *= 0.7
	}

	failures := s.failures(ctx, product.ID)
	if failures > 0 {
		interval *= float64(uint64(1) << uint(failures))
	}

	jitterFactor := 1 + (s.rand()*2-1)*s.cfg.Jitter
	interval *= jitterFactor

	min := s.cfg.MinInterval.Seconds()
	max := s.cfg.MaxInterval.Seconds()
	if interval < min {
		interval = min
	}
	if interval > max {
		interval = max
	}

	next := s.now().Add(time.Duration(interval * float64(time.Second)))

	if err := s.redis.Set(ctx, nextKey(product.ID), next.Format(time.RFC3339Nano), 0).Err(); err != nil {
		s.logger.Warn("scheduler_schedule_next_persist_failed", zap.String("product_id", product.ID), zap.Error(err))
		return next
	}
	metrics.RecheckScheduledTotal.Inc()
	return next
}

func collectAverages(recent []Comparison) []decimal.Decimal {
	limit := len(recent)
	if limit > 3 {
		limit = 3
	}
	out := make([]decimal.Decimal, 0, limit)
	for _, c := range recent[:limit] {
		if c.AverageCompetitorPrice != nil {
			out = append(out, *c.AverageCompetitorPrice)
		}
	}
	return out
}

func meanOf(vals []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, v := range vals {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(vals))))
}

func maxOf(vals []decimal.Decimal) decimal.Decimal {
	m := vals[0]
	for _, v := range vals[1:] {
		if v.GreaterThan(m) {
			m = v
		}
	}
	return m
}

func minOf(vals []decimal.Decimal) decimal.Decimal {
	m := vals[0]
	for _, v := range vals[1:] {
		if v.LessThan(m) {
			m = v
		}
	}
	return m
}
