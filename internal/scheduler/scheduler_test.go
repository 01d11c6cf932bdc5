package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iaros/marketwatch/internal/config"
)

// fakeCmdable implements just enough of redis.Cmdable for these tests by
// embedding the real interface and overriding the handful of methods the
// scheduler calls; embedding means unimplemented methods panic if hit,
// which is intentional so an unexpected call fails loudly.
type fakeCmdable struct {
	redis.Cmdable
	store map[string]string
	fail  map[string]int
}

func newFake() *fakeCmdable {
	return &fakeCmdable{store: map[string]string{}, fail: map[string]int{}}
}

func (f *fakeCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if v, ok := f.store[key]; ok {
		cmd.SetVal(v)
	} else {
		cmd.SetErr(redis.Nil)
	}
	return cmd
}

func (f *fakeCmdable) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.store[key] = value.(string)
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.store, k)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(keys)))
	return cmd
}

func (f *fakeCmdable) Incr(ctx context.Context, key string) *redis.IntCmd {
	f.fail[key]++
	f.store[key] = ""
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(f.fail[key]))
	return cmd
}

func (f *fakeCmdable) Expire(ctx context.Context, key string, _ time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func testScheduler(client *fakeCmdable, cfg config.Scheduler, nowFn func() time.Time, randFn func() float64) *Scheduler {
	s := New(client, cfg, zap.NewNop())
	s.now = nowFn
	if randFn != nil {
		s.rand = randFn
	}
	return s
}

func baseConfig() config.Scheduler {
	return config.Scheduler{
		BaseInterval: 7200 * time.Second,
		MinInterval:  2 * time.Minute,
		MaxInterval:  60 * time.Minute,
		PeakStart:    18,
		PeakEnd:      22,
		Jitter:       0.1,
	}
}

// Scenario 1 of spec.md §8: peak-hour shortening.
func TestScheduleNextPeakHourShortening(t *testing.T) {
	now := time.Date(2026, 1, 5, 19, 0, 0, 0, time.UTC)
	client := newFake()
	s := testScheduler(client, baseConfig(), func() time.Time { return now }, func() float64 { return 0.5 })

	next := s.ScheduleNext(context.Background(), Product{ID: "p1", TargetPrice: decimal.NewFromInt(100)}, nil)
	interval := next.Sub(now).Seconds()

	// 7200 * 0.7 (peak) * jitter(1.0 since rand()=0.5 -> factor 1) = 5040
	if interval < 5030 || interval > 5050 {
		t.Fatalf("expected interval near 5040s, got %.1f", interval)
	}
}

func TestScheduleNextClampsToMinMax(t *testing.T) {
	now := time.Date(2026, 1, 5, 3, 0, 0, 0, time.UTC)
	client := newFake()
	cfg := baseConfig()
	s := testScheduler(client, cfg, func() time.Time { return now }, func() float64 { return 0.5 })

	// Force many failures to blow past max via exponential backoff.
	client.store[failKey("p2")] = "10"

	next := s.ScheduleNext(context.Background(), Product{ID: "p2", TargetPrice: decimal.NewFromInt(100)}, nil)
	interval := next.Sub(now).Seconds()
	if interval > cfg.MaxInterval.Seconds()*1.11 {
		t.Fatalf("expected interval clamped near max, got %.1f", interval)
	}
}

func TestScheduleNextMonotoneWithFailures(t *testing.T) {
	now := time.Date(2026, 1, 5, 3, 0, 0, 0, time.UTC)
	client := newFake()
	cfg := baseConfig()
	cfg.MaxInterval = 24 * time.Hour // avoid clamp masking the comparison
	s := testScheduler(client, cfg, func() time.Time { return now }, func() float64 { return 0.5 })

	client.store[failKey("p3")] = "1"
	next1 := s.ScheduleNext(context.Background(), Product{ID: "p3", TargetPrice: decimal.NewFromInt(100)}, nil)

	client.store[failKey("p3")] = "2"
	next2 := s.ScheduleNext(context.Background(), Product{ID: "p3", TargetPrice: decimal.NewFromInt(100)}, nil)

	if next2.Sub(now).Seconds() <= next1.Sub(now).Seconds() {
		t.Fatalf("expected monotone non-decreasing interval with more failures")
	}
}

func TestShouldRecheckNoScheduledTime(t *testing.T) {
	client := newFake()
	s := testScheduler(client, baseConfig(), time.Now, nil)
	if !s.ShouldRecheck(context.Background(), "missing") {
		t.Fatal("expected true when no scheduled time exists")
	}
}

func TestShouldRecheckPastTime(t *testing.T) {
	client := newFake()
	s := testScheduler(client, baseConfig(), time.Now, nil)
	client.store[nextKey("p1")] = time.Now().Add(-time.Hour).Format(time.RFC3339Nano)
	if !s.ShouldRecheck(context.Background(), "p1") {
		t.Fatal("expected true when scheduled time has passed")
	}
}

func TestShouldRecheckFutureTime(t *testing.T) {
	client := newFake()
	s := testScheduler(client, baseConfig(), time.Now, nil)
	client.store[nextKey("p1")] = time.Now().Add(time.Hour).Format(time.RFC3339Nano)
	if s.ShouldRecheck(context.Background(), "p1") {
		t.Fatal("expected false when scheduled time is in the future")
	}
}

func TestRecordResultClearsOnSuccess(t *testing.T) {
	client := newFake()
	s := testScheduler(client, baseConfig(), time.Now, nil)
	client.store[failKey("p1")] = "3"
	s.RecordResult(context.Background(), "p1", true)
	if _, ok := client.store[failKey("p1")]; ok {
		t.Fatal("expected failure counter cleared on success")
	}
}
