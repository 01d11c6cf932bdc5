package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iaros/marketwatch/internal/apperr"
	"github.com/iaros/marketwatch/internal/circuitbreaker"
	"github.com/iaros/marketwatch/internal/kv"
	"github.com/iaros/marketwatch/internal/metrics"
	"github.com/iaros/marketwatch/internal/ratelimit"
)

// Handler executes one task's body (spec.md §4.3 step 6). Returning an
// *apperr.Error lets the pool distinguish retryable from permanent
// failures; any other error is treated as permanent.
type Handler func(ctx context.Context, task Task) error

// Hooks are injected callbacks the pool invokes around task execution,
// kept as callbacks (rather than direct imports of internal/scheduler and
// internal/storage) to avoid a dependency cycle: both of those packages
// sit above internal/queue in the module's layering.
type Hooks struct {
	// Reschedule is called in a finally-equivalent block after every task,
	// successful or not, to persist the product's next-check time
	// (spec.md §4.3 step 8).
	Reschedule func(ctx context.Context, task Task, taskErr error)
	// RecordPermanentFailure is called when a task exhausts its retries or
	// fails with a non-retryable error (spec.md §4.3 step 6 "permanent
	// error").
	RecordPermanentFailure func(ctx context.Context, task Task, taskErr error)
}

// Pool is the queue-backed worker pool of spec.md §4.3.
type Pool struct {
	broker   *Broker
	kv       kvClient
	breaker  *circuitbreaker.Breaker
	limiters map[string]*ratelimit.Limiter
	handlers map[string]Handler
	hooks    Hooks
	logger   *zap.Logger

	scrapingConcurrency int
	maxRetries          int
	retryDelay          time.Duration

	sleepFn func(time.Duration)
}

type kvClient interface {
	IsGloballySuspended(ctx context.Context) (bool, error)
}

// NewPool constructs a worker Pool. limiters maps task name to its
// "<N>/m"-style rate limiter (spec.md §4.3 "Task-type rate-limit strings").
func NewPool(
	broker *Broker,
	suspendChecker func(ctx context.Context) (bool, error),
	breaker *circuitbreaker.Breaker,
	limiters map[string]*ratelimit.Limiter,
	handlers map[string]Handler,
	hooks Hooks,
	scrapingConcurrency, maxRetries int,
	retryDelay time.Duration,
	logger *zap.Logger,
) *Pool {
	return &Pool{
		broker:              broker,
		kv:                  suspendCheckerFunc(suspendChecker),
		breaker:             breaker,
		limiters:            limiters,
		handlers:            handlers,
		hooks:               hooks,
		logger:              logger,
		scrapingConcurrency: scrapingConcurrency,
		maxRetries:          maxRetries,
		retryDelay:          retryDelay,
		sleepFn:             time.Sleep,
	}
}

type suspendCheckerFunc func(ctx context.Context) (bool, error)

func (f suspendCheckerFunc) IsGloballySuspended(ctx context.Context) (bool, error) {
	return f(ctx)
}

// RunScraping starts the bounded-concurrency scraping lane: a fixed pool
// of goroutines, each looping dequeue-then-process (spec.md §4.3 "scraping
// (bounded-concurrency, outbound I/O)").
func (p *Pool) RunScraping(ctx context.Context) {
	for i := 0; i < p.scrapingConcurrency; i++ {
		go p.loop(ctx, LaneScraping)
	}
}

// RunMonitor starts the unbounded housekeeping lane: one goroutine per
// dequeued task, with no concurrency ceiling (spec.md §4.3 "monitor
// (unbounded housekeeping)").
func (p *Pool) RunMonitor(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			task, err := p.broker.Dequeue(ctx, LaneMonitor, 5*time.Second)
			if err == ErrEmpty {
				continue
			}
			if err != nil {
				p.logger.Warn("monitor_dequeue_failed", zap.Error(err))
				continue
			}
			go p.process(ctx, task)
		}
	}()
}

func (p *Pool) loop(ctx context.Context, lane Lane) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		task, err := p.broker.Dequeue(ctx, lane, 5*time.Second)
		if err == ErrEmpty {
			continue
		}
		if err != nil {
			p.logger.Warn("dequeue_failed", zap.String("lane", string(lane)), zap.Error(err))
			continue
		}
		p.process(ctx, task)
	}
}

// process runs the per-task pipeline of spec.md §4.3 steps 2-8.
func (p *Pool) process(ctx context.Context, task Task) {
	var taskErr error
	defer func() {
		if p.hooks.Reschedule != nil {
			p.hooks.Reschedule(ctx, task, taskErr)
		}
	}()

	suspended, err := p.kv.IsGloballySuspended(ctx)
	if err != nil {
		p.logger.Warn("suspend_check_failed", zap.Error(err))
	}
	if suspended {
		taskErr = apperr.New(apperr.DependencyUnavailable, "scraping globally suspended")
		metrics.TaskExecutionsTotal.WithLabelValues(task.Name, "suspended").Inc()
		return
	}

	allowed, err := p.breaker.AllowRequest(ctx, task.Name)
	if err != nil {
		p.logger.Warn("circuit_check_failed", zap.Error(err))
	}
	if !allowed {
		taskErr = apperr.New(apperr.DependencyUnavailable, "circuit open for "+task.Name)
		metrics.TaskExecutionsTotal.WithLabelValues(task.Name, "circuit_open").Inc()
		return
	}

	if limiter, ok := p.limiters[task.Name]; ok {
		result, err := limiter.Allow(ctx, task.Name)
		if err != nil {
			p.logger.Warn("rate_limit_check_failed", zap.Error(err))
		} else if !result.Allowed {
			taskErr = apperr.New(apperr.DependencyUnavailable, "rate limited for "+task.Name)
			metrics.TaskExecutionsTotal.WithLabelValues(task.Name, "rate_limited").Inc()
			return
		}
	}

	handler, ok := p.handlers[task.Name]
	if !ok {
		taskErr = apperr.New(apperr.InvalidInput, "no handler registered for task "+task.Name)
		metrics.TaskExecutionsTotal.WithLabelValues(task.Name, "invalid").Inc()
		return
	}

	start := time.Now()
	taskErr = handler(ctx, task)
	metrics.TaskDurationSeconds.WithLabelValues(task.Name).Observe(time.Since(start).Seconds())

	if taskErr == nil {
		if err := p.breaker.RecordSuccess(ctx, task.Name); err != nil {
			p.logger.Warn("record_success_failed", zap.Error(err))
		}
		metrics.TaskExecutionsTotal.WithLabelValues(task.Name, "success").Inc()
		return
	}

	if apperr.IsRetryable(taskErr) {
		if err := p.breaker.RecordFailure(ctx, task.Name); err != nil {
			p.logger.Warn("record_failure_failed", zap.Error(err))
		}
		if task.Attempt < p.maxRetries {
			p.sleepFn(p.retryDelay)
			if err := p.broker.Requeue(ctx, task); err != nil {
				p.logger.Warn("requeue_failed", zap.Error(err))
			}
			metrics.TaskExecutionsTotal.WithLabelValues(task.Name, "retried").Inc()
			return
		}
	}

	metrics.TaskExecutionsTotal.WithLabelValues(task.Name, "failed").Inc()
	if p.hooks.RecordPermanentFailure != nil {
		p.hooks.RecordPermanentFailure(ctx, task, taskErr)
	}
}

// SuspendCheckerFromKV adapts internal/kv.IsGloballySuspended's free
// function signature (which takes a redis.Cmdable explicitly) into the
// ctx-only closure NewPool expects.
func SuspendCheckerFromKV(client redis.Cmdable) func(ctx context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		return kv.IsGloballySuspended(ctx, client)
	}
}
