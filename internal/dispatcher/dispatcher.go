// Package dispatcher runs the periodic Celery-Beat-equivalent jobs of
// spec.md §4.2: paging due monitored/competitor products and enqueueing
// scrape tasks, plus the housekeeping beats (metrics collection, cache
// cleanup).
//
// Grounded on _examples/original_source/market_alert/alert_app/core/celery_app.py's
// beat_schedule (recheck-scraping-every-5min, recheck-all-competitors-every-8min,
// collect-*-metrics-every-1min, cleanup-cache-daily at 03:00) and
// monitor_tasks.py's recheck_monitored_products/recheck_competitor_products,
// translated from Celery Beat's crontab scheduling onto robfig/cron/v3 —
// the scheduling library the rest of the pack uses for cron-style jobs.
package dispatcher

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iaros/marketwatch/internal/cache"
	"github.com/iaros/marketwatch/internal/config"
	"github.com/iaros/marketwatch/internal/metrics"
	"github.com/iaros/marketwatch/internal/models"
	"github.com/iaros/marketwatch/internal/queue"
	"github.com/iaros/marketwatch/internal/scheduler"
)

// heartbeat keys, mirroring beat:last_scraping / beat:last_competitor.
const (
	HeartbeatScraping   = "beat:last_scraping"
	HeartbeatCompetitor = "beat:last_competitor"
	HeartbeatMetrics    = "beat:last_metrics"
	HeartbeatCleanup    = "beat:last_cleanup"
)

// Store is the subset of internal/storage.Store the dispatcher pages
// through. A narrow interface here keeps dispatcher independent of GORM.
type Store interface {
	DueMonitoredProducts(ctx context.Context, limit int) ([]models.MonitoredProduct, error)
	DueCompetitorProducts(ctx context.Context, limit int) ([]models.CompetitorProduct, error)
}

// Suspender reports the global scraping-suspend flag (spec.md §4.2 "fail
// fast if globally suspended").
type Suspender interface {
	IsGloballySuspended(ctx context.Context) (bool, error)
}

// Heartbeater records beat liveness for the health endpoint's lag check.
type Heartbeater interface {
	Heartbeat(ctx context.Context, key string) error
}

// CompareTrigger is called once per monitored product touched by a
// competitor recheck batch, mirroring compare_prices_task.delay(mp_id).
type CompareTrigger func(ctx context.Context, monitoredID uuid.UUID)

// Dispatcher owns the cron schedule and the dependencies its jobs need.
type Dispatcher struct {
	cron *cron.Cron

	store     Store
	broker    *queue.Broker
	suspender Suspender
	heartbeat Heartbeater
	scheduler *scheduler.Scheduler
	cache     *cache.Manager
	logger    *zap.Logger

	monitoredBatchSize  int
	competitorBatchSize int

	onCompetitorBatch CompareTrigger
}

// New constructs a Dispatcher. onCompetitorBatch may be nil if nothing
// needs to react to a competitor recheck batch (e.g. in tests).
func New(
	store Store,
	broker *queue.Broker,
	suspender Suspender,
	heartbeat Heartbeater,
	sched *scheduler.Scheduler,
	cacheManager *cache.Manager,
	cfg config.Dispatch,
	onCompetitorBatch CompareTrigger,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		cron:                cron.New(),
		store:               store,
		broker:              broker,
		suspender:           suspender,
		heartbeat:           heartbeat,
		scheduler:           sched,
		cache:               cacheManager,
		logger:              logger,
		monitoredBatchSize:  cfg.MonitoredBatchSize,
		competitorBatchSize: cfg.CompetitorBatchSize,
		onCompetitorBatch:   onCompetitorBatch,
	}
}

// Start registers the beat schedule and begins running it in the
// background. Cron expressions mirror celery_app.py's beat_schedule
// exactly: */5 for monitored recheck, */8 for competitor recheck, */1 for
// metrics, 3:00 daily for cache cleanup.
func (d *Dispatcher) Start(ctx context.Context) error {
	jobs := []struct {
		spec string
		fn   func()
	}{
		{"*/5 * * * *", func() { d.RecheckMonitoredProducts(ctx) }},
		{"*/8 * * * *", func() { d.RecheckCompetitorProducts(ctx) }},
		{"*/1 * * * *", func() { d.CollectMetrics(ctx) }},
		{"0 3 * * *", func() { d.CleanupCache(ctx) }},
	}
	for _, j := range jobs {
		if _, err := d.cron.AddFunc(j.spec, j.fn); err != nil {
			return err
		}
	}
	d.cron.Start()
	return nil
}

// Stop halts the schedule, waiting for any in-flight job to finish.
func (d *Dispatcher) Stop() {
	<-d.cron.Stop().Done()
}

// RecheckMonitoredProducts pages due monitored products and enqueues one
// scraping task each (spec.md §4.2, grounded on monitor_tasks.py's
// recheck_monitored_products).
func (d *Dispatcher) RecheckMonitoredProducts(ctx context.Context) {
	start := time.Now()
	log := d.logger.With(zap.String("phase", "recheck_scraping"))

	suspended, err := d.suspender.IsGloballySuspended(ctx)
	if err != nil {
		log.Warn("suspend_check_failed", zap.Error(err))
	}
	if suspended {
		log.Warn("suspended_via_flag")
		return
	}

	products, err := d.store.DueMonitoredProducts(ctx, d.monitoredBatchSize)
	if err != nil {
		log.Error("recheck_monitored_failed", zap.Error(err))
		metrics.DispatchLatencySeconds.WithLabelValues("monitored").Observe(time.Since(start).Seconds())
		return
	}

	dispatched := 0
	for _, p := range products {
		if d.scheduler != nil && !d.scheduler.ShouldRecheck(ctx, p.ID.String()) {
			continue
		}
		payload, err := encodeMonitoredPayload(p)
		if err != nil {
			log.Warn("payload_encode_failed", zap.String("monitored_id", p.ID.String()), zap.Error(err))
			continue
		}
		task := queue.Task{Name: "fetch_monitored_product", Lane: queue.LaneScraping, Payload: payload}
		if err := d.broker.Enqueue(ctx, task); err != nil {
			log.Warn("enqueue_failed", zap.String("monitored_id", p.ID.String()), zap.Error(err))
			continue
		}
		dispatched++
		metrics.DispatchedTotal.WithLabelValues("monitored").Inc()
	}

	log.Info("recheck_monitored_completed", zap.Int("dispatched", dispatched))
	metrics.DispatchLatencySeconds.WithLabelValues("monitored").Observe(time.Since(start).Seconds())

	if d.heartbeat != nil {
		if err := d.heartbeat.Heartbeat(ctx, HeartbeatScraping); err != nil {
			log.Warn("heartbeat_failed", zap.Error(err))
		}
	}
}

// RecheckCompetitorProducts pages due competitor listings, enqueues one
// scraping task each, and triggers a comparison for every distinct
// monitored product touched (spec.md §4.2, grounded on monitor_tasks.py's
// recheck_competitor_products).
func (d *Dispatcher) RecheckCompetitorProducts(ctx context.Context) {
	start := time.Now()
	log := d.logger.With(zap.String("phase", "recheck_competitors"))

	suspended, err := d.suspender.IsGloballySuspended(ctx)
	if err != nil {
		log.Warn("suspend_check_failed", zap.Error(err))
	}
	if suspended {
		log.Warn("suspended_via_flag")
		return
	}

	competitors, err := d.store.DueCompetitorProducts(ctx, d.competitorBatchSize)
	if err != nil {
		log.Error("recheck_competitors_failed", zap.Error(err))
		metrics.DispatchLatencySeconds.WithLabelValues("competitor").Observe(time.Since(start).Seconds())
		return
	}

	touched := map[uuid.UUID]bool{}
	dispatched := 0
	for _, c := range competitors {
		touched[c.MonitoredID] = true
		payload, err := encodeCompetitorPayload(c)
		if err != nil {
			log.Warn("payload_encode_failed", zap.String("competitor_id", c.ID.String()), zap.Error(err))
			continue
		}
		task := queue.Task{Name: "fetch_competitor_product", Lane: queue.LaneScraping, Payload: payload}
		if err := d.broker.Enqueue(ctx, task); err != nil {
			log.Warn("enqueue_failed", zap.String("competitor_id", c.ID.String()), zap.Error(err))
			continue
		}
		dispatched++
		metrics.DispatchedTotal.WithLabelValues("competitor").Inc()
	}

	log.Info("recheck_competitors_completed", zap.Int("dispatched", dispatched))
	metrics.DispatchLatencySeconds.WithLabelValues("competitor").Observe(time.Since(start).Seconds())

	if d.heartbeat != nil {
		if err := d.heartbeat.Heartbeat(ctx, HeartbeatCompetitor); err != nil {
			log.Warn("heartbeat_failed", zap.Error(err))
		}
	}

	if d.onCompetitorBatch != nil {
		for monitoredID := range touched {
			d.onCompetitorBatch(ctx, monitoredID)
		}
	}
}

// CollectMetrics is the once-a-minute housekeeping beat; the teacher's
// collect_celery_metrics/collect_audit_metrics/collect_db_metrics all
// collapse to a single heartbeat write here since our collectors are
// package-level promauto vars updated in place by the components that own
// them, not polled out-of-band.
func (d *Dispatcher) CollectMetrics(ctx context.Context) {
	if d.heartbeat == nil {
		return
	}
	if err := d.heartbeat.Heartbeat(ctx, HeartbeatMetrics); err != nil {
		d.logger.Warn("metrics_heartbeat_failed", zap.Error(err))
	}
}

// CleanupCache runs the daily 03:00 cache.Cleanup beat (spec.md §4.7).
func (d *Dispatcher) CleanupCache(ctx context.Context) {
	if d.cache == nil {
		return
	}
	log := d.logger.With(zap.String("phase", "cleanup_cache"))
	removed, err := d.cache.Cleanup(ctx)
	if err != nil {
		log.Error("cleanup_cache_failed", zap.Error(err))
		return
	}
	log.Info("cleanup_cache_completed", zap.Int("removed", removed))
	if d.heartbeat != nil {
		if err := d.heartbeat.Heartbeat(ctx, HeartbeatCleanup); err != nil {
			log.Warn("heartbeat_failed", zap.Error(err))
		}
	}
}

// scrapePayload is the JSON body enqueued for the worker pool's
// fetch_monitored_product/fetch_competitor_product handlers.
type scrapePayload struct {
	URL          string           `json:"url"`
	MonitoredID  uuid.UUID        `json:"monitored_id"`
	CompetitorID *uuid.UUID       `json:"competitor_id,omitempty"`
	UserID       *uuid.UUID       `json:"user_id,omitempty"`
	Name         string           `json:"name,omitempty"`
	TargetPrice  *decimal.Decimal `json:"target_price,omitempty"`
}
