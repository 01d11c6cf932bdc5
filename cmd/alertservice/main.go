// Command alertservice runs the Alert Service half of the platform:
// the Adaptive Recheck Scheduler's beat (paging due products and
// enqueueing scrape tasks), the Work-Dispatch Pipeline's worker pool
// (running the two scrape-task handlers against the Scraper Service),
// the Price Comparison & Alert Rule Engine, and Notification Fan-out.
//
// Grounded on
// _examples/suprachakra-Airline-Revenue-Optimization-System/services/order_service/main.go's
// init*/setupRoutes/startServer shape: load config, build each
// collaborator in dependency order, start background work, serve HTTP,
// then shut down on SIGINT/SIGTERM.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iaros/marketwatch/internal/cache"
	"github.com/iaros/marketwatch/internal/circuitbreaker"
	"github.com/iaros/marketwatch/internal/config"
	"github.com/iaros/marketwatch/internal/dispatcher"
	"github.com/iaros/marketwatch/internal/handlers"
	"github.com/iaros/marketwatch/internal/httpapi"
	"github.com/iaros/marketwatch/internal/kv"
	"github.com/iaros/marketwatch/internal/logging"
	"github.com/iaros/marketwatch/internal/notify"
	"github.com/iaros/marketwatch/internal/queue"
	"github.com/iaros/marketwatch/internal/ratelimit"
	"github.com/iaros/marketwatch/internal/scheduler"
	"github.com/iaros/marketwatch/internal/scraperclient"
	"github.com/iaros/marketwatch/internal/storage"
)

var startTime = time.Now()

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	store, err := storage.Connect(cfg.Postgres)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer store.Close()
	if err := store.AutoMigrate(); err != nil {
		logger.Fatal("auto-migrate", zap.Error(err))
	}
	if err := store.Migrate(); err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}
	logger.Info("database_ready")

	redisClient, err := kv.New(cfg.Redis)
	if err != nil {
		logger.Fatal("connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("redis_ready")

	sched := scheduler.New(redisClient, cfg.Scheduler, logger)

	levels := []circuitbreaker.Level{
		{Threshold: cfg.Circuit.L1Threshold, Suspend: cfg.Circuit.L1Suspend},
		{Threshold: cfg.Circuit.L2Threshold, Suspend: cfg.Circuit.L2Suspend},
		{Threshold: cfg.Circuit.L3Threshold, Suspend: cfg.Circuit.L3Suspend},
	}
	breaker := circuitbreaker.New(redisClient, levels, cfg.SlackWebhookURL, logger)

	limiters := map[string]*ratelimit.Limiter{}
	for name, rate := range cfg.Worker.RateLimits {
		limit, window, ok := ratelimit.ParseRateString(rate)
		if !ok {
			logger.Warn("invalid_rate_limit_string", zap.String("task", name), zap.String("rate", rate))
			continue
		}
		limiters[name] = ratelimit.New(redisClient, limit, window)
	}

	tolerance, err := decimal.NewFromString(cfg.Compare.Tolerance)
	if err != nil {
		logger.Fatal("parse compare.tolerance", zap.Error(err))
	}
	priceChangeThreshold, err := decimal.NewFromString(cfg.Compare.PriceChangeThreshold)
	if err != nil {
		logger.Fatal("parse compare.price_change_threshold", zap.Error(err))
	}

	scraperClient := scraperclient.New(cfg.ScraperServiceURL, cfg.ScraperTimeout)

	channels := []notify.Channel{notify.NewWebhookChannel(resty.New())}
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, notify.NewSlackChannel(resty.New()))
	}
	manager := notify.New(channels, logger)
	notifyDispatcher := notify.NewDispatcher(manager, store, store, cfg.Alerts.RuleCooldown, cfg.Alerts.DuplicateWindow, logger)

	h := handlers.New(scraperClient, store, sched, notifyDispatcher, cfg.SlackWebhookURL, tolerance, priceChangeThreshold, logger)

	broker := queue.New(redisClient)
	hooks := queue.Hooks{
		RecordPermanentFailure: func(ctx context.Context, task queue.Task, taskErr error) {
			logger.Error("task_permanently_failed", zap.String("task", task.Name), zap.Error(taskErr))
		},
	}
	pool := queue.NewPool(
		broker,
		queue.SuspendCheckerFromKV(redisClient),
		breaker,
		limiters,
		h.Register(),
		hooks,
		cfg.Worker.Concurrency,
		cfg.Worker.MaxRetries,
		cfg.Worker.DefaultRetryDelay,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.RunScraping(ctx)
	pool.RunMonitor(ctx)
	logger.Info("worker_pool_started", zap.Int("concurrency", cfg.Worker.Concurrency))

	cacheManager := cache.New(redisClient, cfg.Cache.BaseTTL, cfg.Cache.MaxMultiplier)
	disp := dispatcher.New(
		store,
		broker,
		kv.Suspension{Client: redisClient},
		kv.Beat{Client: redisClient},
		sched,
		cacheManager,
		cfg.Dispatch,
		func(ctx context.Context, monitoredID uuid.UUID) {
			if err := h.CompareAndNotify(ctx, monitoredID); err != nil {
				logger.Warn("competitor_batch_compare_failed", zap.String("monitored_id", monitoredID.String()), zap.Error(err))
			}
		},
		logger,
	)
	if err := disp.Start(ctx); err != nil {
		logger.Fatal("start dispatcher beat", zap.Error(err))
	}
	defer disp.Stop()
	logger.Info("dispatcher_started")

	deps := httpapi.Dependencies{
		ServiceName: "alert-service",
		Environment: cfg.Environment,
		DB:          store,
		Redis:       httpapi.RedisPinger{Client: redisClient},
		Heartbeats: map[string]httpapi.HeartbeatChecker{
			"recheck_monitored":  httpapi.Heartbeat{Client: redisClient, Key: dispatcher.HeartbeatScraping},
			"recheck_competitor": httpapi.Heartbeat{Client: redisClient, Key: dispatcher.HeartbeatCompetitor},
			"metrics":            httpapi.Heartbeat{Client: redisClient, Key: dispatcher.HeartbeatMetrics},
			"cache_cleanup":      httpapi.Heartbeat{Client: redisClient, Key: dispatcher.HeartbeatCleanup},
		},
	}
	router := httpapi.NewRouter(deps, logger)
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting_http_server", zap.String("port", cfg.HTTPPort), zap.String("environment", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting_down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("shutdown_complete")
}
