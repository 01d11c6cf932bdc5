// Command scraperservice runs the Scraper Service half of the platform:
// the Anti-Blocking Protection Stack, Intelligent Content Cache, and
// Robots/Identity subsystems, fronted by the POST /scraper/parse HTTP
// contract the Alert Service's internal/scraperclient calls.
//
// Grounded on the same
// _examples/suprachakra-Airline-Revenue-Optimization-System/services/order_service/main.go
// init*/startServer shape as cmd/alertservice, adapted to this process's
// narrower dependency set (no Postgres — the Scraper Service is stateless
// aside from the shared Redis cache/circuit/suspend state).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/iaros/marketwatch/internal/audit"
	"github.com/iaros/marketwatch/internal/blockrecovery"
	"github.com/iaros/marketwatch/internal/cache"
	"github.com/iaros/marketwatch/internal/circuitbreaker"
	"github.com/iaros/marketwatch/internal/config"
	"github.com/iaros/marketwatch/internal/httpapi"
	"github.com/iaros/marketwatch/internal/identity"
	"github.com/iaros/marketwatch/internal/kv"
	"github.com/iaros/marketwatch/internal/logging"
	"github.com/iaros/marketwatch/internal/ratelimit"
	"github.com/iaros/marketwatch/internal/scrapepipeline"
	"github.com/iaros/marketwatch/internal/throttle"
)

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

	redisClient, err := kv.New(cfg.Redis)
	if err != nil {
		logger.Fatal("connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("redis_ready")

	levels := []circuitbreaker.Level{
		{Threshold: cfg.Circuit.L1Threshold, Suspend: cfg.Circuit.L1Suspend},
		{Threshold: cfg.Circuit.L2Threshold, Suspend: cfg.Circuit.L2Suspend},
		{Threshold: cfg.Circuit.L3Threshold, Suspend: cfg.Circuit.L3Suspend},
	}
	breaker := circuitbreaker.New(redisClient, levels, cfg.SlackWebhookURL, logger)

	limiters := map[scrapepipeline.ProductType]*ratelimit.Limiter{}
	for name, rate := range cfg.ScraperRateLimits {
		limit, window, ok := ratelimit.ParseRateString(rate)
		if !ok {
			logger.Warn("invalid_rate_limit_string", zap.String("product_type", name), zap.String("rate", rate))
			continue
		}
		limiters[scrapepipeline.ProductType(name)] = ratelimit.New(redisClient, limit, window)
	}

	uas := identity.NewUserAgentManager(nil)
	cookies := identity.NewCookieManager()
	robots := identity.NewRobotsFetcher(redisClient)

	delay := throttle.NewHumanizedDelay(cfg.Throttle.BaseDelay, cfg.Throttle.ReflectionTime, cfg.Throttle.AvgWPM)
	bucket := throttle.New(
		cfg.Throttle.RefillRate, cfg.Throttle.Capacity,
		cfg.Throttle.JitterMin, cfg.Throttle.JitterMax,
		cfg.Throttle.MinRate, cfg.Throttle.DecreaseFactor,
		breaker,
	)

	recovery := blockrecovery.New(
		redisClient, uas, cookies, delay, nil,
		cfg.Recovery.SuspensionSteps, cfg.Recovery.BrowserTimeout,
		logger,
	)

	cacheManager := cache.New(redisClient, cfg.Cache.BaseTTL, cfg.Cache.MaxMultiplier)
	auditLogger := audit.New("", logger)

	pipeline := scrapepipeline.New(
		&http.Client{Timeout: 30 * time.Second},
		cacheManager,
		uas,
		robots,
		delay,
		bucket,
		breaker,
		recovery,
		auditLogger,
		scrapepipeline.UnimplementedParser{},
		kv.Suspension{Client: redisClient},
		limiters,
		logger,
	)
	logger.Info("scrape_pipeline_ready")

	deps := httpapi.Dependencies{
		ServiceName: "scraper-service",
		Environment: cfg.Environment,
		Redis:       httpapi.RedisPinger{Client: redisClient},
	}
	router := httpapi.NewScraperRouter(deps, pipeline, logger)
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.Worker.SoftTimeout,
		WriteTimeout: cfg.Worker.HardTimeout,
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
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}
	logger.Info("shutdown_complete")
}
