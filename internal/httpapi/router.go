// Package httpapi holds both services' process-level HTTP routers: the
// Alert Service's Gin engine (NewRouter) and the Scraper Service's
// gorilla/mux router (NewScraperRouter), each with health checks and
// Prometheus passthrough; the Gin engine also carries logging/CORS
// middleware.
//
// Grounded on
// _examples/suprachakra-Airline-Revenue-Optimization-System/services/order_service/main.go
// (initHTTPServer/setupRoutes/corsMiddleware/loggingMiddleware).
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dependencies are the collaborators the health/admin endpoints report on.
// Every field is optional: a nil collaborator is simply omitted from the
// detailed health payload instead of panicking.
type Dependencies struct {
	ServiceName string
	Environment string
	DB          DBHealth
	Redis       RedisHealth
	Heartbeats  map[string]HeartbeatChecker
}

// DBHealth is the subset of internal/storage.Store the health endpoint
// reports on.
type DBHealth interface {
	HealthCheck() error
	Stats() map[string]interface{}
}

// RedisHealth pings the shared Redis client.
type RedisHealth interface {
	Ping() error
}

// HeartbeatChecker reports how long ago a dispatcher beat last ran
// (spec.md §6 "beat lag" health check), keyed by a human label
// ("recheck_monitored", "recheck_competitor", ...) in Dependencies.Heartbeats.
type HeartbeatChecker interface {
	Age() (time.Duration, error)
}

var startTime = time.Now()

// NewRouter builds the Alert Service's Gin engine: recovery, CORS, request
// logging, /health, /metrics, and /admin/health/detailed (registered
// whatever deps holds; nil collaborators are left out of its payload).
// The Scraper Service's /scraper/parse is served by NewScraperRouter, not
// by this engine.
func NewRouter(deps Dependencies, logger *zap.Logger) *gin.Engine {
	if deps.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(loggingMiddleware(logger, deps.ServiceName))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": deps.ServiceName})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := router.Group("/admin")
	admin.GET("/health/detailed", detailedHealthHandler(deps))

	return router
}

func detailedHealthHandler(deps Dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{
			"service":   deps.ServiceName,
			"timestamp": time.Now().UTC(),
			"uptime":    time.Since(startTime).String(),
		}

		healthy := true

		if deps.DB != nil {
			if err := deps.DB.HealthCheck(); err != nil {
				body["database"] = "unhealthy: " + err.Error()
				healthy = false
			} else {
				body["database"] = "healthy"
				body["database_stats"] = deps.DB.Stats()
			}
		}

		if deps.Redis != nil {
			if err := deps.Redis.Ping(); err != nil {
				body["redis"] = "unhealthy: " + err.Error()
				healthy = false
			} else {
				body["redis"] = "healthy"
			}
		}

		if len(deps.Heartbeats) > 0 {
			beats := gin.H{}
			for label, hb := range deps.Heartbeats {
				age, err := hb.Age()
				if err != nil {
					beats[label] = "never recorded"
					continue
				}
				beats[label] = age.String()
			}
			body["heartbeats"] = beats
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, body)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func loggingMiddleware(logger *zap.Logger, service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		logger.Info("http_request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()),
		)
		c.Header("X-Response-Time", duration.String())
		c.Header("X-Service", service)
	}
}
