// Package config centralizes configuration loading for both the alert and
// scraper services. Settings are loaded once at process start and passed
// by reference into every component; nothing here is package-level mutable
// state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the immutable, fully-resolved configuration for a process.
type Config struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`

	Postgres Postgres `yaml:"postgres"`
	Redis    Redis    `yaml:"redis"`

	Scheduler Scheduler `yaml:"scheduler"`
	Dispatch  Dispatch  `yaml:"dispatch"`
	Worker    Worker    `yaml:"worker"`
	Throttle  Throttle  `yaml:"throttle"`
	Circuit   Circuit   `yaml:"circuit"`
	Recovery  Recovery  `yaml:"recovery"`
	Cache     Cache     `yaml:"cache"`
	Compare   Compare   `yaml:"compare"`
	Alerts    Alerts    `yaml:"alerts"`

	ScraperServiceURL string        `yaml:"scraper_service_url"`
	ScraperTimeout    time.Duration `yaml:"scraper_timeout"`

	// ScraperRateLimits maps product type ("monitored"/"competitor") to a
	// "<N>/m"-style rate-limit string for the Scraper Service's own
	// per-product-type limiter (internal/scrapepipeline), distinct from
	// Worker.RateLimits' per-task-name limiter on the Alert Service side.
	ScraperRateLimits map[string]string `yaml:"scraper_rate_limits"`

	SlackWebhookURL string `yaml:"slack_webhook_url"`

	HTTPPort string `yaml:"http_port"`
}

// Postgres holds relational-store connection settings.
type Postgres struct {
	Host               string
	Port               string
	User               string
	Password           string
	DatabaseName       string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// Redis holds KV/broker connection settings.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Scheduler configures the adaptive recheck scheduler (spec.md §4.1).
type Scheduler struct {
	BaseInterval time.Duration
	MinInterval  time.Duration
	MaxInterval  time.Duration
	PeakStart    int
	PeakEnd      int
	Jitter       float64
}

// Dispatch configures the dispatcher beat (spec.md §4.2).
type Dispatch struct {
	MonitoredBatchSize  int
	CompetitorBatchSize int
}

// Worker configures the worker pool (spec.md §4.3). RateLimits maps task
// name to a "<N>/m"-style string parsed by internal/ratelimit.ParseRateString.
type Worker struct {
	Concurrency       int
	MaxRetries        int
	DefaultRetryDelay time.Duration
	SoftTimeout       time.Duration
	HardTimeout       time.Duration
	RateLimits        map[string]string
}

// Throttle configures the token bucket and humanized delay (spec.md §4.4).
type Throttle struct {
	Capacity       float64
	RefillRate     float64
	JitterMin      time.Duration
	JitterMax      time.Duration
	BaseDelay      time.Duration
	ReflectionTime time.Duration
	AvgWPM         float64
	MinRate        float64
	DecreaseFactor float64
}

// Circuit configures the multi-level circuit breaker (spec.md §4.5).
type Circuit struct {
	L1Threshold int
	L1Suspend   time.Duration
	L2Threshold int
	L2Suspend   time.Duration
	L3Threshold int
	L3Suspend   time.Duration
}

// Recovery configures block recovery (spec.md §4.6).
type Recovery struct {
	SuspensionSteps   []time.Duration
	BrowserTimeout    time.Duration
}

// Cache configures the content cache (spec.md §4.7).
type Cache struct {
	BaseTTL      time.Duration
	MaxMultiplier int
}

// Compare configures the price comparison engine (spec.md §4.8).
type Compare struct {
	Tolerance           string
	PriceChangeThreshold string
}

// Alerts configures the rule matcher / notification fan-out (spec.md §4.9).
type Alerts struct {
	RuleCooldown    time.Duration
	DuplicateWindow time.Duration
}

// Load builds a Config from environment variables, optionally overridden
// by a YAML file at path (if path is non-empty and exists).
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config yaml: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config yaml: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		Postgres: Postgres{
			Host:               "localhost",
			Port:               "5432",
			User:               "postgres",
			Password:           "password",
			DatabaseName:       "marketwatch",
			SSLMode:            "disable",
			MaxConnections:     25,
			MaxIdleConnections: 5,
			ConnMaxLifetime:    5 * time.Minute,
		},
		Redis: Redis{Addr: "localhost:6379", DB: 0},
		Scheduler: Scheduler{
			BaseInterval: 2 * time.Hour,
			MinInterval:  2 * time.Minute,
			MaxInterval:  60 * time.Minute,
			PeakStart:    18,
			PeakEnd:      22,
			Jitter:       0.1,
		},
		Dispatch: Dispatch{MonitoredBatchSize: 10, CompetitorBatchSize: 20},
		Worker: Worker{
			Concurrency:       8,
			MaxRetries:        3,
			DefaultRetryDelay: 30 * time.Second,
			SoftTimeout:       30 * time.Second,
			HardTimeout:       60 * time.Second,
			RateLimits: map[string]string{
				"fetch_monitored_product":  "30/m",
				"fetch_competitor_product": "20/m",
			},
		},
		Throttle: Throttle{
			Capacity:       10,
			RefillRate:     1,
			JitterMin:      2 * time.Second,
			JitterMax:      7 * time.Second,
			BaseDelay:      1 * time.Second,
			ReflectionTime: 500 * time.Millisecond,
			AvgWPM:         220,
			MinRate:        0.01,
			DecreaseFactor: 0.9,
		},
		Circuit: Circuit{
			L1Threshold: 3, L1Suspend: 5 * time.Minute,
			L2Threshold: 10, L2Suspend: 30 * time.Minute,
			L3Threshold: 25, L3Suspend: 120 * time.Minute,
		},
		Recovery: Recovery{
			SuspensionSteps: []time.Duration{300 * time.Second, 900 * time.Second, 1800 * time.Second},
			BrowserTimeout:  30 * time.Second,
		},
		Cache: Cache{BaseTTL: time.Hour, MaxMultiplier: 5},
		Compare: Compare{
			Tolerance:            "0.01",
			PriceChangeThreshold: "0.01",
		},
		Alerts: Alerts{
			RuleCooldown:    time.Hour,
			DuplicateWindow: 10 * time.Minute,
		},
		ScraperServiceURL: "http://localhost:8090",
		ScraperTimeout:    30 * time.Second,
		ScraperRateLimits: map[string]string{
			"monitored":  "30/m",
			"competitor": "20/m",
		},
		HTTPPort: "8080",
	}
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Postgres.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		c.Postgres.Port = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Postgres.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Postgres.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Postgres.DatabaseName = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = n
		}
	}
	if v := os.Getenv("SCRAPER_SERVICE_URL"); v != "" {
		c.ScraperServiceURL = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		c.SlackWebhookURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		c.HTTPPort = v
	}
}
