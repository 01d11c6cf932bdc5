package config

import (
	"os"
	"testing"
)

func TestLoadAppliesDefaultsWithNoPathOrEnv(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default http_port 8080, got %s", cfg.HTTPPort)
	}
	if cfg.Postgres.Host != "localhost" {
		t.Fatalf("expected default postgres host localhost, got %s", cfg.Postgres.Host)
	}
	if rate := cfg.Worker.RateLimits["fetch_monitored_product"]; rate != "30/m" {
		t.Fatalf("expected default monitored rate limit 30/m, got %s", rate)
	}
	if rate := cfg.ScraperRateLimits["competitor"]; rate != "20/m" {
		t.Fatalf("expected default competitor scraper rate limit 20/m, got %s", rate)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	os.Setenv("HTTP_PORT", "9090")
	os.Setenv("DB_HOST", "db.internal")
	os.Setenv("REDIS_ADDR", "redis.internal:6380")
	defer os.Unsetenv("HTTP_PORT")
	defer os.Unsetenv("DB_HOST")
	defer os.Unsetenv("REDIS_ADDR")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPPort != "9090" {
		t.Fatalf("expected overridden http_port 9090, got %s", cfg.HTTPPort)
	}
	if cfg.Postgres.Host != "db.internal" {
		t.Fatalf("expected overridden db host, got %s", cfg.Postgres.Host)
	}
	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Fatalf("expected overridden redis addr, got %s", cfg.Redis.Addr)
	}
}

func TestLoadIgnoresMissingYAMLFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/to/config.yaml")
	if err != nil {
		t.Fatalf("expected a missing file to be tolerated, got %v", err)
	}
	if cfg.Environment != "development" {
		t.Fatalf("expected fallback to defaults, got environment %s", cfg.Environment)
	}
}
