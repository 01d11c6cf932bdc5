// Package storage is the GORM-backed relational persistence layer for the
// entities of spec.md §3 (MonitoredProduct, CompetitorProduct, AlertRule,
// PriceComparison, NotificationLog, ScrapingError).
//
// Grounded on
// _examples/suprachakra-Airline-Revenue-Optimization-System's
// services/order_service/src/database/connection.go (Connect/AutoMigrate/
// HealthCheck/GetStats shape), generalized from a package-level singleton
// to an explicitly constructed, injected *Store per spec.md §9's
// preference for no global mutable state.
package storage

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/iaros/marketwatch/internal/config"
	"github.com/iaros/marketwatch/internal/models"
)

// Store wraps a *gorm.DB and exposes the repository methods used by the
// scheduler, comparison, rules, and notify packages.
type Store struct {
	db *gorm.DB
}

// Connect opens a Postgres connection per cfg and configures the pool.
func Connect(cfg config.Postgres) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DatabaseName, cfg.SSLMode,
	)

	gormLogger := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConnections)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// AutoMigrate creates/updates tables for every entity. Schema migrations
// that need precise control (indexes, constraints) live under
// internal/storage/migrations and run via golang-migrate instead; this is
// kept for local/dev bring-up parity with the teacher's AutoMigrate step.
func (s *Store) AutoMigrate() error {
	if err := s.db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		log.Printf("warning: could not create uuid-ossp extension: %v", err)
	}
	return s.db.AutoMigrate(
		&models.MonitoredProduct{},
		&models.CompetitorProduct{},
		&models.AlertRule{},
		&models.PriceComparison{},
		&models.NotificationLog{},
		&models.ScrapingError{},
	)
}

// HealthCheck pings the underlying connection (spec.md §6 health endpoint).
func (s *Store) HealthCheck() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Stats reports pool statistics for diagnostics.
func (s *Store) Stats() map[string]interface{} {
	sqlDB, err := s.db.DB()
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	stats := sqlDB.Stats()
	return map[string]interface{}{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration":        stats.WaitDuration.String(),
	}
}
