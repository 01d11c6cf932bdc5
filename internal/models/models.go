// Package models holds the domain entities of spec.md §3. Persistence
// representation (GORM tags) lives alongside the semantic fields because
// the teacher repo (order_service/src/models) keeps GORM models as the
// single source of truth rather than separate DTOs.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductStatus is the lifecycle status of a monitored or competitor listing.
type ProductStatus string

const (
	StatusActive      ProductStatus = "active"
	StatusInactive    ProductStatus = "inactive"
	StatusPending     ProductStatus = "pending"
	StatusFailed      ProductStatus = "failed"
	StatusAvailable   ProductStatus = "available"
	StatusUnavailable ProductStatus = "unavailable"
	StatusRemoved     ProductStatus = "removed"
)

// MonitoredProduct is a user-owned reference to a marketplace product.
type MonitoredProduct struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID       `gorm:"type:uuid;index:idx_owner_url,unique"`
	URL         string          `gorm:"index:idx_owner_url,unique"`
	Name        string
	TargetPrice decimal.Decimal `gorm:"type:numeric"`
	CurrentPrice decimal.Decimal `gorm:"type:numeric"`
	Status      ProductStatus
	LastCheckedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CompetitorProduct is a competing listing attached to a MonitoredProduct.
type CompetitorProduct struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey"`
	MonitoredID      uuid.UUID       `gorm:"type:uuid;index:idx_parent_url,unique"`
	URL              string          `gorm:"index:idx_parent_url,unique"`
	NameCompetitor   string
	CurrentPrice     *decimal.Decimal `gorm:"type:numeric"`
	OldPrice         *decimal.Decimal `gorm:"type:numeric"`
	FreeShipping     bool
	Seller           string
	Status           ProductStatus
	LastCheckedAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AlertRuleType enumerates the matchable AlertRule.rule_type values named
// by spec.md §3 — the authoritative set for AlertRule (see SPEC_FULL.md §3
// on the extra operational alert types that are NOT valid rule types).
type AlertRuleType string

const (
	RuleTypePriceTarget   AlertRuleType = "PRICE_TARGET"
	RuleTypePriceChange   AlertRuleType = "PRICE_CHANGE"
	RuleTypeListingPaused AlertRuleType = "LISTING_PAUSED"
	RuleTypeListingRemoved AlertRuleType = "LISTING_REMOVED"
	RuleTypeScrapingError AlertRuleType = "SCRAPING_ERROR"
)

// AlertRule is a matcher configured per user, optionally scoped to one product.
type AlertRule struct {
	ID               uuid.UUID        `gorm:"type:uuid;primaryKey"`
	UserID           uuid.UUID        `gorm:"type:uuid;index"`
	MonitoredID      *uuid.UUID       `gorm:"type:uuid;index"`
	RuleType         AlertRuleType
	ThresholdValue   *decimal.Decimal `gorm:"type:numeric"`
	ThresholdPercent *decimal.Decimal `gorm:"type:numeric"`
	TargetPrice      *decimal.Decimal `gorm:"type:numeric"`
	ProductStatus    *ProductStatus
	Enabled          bool
	LastNotifiedAt   *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PriceComparison is an immutable snapshot of a comparison run.
type PriceComparison struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	MonitoredID uuid.UUID `gorm:"type:uuid;index"`
	Timestamp   time.Time
	Result      []byte `gorm:"type:jsonb"` // marshaled comparison.Result
	CreatedAt   time.Time
}

// NotificationChannelKind enumerates delivery channels.
type NotificationChannelKind string

const (
	ChannelEmail    NotificationChannelKind = "email"
	ChannelSMS      NotificationChannelKind = "sms"
	ChannelPush     NotificationChannelKind = "push"
	ChannelWhatsApp NotificationChannelKind = "whatsapp"
	ChannelSlack    NotificationChannelKind = "slack"
	ChannelWebhook  NotificationChannelKind = "webhook"
)

// NotificationLog is an immutable record of one delivery attempt.
type NotificationLog struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID           uuid.UUID `gorm:"type:uuid;index"`
	AlertRuleID      *uuid.UUID `gorm:"type:uuid;index"`
	AlertType        AlertRuleType
	Channel          NotificationChannelKind
	Subject          string
	Message          string
	ProviderMetadata []byte `gorm:"type:jsonb"`
	Timestamp        time.Time `gorm:"index:idx_notif_dedup"`
	Success          bool      `gorm:"index:idx_notif_dedup"`
	Error            string
}

// ScrapingErrorType enumerates the persisted failure kinds.
type ScrapingErrorType string

const (
	ErrorHTTP     ScrapingErrorType = "http_error"
	ErrorMissing  ScrapingErrorType = "missing_data"
	ErrorTimeout  ScrapingErrorType = "timeout"
	ErrorParsing  ScrapingErrorType = "parsing_error"
)

// ScrapingError is a per-failure record.
type ScrapingError struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProductID  uuid.UUID `gorm:"type:uuid;index"`
	URL        string
	Stage      string
	HTTPStatus *int
	ErrorType  ScrapingErrorType
	Message    string
	Timestamp  time.Time
}
