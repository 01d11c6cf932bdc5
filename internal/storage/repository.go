package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/iaros/marketwatch/internal/models"
)

// MonitoredProductByID fetches a monitored product, erroring if absent.
func (s *Store) MonitoredProductByID(ctx context.Context, id uuid.UUID) (*models.MonitoredProduct, error) {
	var product models.MonitoredProduct
	if err := s.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// DueMonitoredProducts returns up to limit monitored products, grounded
// on the dispatcher's recheck_monitored_products batch job (spec.md §4.2);
// "due" filtering itself lives in internal/scheduler.ShouldRecheck, this
// just pages candidates for the dispatcher to check.
func (s *Store) DueMonitoredProducts(ctx context.Context, limit int) ([]models.MonitoredProduct, error) {
	var products []models.MonitoredProduct
	err := s.db.WithContext(ctx).
		Where("status = ?", models.StatusActive).
		Order("last_checked_at ASC NULLS FIRST").
		Limit(limit).
		Find(&products).Error
	return products, err
}

// CompetitorsByMonitoredID returns the competitor listings attached to a
// monitored product.
func (s *Store) CompetitorsByMonitoredID(ctx context.Context, monitoredID uuid.UUID) ([]models.CompetitorProduct, error) {
	var competitors []models.CompetitorProduct
	err := s.db.WithContext(ctx).Where("monitored_id = ?", monitoredID).Find(&competitors).Error
	return competitors, err
}

// DueCompetitorProducts pages competitor listings for the dispatcher's
// recheck_competitor_products batch job.
func (s *Store) DueCompetitorProducts(ctx context.Context, limit int) ([]models.CompetitorProduct, error) {
	var competitors []models.CompetitorProduct
	err := s.db.WithContext(ctx).
		Where("status != ?", models.StatusRemoved).
		Order("last_checked_at ASC NULLS FIRST").
		Limit(limit).
		Find(&competitors).Error
	return competitors, err
}

// UpdateCompetitorPrice persists a fresh price/status reading for a
// competitor, shifting the previous CurrentPrice into OldPrice so the
// comparison engine can detect_price_changes on the next run (spec.md §9
// Open Question: old_price idempotence preserved from original_source).
func (s *Store) UpdateCompetitorPrice(ctx context.Context, id uuid.UUID, newPrice *decimal.Decimal, status models.ProductStatus) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var competitor models.CompetitorProduct
		if err := tx.First(&competitor, "id = ?", id).Error; err != nil {
			return err
		}
		now := time.Now().UTC()
		competitor.OldPrice = competitor.CurrentPrice
		competitor.CurrentPrice = newPrice
		competitor.Status = status
		competitor.LastCheckedAt = &now
		return tx.Save(&competitor).Error
	})
}

// UpdateMonitoredProductPrice persists a fresh price/status reading for a
// monitored product itself (as opposed to one of its competitors).
func (s *Store) UpdateMonitoredProductPrice(ctx context.Context, id uuid.UUID, newPrice decimal.Decimal, name string, status models.ProductStatus) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"current_price":   newPrice,
		"status":          status,
		"last_checked_at": &now,
	}
	if name != "" {
		updates["name"] = name
	}
	return s.db.WithContext(ctx).
		Model(&models.MonitoredProduct{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// CreatePriceComparison persists one comparison run's serialized result.
func (s *Store) CreatePriceComparison(ctx context.Context, comparison models.PriceComparison) error {
	return s.db.WithContext(ctx).Create(&comparison).Error
}

// ActiveRulesForProduct implements notify.RuleStore: returns the enabled
// alert rules scoped to monitoredID or unscoped (applying to every
// product the user owns).
func (s *Store) ActiveRulesForProduct(ctx context.Context, userID, monitoredID uuid.UUID) ([]models.AlertRule, error) {
	var rules []models.AlertRule
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND enabled = ? AND (monitored_id IS NULL OR monitored_id = ?)", userID, true, monitoredID).
		Find(&rules).Error
	return rules, err
}

// TouchLastNotified implements notify.RuleStore.
func (s *Store) TouchLastNotified(ctx context.Context, ruleID uuid.UUID, at time.Time) error {
	if ruleID == uuid.Nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.AlertRule{}).
		Where("id = ?", ruleID).
		Update("last_notified_at", at).Error
}

// CreateNotificationLog implements notify.LogStore.
func (s *Store) CreateNotificationLog(ctx context.Context, log models.NotificationLog) error {
	return s.db.WithContext(ctx).Create(&log).Error
}

// HasRecentDuplicate implements notify.LogStore: true if a successful
// notification with the same subject+message was sent to userID within
// window (spec.md §4.9 duplicate suppression window).
func (s *Store) HasRecentDuplicate(ctx context.Context, userID uuid.UUID, subject, message string, window time.Duration) (bool, error) {
	since := time.Now().UTC().Add(-window)
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.NotificationLog{}).
		Where("user_id = ? AND subject = ? AND message = ? AND success = ? AND timestamp >= ?", userID, subject, message, true, since).
		Count(&count).Error
	return count > 0, err
}

// CreateScrapingError persists a failed-fetch record.
func (s *Store) CreateScrapingError(ctx context.Context, scrapeErr models.ScrapingError) error {
	return s.db.WithContext(ctx).Create(&scrapeErr).Error
}
