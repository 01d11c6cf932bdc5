package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iaros/marketwatch/internal/comparison"
	"github.com/iaros/marketwatch/internal/metrics"
	"github.com/iaros/marketwatch/internal/models"
	"github.com/iaros/marketwatch/internal/rules"
)

// subjectLabel renders an AlertRuleType the way enums_alerts.py's
// AlertType.value.replace('_', ' ') does: "PRICE_TARGET" -> "price target".
func subjectLabel(ruleType models.AlertRuleType) string {
	return strings.ReplaceAll(strings.ToLower(string(ruleType)), "_", " ")
}

// renderAlert picks the alert type and composes subject/message for a
// matched (candidate, rule) pair, mirroring dispatch_price_alerts's
// template selection (render_price_alert / render_price_change_alert /
// render_listing_alert / render_error_alert) and manager.py's
// `f"Alerta {alert_type.value.replace('_', ' ')} - {name}"` subject line.
func renderAlert(product models.MonitoredProduct, candidate comparison.AlertCandidate) (models.AlertRuleType, string, string) {
	switch candidate.Kind {
	case "price_increase", "price_decrease":
		change := "?"
		if candidate.Change != nil {
			change = candidate.Change.String()
		}
		ruleType := models.RuleTypePriceChange
		return ruleType,
			fmt.Sprintf("Alerta %s - %s", subjectLabel(ruleType), product.Name),
			fmt.Sprintf("%s mudou de preço: %s (concorrente %s)", product.Name, change, candidate.Name)

	case "unavailable", "removed":
		ruleType := models.RuleTypeListingPaused
		if candidate.Kind == "removed" {
			ruleType = models.RuleTypeListingRemoved
		}
		return ruleType,
			fmt.Sprintf("Alerta %s - %s", subjectLabel(ruleType), product.Name),
			fmt.Sprintf("Concorrente %s está %s para %s", candidate.Name, candidate.Kind, product.Name)

	case "scraping_error":
		ruleType := models.RuleTypeScrapingError
		return ruleType,
			fmt.Sprintf("Alerta %s - %s", subjectLabel(ruleType), product.Name),
			fmt.Sprintf("Falha ao monitorar %s", product.Name)

	default:
		price := "?"
		if candidate.Price != nil {
			price = candidate.Price.String()
		}
		ruleType := models.RuleTypePriceTarget
		return ruleType,
			fmt.Sprintf("Alerta %s - %s", subjectLabel(ruleType), product.Name),
			fmt.Sprintf("%s atingiu o preço alvo: %s (concorrente %s)", product.Name, price, candidate.Name)
	}
}

// Dispatcher wires the rule matcher, the duplicate/cooldown checks, and
// the Manager fan-out together, replaying dispatch_price_alerts's
// per-candidate flow.
type Dispatcher struct {
	manager   *Manager
	ruleStore RuleStore
	logStore  LogStore
	cooldown  time.Duration
	dupWindow time.Duration
	logger    *zap.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(manager *Manager, ruleStore RuleStore, logStore LogStore, cooldown, dupWindow time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		manager:   manager,
		ruleStore: ruleStore,
		logStore:  logStore,
		cooldown:  cooldown,
		dupWindow: dupWindow,
		logger:    logger,
	}
}

// DispatchPriceAlerts evaluates candidates against the product owner's
// active alert rules and sends a notification for each surviving match,
// per spec.md §4.9's cooldown/dedup behavior.
func (d *Dispatcher) DispatchPriceAlerts(ctx context.Context, recipient string, product models.MonitoredProduct, candidates []comparison.AlertCandidate) error {
	activeRules, err := d.ruleStore.ActiveRulesForProduct(ctx, product.UserID, product.ID)
	if err != nil {
		return err
	}
	if len(activeRules) == 0 {
		// crud_alert_rules.get_alert_rules_or_default: a user with no
		// configured rule for this product still gets the default
		// (unsaved) PRICE_TARGET rule rather than silence.
		activeRules = []models.AlertRule{{
			UserID:      product.UserID,
			MonitoredID: &product.ID,
			RuleType:    models.RuleTypePriceTarget,
			Enabled:     true,
		}}
	}

	now := time.Now().UTC()

	type match struct {
		candidate comparison.AlertCandidate
		rule      models.AlertRule
	}
	var matched []match

	for _, candidate := range candidates {
		matches := rules.MatchRules(candidate, activeRules)
		if len(matches) == 0 {
			continue
		}
		rule := matches[0]
		if rule.LastNotifiedAt != nil && now.Sub(*rule.LastNotifiedAt) < d.cooldown {
			metrics.AlertRulesSuppressedTotal.WithLabelValues("cooldown").Inc()
			continue
		}
		matched = append(matched, match{candidate: candidate, rule: rule})
	}

	for _, mt := range matched {
		alertType, subject, message := renderAlert(product, mt.candidate)

		duplicate, err := d.logStore.HasRecentDuplicate(ctx, product.UserID, subject, message, d.dupWindow)
		if err != nil {
			d.logger.Error("duplicate_check_failed", zap.Error(err))
		}
		if duplicate {
			metrics.AlertRulesSuppressedTotal.WithLabelValues("duplicate").Inc()
			continue
		}

		results := d.manager.Send(ctx, recipient, subject, message)
		for _, r := range results {
			logEntry := models.NotificationLog{
				ID:          uuid.New(),
				UserID:      product.UserID,
				AlertRuleID: ruleIDPtr(mt.rule.ID),
				AlertType:   alertType,
				Channel:     r.Channel,
				Subject:     subject,
				Message:     message,
				ProviderMetadata: r.Metadata,
				Timestamp:   now,
				Success:     r.Success,
				Error:       r.Error,
			}
			if err := d.logStore.CreateNotificationLog(ctx, logEntry); err != nil {
				d.logger.Error("notification_log_failed", zap.Error(err))
			}
		}

		if err := d.ruleStore.TouchLastNotified(ctx, mt.rule.ID, now); err != nil {
			d.logger.Error("touch_last_notified_failed", zap.Error(err))
		}
	}

	return nil
}

func ruleIDPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
