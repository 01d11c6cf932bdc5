// Package rules implements the alert-rule-matcher half of the Price
// Comparison & Alert Rule Engine (spec.md §4.9): deciding whether a raw
// AlertCandidate produced by internal/comparison satisfies a configured
// AlertRule.
//
// Grounded on
// _examples/original_source/market_alert/alert_app/notifications/matching.py
// (alert_matches_rule).
package rules

import (
	"github.com/shopspring/decimal"

	"github.com/iaros/marketwatch/internal/comparison"
	"github.com/iaros/marketwatch/internal/metrics"
	"github.com/iaros/marketwatch/internal/models"
)

// candidateStatus maps an AlertCandidate.Kind to the ProductStatus string
// matching.py compares rule.product_status.value against.
func candidateStatus(kind string) string {
	switch kind {
	case "unavailable", "product_unavailable":
		return string(models.StatusUnavailable)
	case "removed", "product_removed":
		return string(models.StatusRemoved)
	default:
		return ""
	}
}

// Matches reports whether candidate satisfies rule, per matching.py's
// alert_matches_rule. Scoping a rule to a single product (rule.MonitoredID)
// is the caller's responsibility before invoking Matches.
func Matches(candidate comparison.AlertCandidate, rule models.AlertRule) bool {
	if rule.TargetPrice != nil {
		if candidate.Price == nil || candidate.Price.GreaterThan(*rule.TargetPrice) {
			return false
		}
	}

	if rule.ProductStatus != nil {
		if candidateStatus(candidate.Kind) != string(*rule.ProductStatus) {
			return false
		}
	}

	switch rule.RuleType {
	case models.RuleTypePriceTarget:
		if candidate.Price == nil {
			return false
		}
		if rule.ThresholdValue != nil && candidate.Price.GreaterThan(*rule.ThresholdValue) {
			return false
		}
		if rule.ThresholdPercent != nil {
			if candidate.PctBelowTarget == nil || candidate.PctBelowTarget.LessThan(*rule.ThresholdPercent) {
				return false
			}
		}
		return true

	case models.RuleTypePriceChange:
		if candidate.Kind != "price_increase" && candidate.Kind != "price_decrease" {
			return false
		}
		change := decimal.Zero
		if candidate.Change != nil {
			change = candidate.Change.Abs()
		}
		if rule.ThresholdValue != nil && change.LessThan(*rule.ThresholdValue) {
			return false
		}
		if rule.ThresholdPercent != nil {
			pctChange := decimal.Zero
			if candidate.PctChange != nil {
				pctChange = candidate.PctChange.Abs()
			}
			if pctChange.LessThan(*rule.ThresholdPercent) {
				return false
			}
		}
		return true

	case models.RuleTypeListingPaused:
		return candidateStatus(candidate.Kind) == string(models.StatusUnavailable)

	case models.RuleTypeListingRemoved:
		return candidateStatus(candidate.Kind) == string(models.StatusRemoved)

	case models.RuleTypeScrapingError:
		return candidate.Kind == "scraping_error"

	default:
		return false
	}
}

// MatchRules evaluates candidate against every rule in rules, returning
// the subset that match, and records per-rule-type trigger metrics.
func MatchRules(candidate comparison.AlertCandidate, rulesList []models.AlertRule) []models.AlertRule {
	matched := make([]models.AlertRule, 0)
	for _, rule := range rulesList {
		if !rule.Enabled {
			continue
		}
		if Matches(candidate, rule) {
			matched = append(matched, rule)
			metrics.AlertRulesTriggeredTotal.WithLabelValues(string(rule.RuleType)).Inc()
		}
	}
	return matched
}
