package rules

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/iaros/marketwatch/internal/comparison"
	"github.com/iaros/marketwatch/internal/models"
)

func decPtr(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func TestMatchesPriceTargetBelowThreshold(t *testing.T) {
	rule := models.AlertRule{RuleType: models.RuleTypePriceTarget, ThresholdValue: decPtr("90.00"), Enabled: true}
	candidate := comparison.AlertCandidate{Kind: "below_target", Price: decPtr("85.00")}
	if !Matches(candidate, rule) {
		t.Fatal("expected match when price below threshold")
	}
}

func TestMatchesPriceTargetAboveThresholdFails(t *testing.T) {
	rule := models.AlertRule{RuleType: models.RuleTypePriceTarget, ThresholdValue: decPtr("90.00"), Enabled: true}
	candidate := comparison.AlertCandidate{Kind: "below_target", Price: decPtr("95.00")}
	if Matches(candidate, rule) {
		t.Fatal("expected no match when price above threshold")
	}
}

func TestMatchesPriceChangeRequiresMinimumMagnitude(t *testing.T) {
	rule := models.AlertRule{RuleType: models.RuleTypePriceChange, ThresholdValue: decPtr("10.00"), Enabled: true}
	small := comparison.AlertCandidate{Kind: "price_increase", Change: decPtr("5.00")}
	big := comparison.AlertCandidate{Kind: "price_increase", Change: decPtr("15.00")}
	if Matches(small, rule) {
		t.Fatal("expected no match for change under threshold")
	}
	if !Matches(big, rule) {
		t.Fatal("expected match for change over threshold")
	}
}

func TestMatchesListingPausedOnlyForUnavailable(t *testing.T) {
	rule := models.AlertRule{RuleType: models.RuleTypeListingPaused, Enabled: true}
	if !Matches(comparison.AlertCandidate{Kind: "unavailable"}, rule) {
		t.Fatal("expected match for unavailable candidate")
	}
	if Matches(comparison.AlertCandidate{Kind: "removed"}, rule) {
		t.Fatal("expected no match for removed candidate under LISTING_PAUSED rule")
	}
}

func TestMatchesRespectsRuleScopedProductStatus(t *testing.T) {
	status := models.StatusRemoved
	rule := models.AlertRule{RuleType: models.RuleTypeListingRemoved, ProductStatus: &status, Enabled: true}
	if !Matches(comparison.AlertCandidate{Kind: "removed"}, rule) {
		t.Fatal("expected match")
	}
	if Matches(comparison.AlertCandidate{Kind: "unavailable"}, rule) {
		t.Fatal("expected no match for mismatched status filter")
	}
}

func TestMatchRulesSkipsDisabledRules(t *testing.T) {
	rule := models.AlertRule{RuleType: models.RuleTypeListingPaused, Enabled: false}
	matched := MatchRules(comparison.AlertCandidate{Kind: "unavailable"}, []models.AlertRule{rule})
	if len(matched) != 0 {
		t.Fatal("expected disabled rule to be skipped")
	}
}
