package comparison

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iaros/marketwatch/internal/models"
)

func price(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func TestCompareEmptyWhenNoCompetitors(t *testing.T) {
	monitored := models.MonitoredProduct{CurrentPrice: decimal.RequireFromString("100.00"), TargetPrice: decimal.RequireFromString("90.00")}
	result := Compare(monitored, nil, decimal.RequireFromString("0.01"), decimal.RequireFromString("0.01"))
	if result.AverageCompetitorPrice != nil {
		t.Fatal("expected nil average with no competitors")
	}
	if len(result.Discrepancies) != 0 || len(result.Alerts) != 0 {
		t.Fatal("expected no discrepancies/alerts with no competitors")
	}
}

func TestCompareBelowTargetGeneratesAlert(t *testing.T) {
	monitored := models.MonitoredProduct{CurrentPrice: decimal.RequireFromString("100.00"), TargetPrice: decimal.RequireFromString("90.00")}
	competitors := []models.CompetitorProduct{
		{ID: uuid.New(), NameCompetitor: "c1", CurrentPrice: price("80.00"), Status: models.StatusActive},
	}
	result := Compare(monitored, competitors, decimal.RequireFromString("0.01"), decimal.RequireFromString("0.01"))

	found := false
	for _, a := range result.Alerts {
		if a.Kind == "below_target" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a below_target alert for a competitor priced under target")
	}
}

func TestCompareDetectsSignificantPriceIncrease(t *testing.T) {
	monitored := models.MonitoredProduct{CurrentPrice: decimal.RequireFromString("100.00"), TargetPrice: decimal.RequireFromString("90.00")}
	competitors := []models.CompetitorProduct{
		{ID: uuid.New(), NameCompetitor: "c1", CurrentPrice: price("120.00"), OldPrice: price("100.00"), Status: models.StatusActive},
	}
	result := Compare(monitored, competitors, decimal.RequireFromString("0.01"), decimal.RequireFromString("0.01"))

	found := false
	for _, a := range result.Alerts {
		if a.Kind == "price_increase" {
			found = true
			if a.Change == nil || !a.Change.Equal(decimal.RequireFromString("20.00")) {
				t.Fatalf("expected change of 20.00, got %v", a.Change)
			}
		}
	}
	if !found {
		t.Fatal("expected a price_increase alert")
	}
}

func TestCompareDoesNotAlertBelowChangeThreshold(t *testing.T) {
	monitored := models.MonitoredProduct{CurrentPrice: decimal.RequireFromString("100.00"), TargetPrice: decimal.RequireFromString("90.00")}
	competitors := []models.CompetitorProduct{
		{ID: uuid.New(), NameCompetitor: "c1", CurrentPrice: price("100.005"), OldPrice: price("100.00"), Status: models.StatusActive},
	}
	result := Compare(monitored, competitors, decimal.RequireFromString("0.01"), decimal.RequireFromString("1.00"))

	for _, a := range result.Alerts {
		if a.Kind == "price_increase" || a.Kind == "price_decrease" {
			t.Fatalf("expected no price-change alert below threshold, got %v", a)
		}
	}
}

func TestCompareFlagsRemovedListing(t *testing.T) {
	monitored := models.MonitoredProduct{CurrentPrice: decimal.RequireFromString("100.00"), TargetPrice: decimal.RequireFromString("90.00")}
	competitors := []models.CompetitorProduct{
		{ID: uuid.New(), NameCompetitor: "c1", CurrentPrice: price("80.00"), Status: models.StatusRemoved},
	}
	result := Compare(monitored, competitors, decimal.RequireFromString("0.01"), decimal.RequireFromString("0.01"))

	found := false
	for _, a := range result.Alerts {
		if a.Kind == "removed" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a removed alert")
	}
}

func TestCompareLowestAndHighestCompetitor(t *testing.T) {
	monitored := models.MonitoredProduct{CurrentPrice: decimal.RequireFromString("100.00"), TargetPrice: decimal.RequireFromString("90.00")}
	competitors := []models.CompetitorProduct{
		{ID: uuid.New(), NameCompetitor: "cheap", CurrentPrice: price("70.00"), Status: models.StatusActive},
		{ID: uuid.New(), NameCompetitor: "pricey", CurrentPrice: price("130.00"), Status: models.StatusActive},
	}
	result := Compare(monitored, competitors, decimal.RequireFromString("0.01"), decimal.RequireFromString("0.01"))

	if result.LowestCompetitor == nil || result.LowestCompetitor.Name != "cheap" {
		t.Fatalf("expected lowest=cheap, got %+v", result.LowestCompetitor)
	}
	if result.HighestCompetitor == nil || result.HighestCompetitor.Name != "pricey" {
		t.Fatalf("expected highest=pricey, got %+v", result.HighestCompetitor)
	}
}
