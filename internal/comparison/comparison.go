// Package comparison implements the Price Comparison & Alert Rule Engine's
// comparison half (spec.md §4.8): discrepancies between a monitored
// product and its competitors, and the raw alert candidates those
// discrepancies produce.
//
// Grounded on
// _examples/original_source/market_scraper/utils/comparator.py
// (compare_prices/calculate_discrepancies/detect_price_changes/detect_listing_status)
// and _examples/original_source/market_alert/app/services/services_comparison.py
// (run_price_comparison) for the metrics/status-tracking wrapper shape.
package comparison

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iaros/marketwatch/internal/metrics"
	"github.com/iaros/marketwatch/internal/models"
)

// Discrepancy captures one competitor's price relative to the monitored
// product, the target price, and the cheapest competitor.
type Discrepancy struct {
	CompetitorID      string
	Name              string
	Price             decimal.Decimal
	PctXTarget        *decimal.Decimal
	PctXMonitored     *decimal.Decimal
	DeltaXMinCompetitor decimal.Decimal
	DeltaXMonitored   decimal.Decimal
	OldPrice          *decimal.Decimal
	ChangeFromOld     *decimal.Decimal
	PctChangeFromOld  *decimal.Decimal
}

// AlertCandidate is a raw signal surfaced by the comparison pass, before
// the rule matcher (internal/rules) decides whether any configured
// AlertRule actually fires for it.
type AlertCandidate struct {
	CompetitorID   string
	Name           string
	Price          *decimal.Decimal
	Kind           string // "price_increase" | "price_decrease" | "unavailable" | "removed" | "below_target" | "product_unavailable" | "product_removed"
	Change         *decimal.Decimal
	PctChange      *decimal.Decimal
	PctBelowTarget *decimal.Decimal
}

// Result is the full output of one comparison run.
type Result struct {
	MonitoredPrice         decimal.Decimal
	TargetPrice            decimal.Decimal
	AverageCompetitorPrice *decimal.Decimal
	LowestCompetitor       *Discrepancy
	HighestCompetitor      *Discrepancy
	Discrepancies          []Discrepancy
	Alerts                 []AlertCandidate
}

func calculateDiscrepancy(c models.CompetitorProduct, monitoredPrice, targetPrice, minPrice, tolerance decimal.Decimal) Discrepancy {
	price := decimal.Zero
	if c.CurrentPrice != nil {
		price = *c.CurrentPrice
	}

	var pctXTarget *decimal.Decimal
	if targetPrice.GreaterThan(decimal.Zero) {
		v := price.Sub(targetPrice).Div(targetPrice).Mul(decimal.NewFromInt(100)).Round(2)
		pctXTarget = &v
	}

	var pctXMonitored *decimal.Decimal
	if monitoredPrice.GreaterThan(decimal.Zero) {
		v := price.Sub(monitoredPrice).Div(monitoredPrice).Mul(decimal.NewFromInt(100)).Round(2)
		pctXMonitored = &v
	}

	deltaXMin := roundTo(price.Sub(minPrice), tolerance)
	deltaXMonitored := roundTo(price.Sub(monitoredPrice), tolerance)

	var changeFromOld, pctChangeFromOld *decimal.Decimal
	if c.OldPrice != nil {
		cfo := roundTo(price.Sub(*c.OldPrice), tolerance)
		changeFromOld = &cfo
		if !c.OldPrice.IsZero() {
			pct := cfo.Div(*c.OldPrice).Mul(decimal.NewFromInt(100)).Round(2)
			pctChangeFromOld = &pct
		}
	}

	return Discrepancy{
		CompetitorID:        c.ID.String(),
		Name:                c.NameCompetitor,
		Price:               price,
		PctXTarget:          pctXTarget,
		PctXMonitored:       pctXMonitored,
		DeltaXMinCompetitor: deltaXMin,
		DeltaXMonitored:     deltaXMonitored,
		OldPrice:            c.OldPrice,
		ChangeFromOld:       changeFromOld,
		PctChangeFromOld:    pctChangeFromOld,
	}
}

// roundTo rounds v to the number of decimal places implied by tolerance
// (e.g. tolerance=0.01 rounds to 2 places), mirroring the Python
// .quantize(tolerance, ROUND_HALF_UP) calls.
func roundTo(v, tolerance decimal.Decimal) decimal.Decimal {
	places := -tolerance.Exponent()
	return v.Round(int32(places))
}

func detectPriceChange(c models.CompetitorProduct, tolerance, changeThreshold decimal.Decimal) *AlertCandidate {
	if c.OldPrice == nil || c.CurrentPrice == nil {
		return nil
	}
	diff := roundTo(c.CurrentPrice.Sub(*c.OldPrice), tolerance)
	var pctChange *decimal.Decimal
	if !c.OldPrice.IsZero() {
		p := diff.Div(*c.OldPrice).Mul(decimal.NewFromInt(100)).Round(2)
		pctChange = &p
	}
	if diff.Abs().LessThan(changeThreshold) {
		return nil
	}
	kind := "price_decrease"
	if diff.GreaterThan(decimal.Zero) {
		kind = "price_increase"
	}
	return &AlertCandidate{
		CompetitorID: c.ID.String(),
		Name:         c.NameCompetitor,
		Price:        c.CurrentPrice,
		Kind:         kind,
		Change:       &diff,
		PctChange:    pctChange,
	}
}

func detectListingStatus(c models.CompetitorProduct) *AlertCandidate {
	switch c.Status {
	case models.StatusUnavailable:
		return &AlertCandidate{CompetitorID: c.ID.String(), Name: c.NameCompetitor, Kind: "unavailable"}
	case models.StatusRemoved:
		return &AlertCandidate{CompetitorID: c.ID.String(), Name: c.NameCompetitor, Kind: "removed"}
	default:
		return nil
	}
}

// Compare runs the comparison algorithm described above, returning an
// empty (non-nil) Result when there are no competitors with a valid price.
func Compare(monitored models.MonitoredProduct, competitors []models.CompetitorProduct, tolerance, priceChangeThreshold decimal.Decimal) Result {
	monitoredPrice := monitored.CurrentPrice
	targetPrice := monitored.TargetPrice

	empty := Result{MonitoredPrice: monitoredPrice, TargetPrice: targetPrice}

	valid := make([]models.CompetitorProduct, 0, len(competitors))
	for _, c := range competitors {
		if c.CurrentPrice != nil {
			valid = append(valid, c)
		}
	}
	if len(valid) == 0 {
		return empty
	}

	minPrice, maxPrice := *valid[0].CurrentPrice, *valid[0].CurrentPrice
	sum := decimal.Zero
	lowestIdx, highestIdx := 0, 0
	for i, c := range valid {
		p := *c.CurrentPrice
		sum = sum.Add(p)
		if p.LessThan(minPrice) {
			minPrice = p
			lowestIdx = i
		}
		if p.GreaterThan(maxPrice) {
			maxPrice = p
			highestIdx = i
		}
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(valid)))).Round(int32(-tolerance.Exponent()))

	changeThreshold := priceChangeThreshold
	if changeThreshold.IsZero() {
		changeThreshold = tolerance
	}

	discrepancies := make([]Discrepancy, 0, len(valid))
	alerts := make([]AlertCandidate, 0)

	for _, c := range valid {
		price := *c.CurrentPrice
		discrepancies = append(discrepancies, calculateDiscrepancy(c, monitoredPrice, targetPrice, minPrice, tolerance))

		if alert := detectListingStatus(c); alert != nil {
			alerts = append(alerts, *alert)
		}
		if alert := detectPriceChange(c, tolerance, changeThreshold); alert != nil {
			alerts = append(alerts, *alert)
		}

		if targetPrice.GreaterThan(decimal.Zero) && price.LessThan(targetPrice.Sub(tolerance)) {
			pctBelow := targetPrice.Sub(price).Div(targetPrice).Mul(decimal.NewFromInt(100)).Round(2)
			p := price
			alerts = append(alerts, AlertCandidate{
				CompetitorID:   c.ID.String(),
				Name:           c.NameCompetitor,
				Price:          &p,
				Kind:           "below_target",
				PctBelowTarget: &pctBelow,
			})
		}
	}

	switch monitored.Status {
	case models.StatusUnavailable:
		alerts = append(alerts, AlertCandidate{Kind: "product_unavailable"})
	case models.StatusRemoved:
		alerts = append(alerts, AlertCandidate{Kind: "product_removed"})
	}

	lowest := calculateDiscrepancy(valid[lowestIdx], monitoredPrice, targetPrice, minPrice, tolerance)
	highest := calculateDiscrepancy(valid[highestIdx], monitoredPrice, targetPrice, minPrice, tolerance)

	return Result{
		MonitoredPrice:         monitoredPrice,
		TargetPrice:            targetPrice,
		AverageCompetitorPrice: &avg,
		LowestCompetitor:       &lowest,
		HighestCompetitor:      &highest,
		Discrepancies:          discrepancies,
		Alerts:                 alerts,
	}
}

// Run wraps Compare with the duration/status/alert-count metrics
// emitted by services_comparison.py's run_price_comparison.
func Run(ctx context.Context, monitored models.MonitoredProduct, competitors []models.CompetitorProduct, tolerance, priceChangeThreshold decimal.Decimal) Result {
	start := time.Now()
	status := "success"
	defer func() {
		metrics.PriceComparisonDurationSeconds.Observe(time.Since(start).Seconds())
		metrics.PriceComparisonsTotal.WithLabelValues(status).Inc()
	}()

	result := Compare(monitored, competitors, tolerance, priceChangeThreshold)
	metrics.PriceAlertsTotal.Add(float64(len(result.Alerts)))
	return result
}
