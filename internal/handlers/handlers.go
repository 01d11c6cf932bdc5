// Package handlers implements the Alert Service's queue.Handler bodies:
// the per-task logic the Work-Dispatch Pipeline's worker pool (spec.md
// §4.3 step 6) actually runs for "fetch_monitored_product" and
// "fetch_competitor_product" tasks. It is the one place in the module
// that wires scraperclient, storage, comparison, and notify together —
// those packages themselves avoid importing one another (internal/queue's
// own doc comment: callbacks "to avoid a dependency cycle" — this package
// sits above all of them in the layering and is where that cycle is
// allowed to resolve).
//
// Grounded on
// _examples/original_source/market_alert/alert_app/tasks/monitor_tasks.py's
// fetch_and_update_product/compare_prices_task pairing: fetch →
// persist → compare → dispatch alerts, one call chain per task.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iaros/marketwatch/internal/apperr"
	"github.com/iaros/marketwatch/internal/comparison"
	"github.com/iaros/marketwatch/internal/models"
	"github.com/iaros/marketwatch/internal/notify"
	"github.com/iaros/marketwatch/internal/queue"
	"github.com/iaros/marketwatch/internal/scheduler"
	"github.com/iaros/marketwatch/internal/scraperclient"
)

// scrapePayload is the JSON shape internal/dispatcher enqueues
// (dispatcher.scrapePayload is unexported, so this is a deliberate
// field-for-field mirror rather than a shared type — see the package
// doc on why queue producers and queue consumers don't import each
// other directly).
type scrapePayload struct {
	URL          string           `json:"url"`
	MonitoredID  uuid.UUID        `json:"monitored_id"`
	CompetitorID *uuid.UUID       `json:"competitor_id,omitempty"`
	UserID       *uuid.UUID       `json:"user_id,omitempty"`
	Name         string           `json:"name,omitempty"`
	TargetPrice  *decimal.Decimal `json:"target_price,omitempty"`
}

// Store is the persistence surface the handlers need, narrowed from
// internal/storage.Store the same way internal/dispatcher narrows it.
type Store interface {
	MonitoredProductByID(ctx context.Context, id uuid.UUID) (*models.MonitoredProduct, error)
	CompetitorsByMonitoredID(ctx context.Context, monitoredID uuid.UUID) ([]models.CompetitorProduct, error)
	UpdateMonitoredProductPrice(ctx context.Context, id uuid.UUID, newPrice decimal.Decimal, name string, status models.ProductStatus) error
	UpdateCompetitorPrice(ctx context.Context, id uuid.UUID, newPrice *decimal.Decimal, status models.ProductStatus) error
	CreatePriceComparison(ctx context.Context, comparison models.PriceComparison) error
	CreateScrapingError(ctx context.Context, scrapeErr models.ScrapingError) error
}

// ScraperClient is the narrow surface of internal/scraperclient.Client
// the handlers call.
type ScraperClient interface {
	Parse(ctx context.Context, url string, productType scraperclient.ProductType, userID *uuid.UUID) (*scraperclient.Response, error)
}

// Handlers owns every collaborator a scraping task's body touches.
// Recipient is a single configured delivery target (e.g. a Slack
// webhook URL) — spec.md §1 excludes real per-user account/notification
// preference storage, so every dispatched alert in this build fans out
// to the one operator-configured recipient.
type Handlers struct {
	client               ScraperClient
	store                Store
	scheduler            *scheduler.Scheduler
	dispatcher           *notify.Dispatcher
	recipient            string
	tolerance            decimal.Decimal
	priceChangeThreshold decimal.Decimal
	logger               *zap.Logger
}

// New constructs a Handlers.
func New(
	client ScraperClient,
	store Store,
	sched *scheduler.Scheduler,
	dispatcher *notify.Dispatcher,
	recipient string,
	tolerance, priceChangeThreshold decimal.Decimal,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		client:               client,
		store:                store,
		scheduler:            sched,
		dispatcher:           dispatcher,
		recipient:            recipient,
		tolerance:            tolerance,
		priceChangeThreshold: priceChangeThreshold,
		logger:               logger,
	}
}

// Register returns the task-name → Handler map cmd/alertservice wires
// into queue.NewPool.
func (h *Handlers) Register() map[string]queue.Handler {
	return map[string]queue.Handler{
		"fetch_monitored_product":  h.FetchMonitoredProduct,
		"fetch_competitor_product": h.FetchCompetitorProduct,
	}
}

// FetchMonitoredProduct is the "fetch_monitored_product" task body: call
// the Scraper Service, persist the fresh price, then re-run the
// comparison for this monitored product (spec.md §4.3 step 6, grounded on
// monitor_tasks.py's fetch_and_update_product for a monitored listing).
func (h *Handlers) FetchMonitoredProduct(ctx context.Context, task queue.Task) error {
	var payload scrapePayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "decode scrape payload", err)
	}

	resp, err := h.client.Parse(ctx, payload.URL, scraperclient.ProductTypeMonitored, payload.UserID)
	if err != nil {
		h.recordScrapingError(ctx, payload.MonitoredID, payload.URL, "fetch_monitored_product", err)
		return err
	}

	price := decimal.NewFromFloat(resp.CurrentPrice)
	name := payload.Name
	if resp.Name != nil && *resp.Name != "" {
		name = *resp.Name
	}
	if err := h.store.UpdateMonitoredProductPrice(ctx, payload.MonitoredID, price, name, models.StatusActive); err != nil {
		return apperr.Wrap(apperr.DependencyUnavailable, "persist monitored product price", err)
	}

	return h.compareAndNotify(ctx, payload.MonitoredID)
}

// FetchCompetitorProduct is the "fetch_competitor_product" task body:
// call the Scraper Service for one competitor listing, persist its fresh
// price/status, then re-run the comparison for the owning monitored
// product (grounded on monitor_tasks.py's fetch_and_update_product for a
// competitor listing).
func (h *Handlers) FetchCompetitorProduct(ctx context.Context, task queue.Task) error {
	var payload scrapePayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "decode scrape payload", err)
	}
	if payload.CompetitorID == nil {
		return apperr.New(apperr.InvalidInput, "fetch_competitor_product payload missing competitor_id")
	}

	resp, err := h.client.Parse(ctx, payload.URL, scraperclient.ProductTypeCompetitor, payload.UserID)
	if err != nil {
		h.recordScrapingError(ctx, payload.MonitoredID, payload.URL, "fetch_competitor_product", err)
		return err
	}

	status := models.StatusAvailable
	if resp.CurrentPrice <= 0 {
		status = models.StatusUnavailable
	}
	price := decimal.NewFromFloat(resp.CurrentPrice)
	if err := h.store.UpdateCompetitorPrice(ctx, *payload.CompetitorID, &price, status); err != nil {
		return apperr.Wrap(apperr.DependencyUnavailable, "persist competitor price", err)
	}

	return h.compareAndNotify(ctx, payload.MonitoredID)
}

// CompareAndNotify re-runs the comparison/alert pipeline for monitoredID
// without a fresh scrape, for callers that already touched its price via
// some other path (cmd/alertservice wires this as the dispatcher's
// CompareTrigger for a competitor-recheck batch).
func (h *Handlers) CompareAndNotify(ctx context.Context, monitoredID uuid.UUID) error {
	return h.compareAndNotify(ctx, monitoredID)
}

// compareAndNotify reloads a monitored product and its competitors,
// re-runs the comparison engine, persists the snapshot, advances the
// adaptive recheck schedule, and dispatches any alert candidates —
// services_comparison.py's run_price_comparison followed immediately by
// manager.py's dispatch_price_alerts.
func (h *Handlers) compareAndNotify(ctx context.Context, monitoredID uuid.UUID) error {
	monitored, err := h.store.MonitoredProductByID(ctx, monitoredID)
	if err != nil {
		return apperr.Wrap(apperr.DependencyUnavailable, "load monitored product", err)
	}
	competitors, err := h.store.CompetitorsByMonitoredID(ctx, monitoredID)
	if err != nil {
		return apperr.Wrap(apperr.DependencyUnavailable, "load competitor products", err)
	}

	result := comparison.Run(ctx, *monitored, competitors, h.tolerance, h.priceChangeThreshold)

	resultJSON, err := json.Marshal(result)
	if err != nil {
		h.logger.Warn("comparison_encode_failed", zap.Error(err))
	} else if err := h.store.CreatePriceComparison(ctx, models.PriceComparison{
		ID:          uuid.New(),
		MonitoredID: monitoredID,
		Timestamp:   time.Now().UTC(),
		Result:      resultJSON,
	}); err != nil {
		h.logger.Warn("comparison_persist_failed", zap.Error(err))
	}

	if h.scheduler != nil {
		var lowest *decimal.Decimal
		if result.LowestCompetitor != nil {
			price := result.LowestCompetitor.Price
			lowest = &price
		}
		h.scheduler.RecordResult(ctx, monitoredID.String(), true)
		h.scheduler.ScheduleNext(ctx, scheduler.Product{
			ID:          monitoredID.String(),
			TargetPrice: monitored.TargetPrice,
		}, []scheduler.Comparison{{
			HasAlerts:              len(result.Alerts) > 0,
			LowestCompetitorPrice:  lowest,
			AverageCompetitorPrice: result.AverageCompetitorPrice,
		}})
	}

	if h.dispatcher == nil || len(result.Alerts) == 0 {
		return nil
	}
	return h.dispatcher.DispatchPriceAlerts(ctx, h.recipient, *monitored, result.Alerts)
}

func (h *Handlers) recordScrapingError(ctx context.Context, monitoredID uuid.UUID, url, stage string, err error) {
	if h.scheduler != nil {
		h.scheduler.RecordResult(ctx, monitoredID.String(), false)
	}

	errType := models.ErrorHTTP
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		switch appErr.Code() {
		case apperr.ParsingFailed:
			errType = models.ErrorParsing
		case apperr.NotProductPage:
			errType = models.ErrorMissing
		case apperr.TransientRemote:
			errType = models.ErrorTimeout
		}
	}

	scrapeErr := models.ScrapingError{
		ID:        uuid.New(),
		ProductID: monitoredID,
		URL:       url,
		Stage:     stage,
		ErrorType: errType,
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	}
	if persistErr := h.store.CreateScrapingError(ctx, scrapeErr); persistErr != nil {
		h.logger.Warn("scraping_error_persist_failed", zap.Error(persistErr))
	}
}
