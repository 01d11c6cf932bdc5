package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iaros/marketwatch/internal/apperr"
	"github.com/iaros/marketwatch/internal/scrapepipeline"
)

// parseRequest mirrors internal/scraperclient.Request's wire shape — the
// Scraper Service side of the two-process parsing contract (spec.md §4,
// grounded on
// _examples/original_source/market_scraper/app/routes/routes_scraper.py's
// ScrapeRequest).
type parseRequest struct {
	URL         string     `json:"url"`
	ProductType string     `json:"product_type"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
}

// parseResponse mirrors internal/scraperclient.Response.
type parseResponse struct {
	Name         *string  `json:"name"`
	CurrentPrice float64  `json:"current_price"`
	OldPrice     *float64 `json:"old_price"`
	Thumbnail    *string  `json:"thumbnail"`
	FreeShipping bool     `json:"free_shipping"`
	Seller       *string  `json:"seller"`
	Shipping     *string  `json:"shipping"`
}

// NewScraperRouter builds the Scraper Service's own small gorilla/mux
// router, as opposed to the Alert Service's gin engine (NewRouter) —
// the mix of frameworks is deliberate, mirroring how the teacher routes
// some services with Gin and others with gorilla/mux rather than
// standardizing on one (SPEC_FULL.md §1 "HTTP framework").
//
// Grounded on
// _examples/original_source/market_scraper/app/routes/routes_scraper.py's
// POST /scraper/parse contract.
func NewScraperRouter(deps Dependencies, pipeline *scrapepipeline.Pipeline, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(scraperLoggingMiddleware(logger, deps.ServiceName))

	router.HandleFunc("/health", healthHandler(deps)).Methods(http.MethodGet)
	router.Handle("/metrics", metricsHandler()).Methods(http.MethodGet)
	router.HandleFunc("/admin/health/detailed", detailedHealthHandlerMux(deps)).Methods(http.MethodGet)
	router.HandleFunc("/scraper/parse", parseHandler(pipeline, logger)).Methods(http.MethodPost)

	return router
}

func healthHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": deps.ServiceName})
	}
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}

func detailedHealthHandlerMux(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"service":   deps.ServiceName,
			"timestamp": time.Now().UTC(),
			"uptime":    time.Since(startTime).String(),
		}

		healthy := true

		if deps.DB != nil {
			if err := deps.DB.HealthCheck(); err != nil {
				body["database"] = "unhealthy: " + err.Error()
				healthy = false
			} else {
				body["database"] = "healthy"
				body["database_stats"] = deps.DB.Stats()
			}
		}

		if deps.Redis != nil {
			if err := deps.Redis.Ping(); err != nil {
				body["redis"] = "unhealthy: " + err.Error()
				healthy = false
			} else {
				body["redis"] = "healthy"
			}
		}

		if len(deps.Heartbeats) > 0 {
			beats := map[string]string{}
			for label, hb := range deps.Heartbeats {
				age, err := hb.Age()
				if err != nil {
					beats[label] = "never recorded"
					continue
				}
				beats[label] = age.String()
			}
			body["heartbeats"] = beats
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, body)
	}
}

func parseHandler(pipeline *scrapepipeline.Pipeline, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req parseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		productType := scrapepipeline.ProductTypeMonitored
		if req.ProductType == string(scrapepipeline.ProductTypeCompetitor) {
			productType = scrapepipeline.ProductTypeCompetitor
		}

		sessionID := req.URL
		if req.UserID != nil {
			sessionID = req.UserID.String()
		}

		fields, err := pipeline.Fetch(r.Context(), sessionID, req.URL, productType)
		if err != nil {
			logger.Warn("scrape_parse_failed", zap.String("url", req.URL), zap.Error(err))
			writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, toParseResponse(fields))
	}
}

func toParseResponse(f scrapepipeline.Fields) parseResponse {
	var oldPrice *float64
	if f.OldPrice != nil {
		v, _ := f.OldPrice.Float64()
		oldPrice = &v
	}
	price, _ := f.CurrentPrice.Float64()
	return parseResponse{
		Name:         f.Name,
		CurrentPrice: price,
		OldPrice:     oldPrice,
		Thumbnail:    f.Thumbnail,
		FreeShipping: f.FreeShipping,
		Seller:       f.Seller,
		Shipping:     f.Shipping,
	}
}

func statusForError(err error) int {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		switch appErr.Code() {
		case apperr.InvalidInput, apperr.NotProductPage:
			return http.StatusBadRequest
		case apperr.Blocked, apperr.DependencyUnavailable, apperr.TransientRemote:
			return http.StatusServiceUnavailable
		case apperr.ParsingFailed:
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func scraperLoggingMiddleware(logger *zap.Logger, service string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Duration("duration", time.Since(start)),
				zap.String("service", service),
			)
		})
	}
}
