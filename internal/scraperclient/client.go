// Package scraperclient is the Alert Service's HTTP client for the
// Scraper Service's parsing contract (spec.md §4, two-process split).
//
// Grounded on _examples/original_source/market_alert/alert_app/utils/scraper_client.py's
// ScraperClient.parse (resty taking the place of requests.post) and the
// response shape of _examples/original_source/market_scraper/app/routes/routes_scraper.py's
// POST /scraper/parse (ScrapeRequest/ScrapeResponse).
package scraperclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/iaros/marketwatch/internal/apperr"
	"github.com/iaros/marketwatch/internal/circuitbreaker"
)

// ProductType selects which persisted shape the scraper should parse for.
type ProductType string

const (
	ProductTypeMonitored  ProductType = "monitored"
	ProductTypeCompetitor ProductType = "competitor"
)

// Request mirrors routes_scraper.py's ScrapeRequest.
type Request struct {
	URL         string      `json:"url"`
	ProductType ProductType `json:"product_type"`
	UserID      *uuid.UUID  `json:"user_id,omitempty"`
}

// Response mirrors routes_scraper.py's ScrapeResponse.
type Response struct {
	Name         *string  `json:"name"`
	CurrentPrice float64  `json:"current_price"`
	OldPrice     *float64 `json:"old_price"`
	Thumbnail    *string  `json:"thumbnail"`
	FreeShipping bool     `json:"free_shipping"`
	Seller       *string  `json:"seller"`
	Shipping     *string  `json:"shipping"`
}

// Client calls the Scraper Service's POST /scraper/parse endpoint.
//
// local is a process-local gobreaker in front of this one outbound call,
// complementing (not replacing) the Redis-backed multi-level Breaker the
// worker pool already checks before dispatch: local trips fast on this
// process's own recent call history without a Redis round trip, which
// matters most right after the Scraper Service itself restarts.
type Client struct {
	http    *resty.Client
	baseURL string
	local   *gobreaker.CircuitBreaker
}

// New constructs a Client against baseURL (config.ScraperServiceURL) with
// the given request timeout (config.ScraperTimeout).
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    resty.New().SetTimeout(timeout),
		local:   circuitbreaker.NewLocal("scraper_client", 5),
	}
}

// Parse calls POST /scraper/parse for url, returning the structured
// fields the scraper extracted. Non-2xx responses and network failures
// surface as an *apperr.Error tagged TransientRemote so the worker pool's
// retry policy applies (spec.md §4.3/§7).
func (c *Client) Parse(ctx context.Context, url string, productType ProductType, userID *uuid.UUID) (*Response, error) {
	result, err := c.local.Execute(func() (interface{}, error) {
		var result Response
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(Request{URL: url, ProductType: productType, UserID: userID}).
			SetResult(&result).
			Post(c.baseURL + "/scraper/parse")
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("scraper service returned status %d", resp.StatusCode())
		}
		return &result, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return nil, apperr.New(apperr.TransientRemote, "scraper client circuit open")
		}
		return nil, apperr.Wrap(apperr.TransientRemote, "scraper service request failed", err)
	}
	return result.(*Response), nil
}
