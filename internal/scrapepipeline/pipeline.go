// Package scrapepipeline implements the Scraper Service's fetch path:
// Robots/Identity → Throttle Stack → Content Cache → HTML Fetch → Parser
// (spec.md §4's data-flow diagram, "leaves first"). Persistence,
// comparison, and notification happen one layer up, in the Alert
// Service's queue handlers — this package only gets from a URL to
// structured product fields.
//
// Grounded on
// _examples/original_source/market_scraper/app/services/services_scraper_common.py's
// _scrape_product_common: the same suspend→circuit→rate-limit→cache→
// fetch→block-recovery→parse sequence, collapsed from its Playwright/
// asyncio shape into a single cooperatively-sequential Go function per
// spec.md §7 "one task is cooperatively single-threaded end-to-end".
package scrapepipeline

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iaros/marketwatch/internal/apperr"
	"github.com/iaros/marketwatch/internal/audit"
	"github.com/iaros/marketwatch/internal/blockrecovery"
	"github.com/iaros/marketwatch/internal/cache"
	"github.com/iaros/marketwatch/internal/canonical"
	"github.com/iaros/marketwatch/internal/circuitbreaker"
	"github.com/iaros/marketwatch/internal/identity"
	"github.com/iaros/marketwatch/internal/metrics"
	"github.com/iaros/marketwatch/internal/ratelimit"
	"github.com/iaros/marketwatch/internal/throttle"
)

// ProductType mirrors the scraper HTTP contract's product_type field
// (spec.md §6 "Scraper HTTP contract").
type ProductType string

const (
	ProductTypeMonitored  ProductType = "monitored"
	ProductTypeCompetitor ProductType = "competitor"
)

// Fields is the structured result of a successful scrape, matching the
// scraper HTTP contract's response shape field-for-field.
type Fields struct {
	Name         *string          `json:"name,omitempty"`
	CurrentPrice decimal.Decimal  `json:"current_price"`
	OldPrice     *decimal.Decimal `json:"old_price,omitempty"`
	Thumbnail    *string          `json:"thumbnail,omitempty"`
	FreeShipping bool             `json:"free_shipping"`
	Seller       *string          `json:"seller,omitempty"`
	Shipping     *string          `json:"shipping,omitempty"`
}

// Parser extracts structured Fields from a fetched HTML document. The
// extraction strategy itself (selectors, regexes, site-specific
// heuristics) is an explicit spec.md §1 Non-goal — "tangential to the
// systems core" — so this package only defines the seam; callers inject
// a concrete implementation. cmd/scraperservice wires a deliberately
// minimal placeholder (see internal/scrapepipeline/stubparser.go).
type Parser interface {
	Parse(html string) (Fields, error)
}

// HTTPDoer is the narrow *http.Client surface the pipeline needs,
// allowing tests to substitute a fake transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Suspender reports the global scraping-suspend flag.
type Suspender interface {
	IsGloballySuspended(ctx context.Context) (bool, error)
}

// Pipeline wires every fetch-path dependency of spec.md §4 into one
// sequential fetch operation.
type Pipeline struct {
	http      HTTPDoer
	cache     *cache.Manager
	uas       *identity.UserAgentManager
	robots    *identity.RobotsFetcher
	delay     *throttle.HumanizedDelay
	bucket    *throttle.TokenBucket
	breaker   *circuitbreaker.Breaker
	recovery  *blockrecovery.Manager
	audit     *audit.Logger
	parser    Parser
	suspender Suspender
	limiters  map[ProductType]*ratelimit.Limiter
	logger    *zap.Logger
}

// New constructs a Pipeline. limiters maps product type to its
// sliding-window fetch limiter (spec.md §5: monitored 100/h, competitor
// 200/h); a nil map skips rate limiting entirely.
func New(
	httpDoer HTTPDoer,
	cacheManager *cache.Manager,
	uas *identity.UserAgentManager,
	robots *identity.RobotsFetcher,
	delay *throttle.HumanizedDelay,
	bucket *throttle.TokenBucket,
	breaker *circuitbreaker.Breaker,
	recovery *blockrecovery.Manager,
	auditLogger *audit.Logger,
	parser Parser,
	suspender Suspender,
	limiters map[ProductType]*ratelimit.Limiter,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		http:      httpDoer,
		cache:     cacheManager,
		uas:       uas,
		robots:    robots,
		delay:     delay,
		bucket:    bucket,
		breaker:   breaker,
		recovery:  recovery,
		audit:     auditLogger,
		parser:    parser,
		suspender: suspender,
		limiters:  limiters,
		logger:    logger,
	}
}

func circuitKey(sessionID, url string) string {
	return fmt.Sprintf("user:%s:%s", sessionID, url)
}

// Fetch runs the full fetch-parse sequence for rawURL, returning
// structured Fields on success. sessionID scopes UA rotation, cookie
// jars, and the circuit-breaker key (spec.md §4.5/§4.6 "per-session"/
// "per-key").
func (p *Pipeline) Fetch(ctx context.Context, sessionID, rawURL string, productType ProductType) (Fields, error) {
	host := hostOf(rawURL)

	if p.suspender != nil {
		suspended, err := p.suspender.IsGloballySuspended(ctx)
		if err != nil {
			p.logger.Warn("suspend_check_failed", zap.Error(err))
		}
		if suspended {
			metrics.ScraperURLStatusTotal.WithLabelValues(host, "failure").Inc()
			return Fields{}, apperr.New(apperr.DependencyUnavailable, "scraping globally suspended")
		}
	}

	key := circuitKey(sessionID, rawURL)
	if p.breaker != nil {
		allowed, err := p.breaker.AllowRequest(ctx, key)
		if err != nil {
			p.logger.Warn("circuit_check_failed", zap.Error(err))
		}
		if !allowed {
			metrics.ScraperURLStatusTotal.WithLabelValues(host, "failure").Inc()
			return Fields{}, apperr.New(apperr.DependencyUnavailable, "circuit open for "+key)
		}
	}

	if limiter, ok := p.limiters[productType]; ok {
		result, err := limiter.Allow(ctx, string(productType))
		if err != nil {
			p.logger.Warn("rate_limit_check_failed", zap.Error(err))
		} else if !result.Allowed {
			metrics.ScraperURLStatusTotal.WithLabelValues(host, "failure").Inc()
			return Fields{}, apperr.New(apperr.DependencyUnavailable, "fetch rate limited for "+string(productType))
		}
	}

	if entry, hit := p.cache.Get(ctx, rawURL); hit {
		fields, err := decodeCachedFields(entry.Data)
		if err == nil {
			p.auditScrape(audit.StageCache, rawURL, nil, "cache hit")
			metrics.ScraperURLStatusTotal.WithLabelValues(host, "success").Inc()
			return fields, nil
		}
	}

	if !canonical.IsProductURL(rawURL) {
		p.auditScrape(audit.StageError, rawURL, nil, "not_product_page")
		metrics.ScraperURLStatusTotal.WithLabelValues(host, "failure").Inc()
		return Fields{}, apperr.New(apperr.NotProductPage, "page is not a recognized product page")
	}

	p.applyRobotsJitter(ctx, rawURL)
	if p.delay != nil {
		p.delay.Delay("")
	}
	if p.bucket != nil {
		p.bucket.Wait(ctx)
	}

	html, prevSeverity, err := p.fetchWithRecovery(ctx, sessionID, rawURL, key, 0)
	if err != nil {
		if p.breaker != nil {
			p.breaker.RecordFailure(ctx, key)
		}
		p.auditScrape(audit.StageError, rawURL, nil, err.Error())
		metrics.ScraperURLStatusTotal.WithLabelValues(host, "failure").Inc()
		return Fields{}, apperr.Wrap(apperr.TransientRemote, "fetch failed", err)
	}
	if p.delay != nil {
		p.delay.Delay(html)
	}

	fields, err := p.parser.Parse(html)
	if err != nil {
		if blockrecovery.Detect(blockrecovery.Response{Body: html}) == blockrecovery.BlockCaptcha {
			outcome := p.recovery.Handle(ctx, sessionID, rawURL, blockrecovery.BlockCaptcha, prevSeverity)
			if outcome.BrowserRecovered {
				p.auditScrape(audit.StageCaptchaRecovered, rawURL, nil, "")
				fields, err = p.parser.Parse(outcome.BrowserBody)
			}
		}
		if err != nil {
			if p.breaker != nil {
				p.breaker.RecordFailure(ctx, key)
			}
			p.auditScrape(audit.StageError, rawURL, nil, err.Error())
			metrics.ScraperURLStatusTotal.WithLabelValues(host, "failure").Inc()
			return Fields{}, apperr.Wrap(apperr.ParsingFailed, "could not extract product fields", err)
		}
	}
	p.auditScrape(audit.StageParser, rawURL, fields, "")

	if p.breaker != nil {
		p.breaker.RecordSuccess(ctx, key)
	}
	if data, encodeErr := encodeFields(fields); encodeErr == nil {
		if err := p.cache.Set(ctx, rawURL, data, html, ""); err != nil {
			p.logger.Warn("cache_set_failed", zap.Error(err))
		}
	}
	metrics.ScraperURLStatusTotal.WithLabelValues(host, "success").Inc()
	return fields, nil
}

// fetchWithRecovery performs the GET and, on failure or a detected
// block, invokes blockrecovery once. It returns the fetched (or
// recovered) HTML and the severity reached, so the caller can escalate
// further if the parser itself later reports a captcha page.
func (p *Pipeline) fetchWithRecovery(ctx context.Context, sessionID, rawURL, key string, prevSeverity int) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", prevSeverity, err
	}
	req.Header.Set("User-Agent", p.uas.Current(sessionID))

	resp, err := p.http.Do(req)
	if err != nil {
		outcome := p.recovery.Handle(ctx, sessionID, rawURL, blockrecovery.BlockHTTP429, prevSeverity)
		if outcome.BrowserRecovered {
			p.auditScrape(audit.StageBlockRecovered, rawURL, nil, "")
			return outcome.BrowserBody, outcome.Severity, nil
		}
		return "", outcome.Severity, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", prevSeverity, err
	}
	html := string(body)

	blockType := blockrecovery.Detect(blockrecovery.FromHTTPResponse(resp, html))
	if blockType == blockrecovery.BlockNone {
		p.auditScrape(audit.StageGet, rawURL, nil, "")
		return html, prevSeverity, nil
	}

	outcome := p.recovery.Handle(ctx, sessionID, rawURL, blockType, prevSeverity)
	if outcome.BrowserRecovered {
		p.auditScrape(audit.StageBlockRecovered, rawURL, nil, "")
		return outcome.BrowserBody, outcome.Severity, nil
	}
	return "", outcome.Severity, fmt.Errorf("blocked: %v", blockType)
}

func (p *Pipeline) applyRobotsJitter(ctx context.Context, rawURL string) {
	if p.robots == nil {
		return
	}
	content, err := p.robots.Fetch(ctx, rawURL)
	if err != nil {
		return
	}
	directives := identity.ParseCrawlDelay(content, "*")
	if !directives.HasDelay {
		return
	}
	jmin, jmax := identity.JitterRangeForDelay(directives.CrawlDelay)
	wait := jmin
	if span := jmax - jmin; span > 0 {
		wait += time.Duration(rand.Int63n(int64(span)))
	}
	time.Sleep(wait)
}

func (p *Pipeline) auditScrape(stage audit.Stage, url string, details interface{}, errMsg string) {
	if p.audit == nil {
		return
	}
	p.audit.Scrape(stage, url, nil, nil, details, errMsg)
}

func hostOf(rawURL string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}
