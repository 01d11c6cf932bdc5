package blockrecovery

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iaros/marketwatch/internal/identity"
	"github.com/iaros/marketwatch/internal/kv"
	"github.com/iaros/marketwatch/internal/metrics"
	"github.com/iaros/marketwatch/internal/throttle"
)

// BrowserFallback performs a headless-browser refetch of target when a
// severe block (403/captcha) is detected. spec.md §4.6 treats this as
// optional infrastructure; callers that have no browser backend wire nil.
type BrowserFallback interface {
	Refetch(ctx context.Context, target string) (Response, error)
}

// Manager implements the severity-escalating recovery state machine of
// spec.md §4.6, grounded on
// _examples/original_source/market_scraper/app/utils/block_recovery.py's
// BlockRecoveryManager.handle_block.
type Manager struct {
	redis   redis.Cmdable
	uas     *identity.UserAgentManager
	cookies *identity.CookieManager
	delay   *throttle.HumanizedDelay
	browser BrowserFallback
	logger  *zap.Logger

	suspensionSteps []time.Duration
	browserTimeout  time.Duration
}

// New constructs a recovery Manager. browser may be nil to skip the
// headless-browser fallback stage entirely.
func New(
	client redis.Cmdable,
	uas *identity.UserAgentManager,
	cookies *identity.CookieManager,
	delay *throttle.HumanizedDelay,
	browser BrowserFallback,
	suspensionSteps []time.Duration,
	browserTimeout time.Duration,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		redis:           client,
		uas:             uas,
		cookies:         cookies,
		delay:           delay,
		browser:         browser,
		logger:          logger,
		suspensionSteps: suspensionSteps,
		browserTimeout:  browserTimeout,
	}
}

// Outcome reports what the recovery pass did for a block.
type Outcome struct {
	Severity        int
	NewUserAgent    string
	CookiesReset    bool
	DelayProlonged  float64
	BrowserAttempted bool
	BrowserRecovered bool
	BrowserBody      string
	GloballySuspended bool
	SuspendDuration  time.Duration
}

// Handle reacts to a detected block on behalf of sessionID/target, per the
// step list of spec.md §4.6: rotate the user agent, reset cookies, prolong
// the humanized delay by a fixed 1.5x, then for 403/captcha optionally
// retry via a headless-browser fallback. Severity is
// max(level_of(bt), prevSeverity+1) — it climbs by at least one on every
// call regardless of bt's own level, matching block_recovery.py's
// `self._severity = max(level, self._severity + 1)`. Tracking prevSeverity
// across calls is the CALLER's responsibility, mirroring that instance
// state.
func (m *Manager) Handle(ctx context.Context, sessionID, target string, bt BlockType, prevSeverity int) Outcome {
	severity := SeverityLevel(bt)
	if prevSeverity+1 > severity {
		severity = prevSeverity + 1
	}

	out := Outcome{Severity: severity}

	out.NewUserAgent = m.uas.Rotate(sessionID)

	m.cookies.Reset(sessionID)
	out.CookiesReset = true

	const prolongFactor = 1.5
	m.delay.Prolong(prolongFactor)
	out.DelayProlonged = prolongFactor

	if (bt == BlockHTTP403 || bt == BlockCaptcha) && m.browser != nil {
		out.BrowserAttempted = true
		bctx, cancel := context.WithTimeout(ctx, m.browserTimeout)
		defer cancel()
		resp, err := m.browser.Refetch(bctx, target)
		if err == nil && Detect(resp) == BlockNone {
			out.BrowserRecovered = true
			out.BrowserBody = resp.Body
			metrics.ScraperBrowserRecoverySuccessTotal.Inc()
		} else if err != nil {
			m.logger.Warn("browser fallback failed", zap.String("target", target), zap.Error(err))
		}
	}

	idx := severity - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(m.suspensionSteps) {
		idx = len(m.suspensionSteps) - 1
	}
	suspendFor := m.suspensionSteps[idx]
	if err := kv.SuspendGlobally(ctx, m.redis, suspendFor); err != nil {
		m.logger.Error("failed to set global suspension", zap.Error(err))
	} else {
		out.GloballySuspended = true
		out.SuspendDuration = suspendFor
	}

	m.logger.Warn("block recovery engaged",
		zap.String("target", target),
		zap.String("block_type", string(bt)),
		zap.Int("severity", severity),
		zap.Duration("suspend_for", suspendFor),
		zap.Bool("browser_recovered", out.BrowserRecovered),
	)

	return out
}

// FromHTTPResponse adapts a *http.Response + body into a Response
// for Detect, used by callers wiring a real HTTP client.
func FromHTTPResponse(resp *http.Response, body string) Response {
	return Response{StatusCode: resp.StatusCode, Body: body}
}
