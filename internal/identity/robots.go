package identity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// RobotsCacheTTL is the Redis TTL for cached robots.txt content
// (spec.md §4.4 "Robots content is cached in KV per-domain (TTL 24 h)").
const RobotsCacheTTL = 24 * time.Hour

// RobotsDirectives is the subset of robots.txt this platform honors: a
// per-user-agent crawl delay.
type RobotsDirectives struct {
	CrawlDelay time.Duration
	HasDelay   bool
}

// RobotsFetcher fetches and caches robots.txt, fronting the Redis cache
// with a short-lived in-process cache (SPEC_FULL.md §2, grounded on
// _examples/.../api_gateway/go.mod's github.com/patrickmn/go-cache).
type RobotsFetcher struct {
	redis      redis.Cmdable
	local      *gocache.Cache
	httpClient *http.Client
}

// NewRobotsFetcher constructs a fetcher backed by client for the
// durable cache and an in-process cache with a 5 minute local TTL.
func NewRobotsFetcher(client redis.Cmdable) *RobotsFetcher {
	return &RobotsFetcher{
		redis:      client,
		local:      gocache.New(5*time.Minute, 10*time.Minute),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func robotsKey(scheme, host string) string {
	return fmt.Sprintf("robots.txt:content:%s://%s", scheme, host)
}

// Fetch returns the robots.txt content for the scheme+host of target,
// consulting the in-process cache, then Redis, then the network.
func (r *RobotsFetcher) Fetch(ctx context.Context, target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	key := robotsKey(u.Scheme, u.Host)

	if v, ok := r.local.Get(key); ok {
		return v.(string), nil
	}

	content, err := r.redis.Get(ctx, key).Result()
	if err == nil {
		r.local.Set(key, content, gocache.DefaultExpiration)
		return content, nil
	}
	if err != redis.Nil {
		return "", err
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	content = string(body)

	r.redis.Set(ctx, key, content, RobotsCacheTTL)
	r.local.Set(key, content, gocache.DefaultExpiration)
	return content, nil
}

var crawlDelayRE = regexp.MustCompile(`(?im)^\s*crawl-delay:\s*([0-9.]+)\s*$`)
var userAgentRE = regexp.MustCompile(`(?im)^\s*user-agent:\s*(.+?)\s*$`)

// ParseCrawlDelay walks robots.txt content looking for a Crawl-delay
// directive scoped to ua or to "*" (spec.md §4.4 "Robots.txt
// integration"). A directive under the exact UA takes precedence over "*".
func ParseCrawlDelay(content, ua string) RobotsDirectives {
	var wildcard, exact *time.Duration
	var currentAgents []string
	for _, line := range strings.Split(content, "\n") {
		if m := userAgentRE.FindStringSubmatch(line); m != nil {
			currentAgents = append(currentAgents, strings.ToLower(strings.TrimSpace(m[1])))
			continue
		}
		if m := crawlDelayRE.FindStringSubmatch(line); m != nil {
			seconds, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			d := time.Duration(seconds * float64(time.Second))
			for _, agent := range currentAgents {
				if agent == "*" {
					wildcard = &d
				}
				if agent == strings.ToLower(ua) {
					exact = &d
				}
			}
			currentAgents = nil
		}
	}
	if exact != nil {
		return RobotsDirectives{CrawlDelay: *exact, HasDelay: true}
	}
	if wildcard != nil {
		return RobotsDirectives{CrawlDelay: *wildcard, HasDelay: true}
	}
	return RobotsDirectives{}
}

// JitterRangeForDelay computes [jmin, jmax] = [delay*0.5, delay*1.5] per
// spec.md §4.4, for use by the throttle stack on this request.
func JitterRangeForDelay(delay time.Duration) (time.Duration, time.Duration) {
	return time.Duration(float64(delay) * 0.5), time.Duration(float64(delay) * 1.5)
}
