// Package identity holds the in-process singletons spec.md §9 calls out
// for replacement with explicitly constructed, injected components: a
// mutex-protected user-agent rotator, a per-session cookie jar manager,
// and a Redis-cached robots.txt fetcher. Grounded on the teacher's
// mutex-protected singleton style in
// services/api_gateway/src/ratelimit/rate_limiter.go (sync.RWMutex-guarded
// maps) and on
// _examples/original_source/market_scraper's user_agent_manager/cookie_manager
// usages referenced from block_recovery.py.
package identity

import (
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"sync"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
}

// UserAgentManager rotates user agents per session under a mutex.
type UserAgentManager struct {
	mu      sync.Mutex
	agents  []string
	current map[string]string
	randFn  func(int) int
}

// NewUserAgentManager constructs a manager over the given agent pool (or
// a built-in default pool if agents is empty).
func NewUserAgentManager(agents []string) *UserAgentManager {
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	return &UserAgentManager{
		agents:  agents,
		current: map[string]string{},
		randFn:  rand.Intn,
	}
}

// Current returns the user agent assigned to sessionID, assigning one if
// none exists yet.
func (m *UserAgentManager) Current(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ua, ok := m.current[sessionID]; ok {
		return ua
	}
	ua := m.agents[m.randFn(len(m.agents))]
	m.current[sessionID] = ua
	return ua
}

// Rotate forces a new random user agent for sessionID (spec.md §4.6 step 1).
func (m *UserAgentManager) Rotate(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ua := m.agents[m.randFn(len(m.agents))]
	m.current[sessionID] = ua
	return ua
}

// CookieManager holds a cookiejar.Jar per session behind a mutex.
type CookieManager struct {
	mu   sync.Mutex
	jars map[string]http.CookieJar
}

// NewCookieManager constructs an empty per-session cookie manager.
func NewCookieManager() *CookieManager {
	return &CookieManager{jars: map[string]http.CookieJar{}}
}

// Jar returns the cookie jar for sessionID, creating one if needed.
func (m *CookieManager) Jar(sessionID string) http.CookieJar {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jars[sessionID]; ok {
		return j
	}
	jar, _ := cookiejar.New(nil)
	m.jars[sessionID] = jar
	return jar
}

// Reset clears the cookie jar for sessionID (spec.md §4.6 step 2).
func (m *CookieManager) Reset(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jar, _ := cookiejar.New(nil)
	m.jars[sessionID] = jar
}
