// Package cache implements the Intelligent Content Cache of spec.md §4.7:
// a Redis-backed store keyed by product URL whose TTL grows with how many
// consecutive fetches see unchanged content, fronted by a short-TTL
// in-process layer.
//
// Grounded on
// _examples/original_source/market_scraper/scraper_app/utils/intelligent_cache.py
// (IntelligentCacheManager).
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/iaros/marketwatch/internal/metrics"
)

// Entry is the JSON document stored per cached URL.
type Entry struct {
	Data       json.RawMessage `json:"data"`
	Hash       string          `json:"hash"`
	ETag       string          `json:"etag,omitempty"`
	Multiplier int             `json:"multiplier"`
}

// Manager implements the adaptive-TTL content cache.
type Manager struct {
	redis         redis.Cmdable
	local         *gocache.Cache
	baseTTL       time.Duration
	maxMultiplier int
}

// New constructs a Manager with the given base TTL and maximum multiplier
// (spec.md §4.7 defaults: 1h base, 5x max).
func New(client redis.Cmdable, baseTTL time.Duration, maxMultiplier int) *Manager {
	return &Manager{
		redis:         client,
		local:         gocache.New(1*time.Minute, 2*time.Minute),
		baseTTL:       baseTTL,
		maxMultiplier: maxMultiplier,
	}
}

func (m *Manager) key(url string) string {
	return "cache:product:" + url
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Get returns the full cache entry for url, or (nil, false) if absent.
func (m *Manager) Get(ctx context.Context, url string) (*Entry, bool) {
	if cached, ok := m.local.Get(url); ok {
		metrics.CacheHitsTotal.Inc()
		entry := cached.(Entry)
		return &entry, true
	}

	raw, err := m.redis.Get(ctx, m.key(url)).Result()
	if err != nil {
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}

	m.local.Set(url, entry, gocache.DefaultExpiration)
	metrics.CacheHitsTotal.Inc()
	return &entry, true
}

// GetData returns just the Data field of the cached entry for url.
func (m *Manager) GetData(ctx context.Context, url string) (json.RawMessage, bool) {
	entry, ok := m.Get(ctx, url)
	if !ok {
		return nil, false
	}
	return entry.Data, true
}

// Set stores data and the hash of content for url, growing the TTL
// multiplier by one (capped at maxMultiplier) each time the content hash
// is unchanged from the previous entry, and resetting it to 1 otherwise.
func (m *Manager) Set(ctx context.Context, url string, data json.RawMessage, content, etag string) error {
	contentHash := hashContent(content)
	multiplier := 1

	if existing, ok := m.Get(ctx, url); ok {
		if existing.Hash == contentHash {
			multiplier = existing.Multiplier + 1
			if multiplier > m.maxMultiplier {
				multiplier = m.maxMultiplier
			}
		}
	}

	ttl := m.baseTTL * time.Duration(multiplier)
	entry := Entry{Data: data, Hash: contentHash, ETag: etag, Multiplier: multiplier}

	encoded, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if err := m.redis.Set(ctx, m.key(url), encoded, ttl).Err(); err != nil {
		return err
	}
	m.local.Set(url, entry, gocache.DefaultExpiration)
	return nil
}

// Invalidate removes the cache entry for url from both layers.
func (m *Manager) Invalidate(ctx context.Context, url string) error {
	m.local.Delete(url)
	return m.redis.Del(ctx, m.key(url)).Err()
}

// Cleanup scans for entries that were persisted without a TTL (TTL == -1,
// spec.md §9 Open Question: modeled as a real possible state reachable if
// a write path ever calls Set with no expiration) and deletes them,
// returning the count removed. Run periodically by the dispatcher beat.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	removed := 0
	iter := m.redis.Scan(ctx, 0, "cache:product:*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ttl, err := m.redis.TTL(ctx, key).Result()
		if err != nil {
			continue
		}
		if ttl == -1 {
			if err := m.redis.Del(ctx, key).Err(); err == nil {
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}
