package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hrygo/tutorsense/ai/internal/strutil"
)

// ResponseCache provides two-layer reuse of prior LLM responses: exact match
// on the hashed normalized prompt, then fuzzy match by Jaccard similarity of
// word sets within the same module.
type ResponseCache struct {
	cfg ResponseCacheConfig

	mu      sync.Mutex
	entries map[string]*ResponseEntry
	// byModule indexes entry keys per module for fuzzy scans.
	byModule map[string]map[string]struct{}

	stats ResponseCacheStats
}

// ResponseCacheConfig configures the response cache.
type ResponseCacheConfig struct {
	// Capacity is the maximum number of entries before eviction.
	Capacity int

	// SimilarityThreshold is the minimum Jaccard similarity for a fuzzy match (0-1).
	SimilarityThreshold float64

	// ConversationalTTL bounds entries stored from live tutoring turns.
	ConversationalTTL time.Duration

	// BulkTTL bounds entries stored by the batch pre-generation path.
	BulkTTL time.Duration
}

// DefaultResponseCacheConfig returns the default configuration.
func DefaultResponseCacheConfig() ResponseCacheConfig {
	return ResponseCacheConfig{
		Capacity:            2000,
		SimilarityThreshold: 0.8,
		ConversationalTTL:   time.Hour,
		BulkTTL:             7 * 24 * time.Hour,
	}
}

// ResponseEntry is a cached LLM response.
type ResponseEntry struct {
	Key       string
	Prompt    string
	Module    string
	Response  string
	TokenCost int
	Tags      []string
	CreatedAt time.Time
	ExpiresAt time.Time
	HitCount  int64
	lastHit   time.Time
}

// ResponseCacheStats are cumulative counters for the cache.
type ResponseCacheStats struct {
	ExactHits   int64
	FuzzyHits   int64
	Misses      int64
	Evictions   int64
	TokensSaved int64
}

// Hits returns the total hit count across both layers.
func (s ResponseCacheStats) Hits() int64 {
	return s.ExactHits + s.FuzzyHits
}

// Hit describes a successful lookup.
type Hit struct {
	Response   string
	TokenCost  int
	Fuzzy      bool
	Similarity float64
}

// NewResponseCache creates a response cache.
func NewResponseCache(cfg ResponseCacheConfig) *ResponseCache {
	def := DefaultResponseCacheConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.ConversationalTTL <= 0 {
		cfg.ConversationalTTL = def.ConversationalTTL
	}
	if cfg.BulkTTL <= 0 {
		cfg.BulkTTL = def.BulkTTL
	}

	return &ResponseCache{
		cfg:      cfg,
		entries:  make(map[string]*ResponseEntry),
		byModule: make(map[string]map[string]struct{}),
	}
}

// Key derives the cache key from the normalized prompt and module.
func Key(prompt, module string) string {
	sum := sha256.Sum256([]byte(strutil.Normalize(prompt) + "|" + module))
	return hex.EncodeToString(sum[:12])
}

// Lookup finds a reusable response for the prompt within the module.
// Expired entries are treated as absent. A hit increments the entry's
// hit count exactly once and accrues the entry's token cost as saved.
func (c *ResponseCache) Lookup(prompt, module string) (*Hit, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Layer 1: exact match on the hashed normalized prompt.
	if e, ok := c.entries[Key(prompt, module)]; ok {
		if now.After(e.ExpiresAt) {
			c.removeLocked(e.Key)
		} else {
			c.recordHitLocked(e, now, false)
			return &Hit{Response: e.Response, TokenCost: e.TokenCost, Similarity: 1}, true
		}
	}

	// Layer 2: fuzzy match within the same module.
	var best *ResponseEntry
	var bestSim float64
	for key := range c.byModule[module] {
		e := c.entries[key]
		if e == nil || now.After(e.ExpiresAt) {
			continue
		}
		sim := strutil.Jaccard(prompt, e.Prompt)
		if sim > bestSim {
			bestSim = sim
			best = e
		}
	}
	if best != nil && bestSim >= c.cfg.SimilarityThreshold {
		c.recordHitLocked(best, now, true)
		return &Hit{Response: best.Response, TokenCost: best.TokenCost, Fuzzy: true, Similarity: bestSim}, true
	}

	c.stats.Misses++
	return nil, false
}

type storeOptions struct {
	tags []string
	bulk bool
}

// StoreOption adjusts how an entry is stored.
type StoreOption func(*storeOptions)

// WithTags attaches tags to the stored entry.
func WithTags(tags ...string) StoreOption {
	return func(o *storeOptions) { o.tags = tags }
}

// Bulk stores the entry with the long bulk-tier TTL instead of the
// conversational one. Used by the batch pre-generation path.
func Bulk() StoreOption {
	return func(o *storeOptions) { o.bulk = true }
}

// Store inserts or overwrites the response for (prompt, module).
// When the entry count exceeds capacity, the lowest 20% of entries ranked by
// hitCount x recency weight are evicted.
func (c *ResponseCache) Store(prompt, module, response string, tokenCost int, opts ...StoreOption) {
	var o storeOptions
	for _, opt := range opts {
		opt(&o)
	}

	now := time.Now()
	ttl := c.cfg.ConversationalTTL
	if o.bulk {
		ttl = c.cfg.BulkTTL
	}
	e := &ResponseEntry{
		Key:       Key(prompt, module),
		Prompt:    prompt,
		Module:    module,
		Response:  response,
		TokenCost: tokenCost,
		Tags:      o.tags,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		lastHit:   now,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[e.Key] = e
	if c.byModule[module] == nil {
		c.byModule[module] = make(map[string]struct{})
	}
	c.byModule[module][e.Key] = struct{}{}

	if len(c.entries) > c.cfg.Capacity {
		c.evictLowestLocked()
	}
}

// HitRate returns hits/(hits+misses), or 0 before any lookup.
func (c *ResponseCache) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.stats.Hits() + c.stats.Misses
	if total == 0 {
		return 0
	}
	return float64(c.stats.Hits()) / float64(total)
}

// TokensSaved returns the cumulative token cost avoided by cache hits.
func (c *ResponseCache) TokensSaved() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.TokensSaved
}

// Stats returns a copy of the cumulative counters.
func (c *ResponseCache) Stats() ResponseCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Size returns the current entry count.
func (c *ResponseCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CleanupExpired removes expired entries and returns the count removed.
func (c *ResponseCache) CleanupExpired() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var stale []string
	for key, e := range c.entries {
		if now.After(e.ExpiresAt) {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		c.removeLocked(key)
	}
	return len(stale)
}

func (c *ResponseCache) recordHitLocked(e *ResponseEntry, now time.Time, fuzzy bool) {
	e.HitCount++
	e.lastHit = now
	if fuzzy {
		c.stats.FuzzyHits++
	} else {
		c.stats.ExactHits++
	}
	c.stats.TokensSaved += int64(e.TokenCost)
}

// evictLowestLocked drops the bottom 20% of entries ranked by
// hitCount x recency weight. The recency weight halves every 24 hours
// since the last hit. Lock must be held.
func (c *ResponseCache) evictLowestLocked() {
	now := time.Now()
	type scored struct {
		key   string
		score float64
	}
	ranked := make([]scored, 0, len(c.entries))
	for key, e := range c.entries {
		hours := now.Sub(e.lastHit).Hours()
		weight := math.Pow(0.5, hours/24)
		ranked = append(ranked, scored{key: key, score: float64(e.HitCount+1) * weight})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score < ranked[j].score })

	drop := len(ranked) / 5
	if drop < 1 {
		drop = 1
	}
	for _, s := range ranked[:drop] {
		c.removeLocked(s.key)
		c.stats.Evictions++
	}
}

// removeLocked deletes an entry and its module index slot. Lock must be held.
func (c *ResponseCache) removeLocked(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	if keys := c.byModule[e.Module]; keys != nil {
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.byModule, e.Module)
		}
	}
}
