package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponseCacheExactHit(t *testing.T) {
	c := NewResponseCache(DefaultResponseCacheConfig())

	c.Store("What is a fraction?", "math", "A fraction is part of a whole.", 120)

	hit, ok := c.Lookup("What is a fraction?", "math")
	require.True(t, ok)
	assert.False(t, hit.Fuzzy)
	assert.Equal(t, "A fraction is part of a whole.", hit.Response)
	assert.EqualValues(t, 1.0, hit.Similarity)

	// Normalization makes casing and punctuation irrelevant.
	hit, ok = c.Lookup("what is a FRACTION", "math")
	require.True(t, ok)
	assert.False(t, hit.Fuzzy)

	stats := c.Stats()
	assert.EqualValues(t, 2, stats.ExactHits)
	assert.EqualValues(t, 240, stats.TokensSaved)
}

func TestResponseCacheFuzzyMatch(t *testing.T) {
	c := NewResponseCache(DefaultResponseCacheConfig())

	c.Store("can you tell me about the planets in space", "science", "Sure! There are eight planets...", 200)

	t.Run("SimilarPromptHits", func(t *testing.T) {
		// Same words except one; Jaccard well above 0.8.
		hit, ok := c.Lookup("can you tell me about the planets in space today", "science")
		require.True(t, ok)
		assert.True(t, hit.Fuzzy)
		assert.GreaterOrEqual(t, hit.Similarity, 0.8)
	})

	t.Run("DissimilarPromptMisses", func(t *testing.T) {
		_, ok := c.Lookup("what is seven times eight", "science")
		assert.False(t, ok)
	})

	t.Run("ModuleIsolation", func(t *testing.T) {
		// Identical words but a different module never matches fuzzily.
		_, ok := c.Lookup("can you tell me about the planets in space today", "math")
		assert.False(t, ok)
	})
}

func TestResponseCacheTTL(t *testing.T) {
	cfg := DefaultResponseCacheConfig()
	cfg.ConversationalTTL = 10 * time.Millisecond
	c := NewResponseCache(cfg)

	c.Store("hello there", "chat", "hi!", 10)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Lookup("hello there", "chat")
	assert.False(t, ok, "expired entry must be treated as absent")
	assert.EqualValues(t, 1, c.Stats().Misses)
}

func TestResponseCacheEviction(t *testing.T) {
	cfg := DefaultResponseCacheConfig()
	cfg.Capacity = 10
	c := NewResponseCache(cfg)

	for i := 0; i < 10; i++ {
		c.Store(fmt.Sprintf("unique prompt number %d with filler words", i), "math", "r", 10)
	}
	// Promote entry 3 so it survives the eviction pass.
	_, ok := c.Lookup(fmt.Sprintf("unique prompt number %d with filler words", 3), "math")
	require.True(t, ok)

	c.Store("one more prompt beyond capacity entirely", "math", "r", 10)

	assert.LessOrEqual(t, c.Size(), 10)
	assert.Positive(t, c.Stats().Evictions)
	_, ok = c.Lookup(fmt.Sprintf("unique prompt number %d with filler words", 3), "math")
	assert.True(t, ok, "frequently hit entry should survive eviction")
}

func TestResponseCacheHitRate(t *testing.T) {
	c := NewResponseCache(DefaultResponseCacheConfig())
	assert.Zero(t, c.HitRate())

	c.Store("the only stored prompt", "math", "r", 50)
	c.Lookup("the only stored prompt", "math")       // hit
	c.Lookup("something else entirely different", "math") // miss

	assert.InDelta(t, 0.5, c.HitRate(), 1e-9)
	assert.EqualValues(t, 50, c.TokensSaved())
}

func TestResponseCacheBulkTTL(t *testing.T) {
	cfg := DefaultResponseCacheConfig()
	cfg.ConversationalTTL = 5 * time.Millisecond
	cfg.BulkTTL = time.Hour
	c := NewResponseCache(cfg)

	c.Store("weekly quiz bundle for math", "math", "...", 500, Bulk(), WithTags("pregen"))
	time.Sleep(10 * time.Millisecond)

	_, ok := c.Lookup("weekly quiz bundle for math", "math")
	assert.True(t, ok, "bulk entries outlive the conversational TTL")
}

func TestLRUBasics(t *testing.T) {
	c := NewLRU[string, int](2, time.Minute)

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a")
	}
	c.Set("c", 3, 0) // evicts b, the least recently used

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Errorf("got %v %v", v, ok)
	}
	if c.Size() != 2 {
		t.Errorf("size = %d", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRU[string, string](10, time.Minute)
	c.Set("k", "v", 5*time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expired entry returned")
	}
	c.Set("k2", "v", 5*time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	if n := c.CleanupExpired(); n != 1 {
		t.Errorf("CleanupExpired = %d, want 1", n)
	}
}
