package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/tutorsense/ai/cache"
	"github.com/hrygo/tutorsense/ai/core/llm"
	"github.com/hrygo/tutorsense/store/catalog"
)

// listProvider replies with a numbered list sized to the requested count.
type listProvider struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *listProvider) Generate(_ context.Context, req *llm.GenerateRequest) (*llm.GenerateResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}

	prompt := req.Messages[len(req.Messages)-1].Content
	p.calls = append(p.calls, prompt)

	var count int
	_, err := fmt.Sscanf(prompt, "Generate %d", &count)
	if err != nil {
		count = 1
	}

	var sb strings.Builder
	for i := 1; i <= count; i++ {
		fmt.Fprintf(&sb, "%d. Item number %d\n", i, i)
	}
	return &llm.GenerateResult{Text: sb.String(), InputTokens: 50, OutputTokens: 20 * count}, nil
}

func (p *listProvider) Warmup(context.Context) {}

func (p *listProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type collector struct {
	mu      sync.Mutex
	results []Result
}

func (c *collector) sink(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func newTestScheduler(provider llm.Service, sink Sink) (*Scheduler, *cache.ResponseCache) {
	responseCache := cache.NewResponseCache(cache.DefaultResponseCacheConfig())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(Config{}, provider, responseCache, catalog.Default(), sink, logger), responseCache
}

func TestDrainConsolidatesGroups(t *testing.T) {
	provider := &listProvider{}
	sink := &collector{}
	s, _ := newTestScheduler(provider, sink.sink)

	id1, err := s.Enqueue(catalog.TypeQuiz, "math", 2, PriorityLow)
	require.NoError(t, err)
	id2, err := s.Enqueue(catalog.TypeQuiz, "math", 3, PriorityLow)
	require.NoError(t, err)
	id3, err := s.Enqueue(catalog.TypeQuiz, "math", 5, PriorityLow)
	require.NoError(t, err)

	served := s.DrainOnce(context.Background())
	assert.Equal(t, 3, served)
	assert.Equal(t, 1, provider.callCount(), "one consolidated call for the whole group")
	assert.Contains(t, provider.calls[0], "Generate 10")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.results, 3)

	byID := make(map[string]Result)
	for _, r := range sink.results {
		byID[r.RequestID] = r
	}
	assert.Len(t, byID[id1].Items, 2)
	assert.Len(t, byID[id2].Items, 3)
	assert.Len(t, byID[id3].Items, 5)

	// Enqueue-order slicing: the first request gets the first items.
	assert.Equal(t, "Item number 1", byID[id1].Items[0])
	assert.Equal(t, "Item number 3", byID[id2].Items[0])
	assert.Equal(t, "Item number 6", byID[id3].Items[0])

	assert.Equal(t, 0, s.Pending())
}

func TestDrainSplitsDistinctGroups(t *testing.T) {
	provider := &listProvider{}
	sink := &collector{}
	s, _ := newTestScheduler(provider, sink.sink)

	_, err := s.Enqueue(catalog.TypeQuiz, "math", 2, PriorityLow)
	require.NoError(t, err)
	_, err = s.Enqueue(catalog.TypeFact, "math", 2, PriorityLow)
	require.NoError(t, err)
	_, err = s.Enqueue(catalog.TypeQuiz, "science", 2, PriorityLow)
	require.NoError(t, err)

	s.DrainOnce(context.Background())
	assert.Equal(t, 3, provider.callCount(), "distinct (type, module) pairs never merge")
}

func TestPriorityOrdering(t *testing.T) {
	s, _ := newTestScheduler(&listProvider{}, nil)

	_, err := s.Enqueue(catalog.TypeJoke, "math", 1, PriorityLow)
	require.NoError(t, err)
	_, err = s.Enqueue(catalog.TypeJoke, "math", 1, PriorityHigh)
	require.NoError(t, err)
	_, err = s.Enqueue(catalog.TypeJoke, "math", 1, PriorityMedium)
	require.NoError(t, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, PriorityHigh, s.heap[0].Priority)
}

func TestGroupFailureReportsEveryRequest(t *testing.T) {
	provider := &listProvider{err: fmt.Errorf("connection refused")}
	sink := &collector{}
	s, _ := newTestScheduler(provider, sink.sink)

	_, err := s.Enqueue(catalog.TypeQuiz, "math", 2, PriorityLow)
	require.NoError(t, err)
	_, err = s.Enqueue(catalog.TypeQuiz, "math", 3, PriorityLow)
	require.NoError(t, err)

	s.DrainOnce(context.Background())

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.results, 2)
	for _, r := range sink.results {
		assert.Error(t, r.Err)
		assert.Empty(t, r.Items)
	}
}

func TestPregenerateSkipsFreshBundles(t *testing.T) {
	provider := &listProvider{}
	s, responseCache := newTestScheduler(provider, nil)

	first := s.Pregenerate()
	modules := len(catalog.Default().Modules())
	assert.Equal(t, modules*4, first, "every (module, type) pair enqueued on a cold cache")

	s.DrainOnce(context.Background())

	second := s.Pregenerate()
	assert.Equal(t, 0, second, "fresh bundles are not re-enqueued")
	assert.Greater(t, responseCache.Size(), 0)
}

func TestEnqueueValidation(t *testing.T) {
	s, _ := newTestScheduler(&listProvider{}, nil)

	_, err := s.Enqueue(catalog.TypeQuiz, "math", 0, PriorityLow)
	assert.Error(t, err)
	_, err = s.Enqueue(catalog.TypeQuiz, "", 1, PriorityLow)
	assert.Error(t, err)
}
