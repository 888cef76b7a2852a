package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/tutorsense/ai/cache"
	"github.com/hrygo/tutorsense/ai/core/llm"
	"github.com/hrygo/tutorsense/ai/fallback"
	"github.com/hrygo/tutorsense/ai/memory"
	"github.com/hrygo/tutorsense/ai/optimizer"
	"github.com/hrygo/tutorsense/store/catalog"
)

// stubProvider is a scriptable llm.Service.
type stubProvider struct {
	mu    sync.Mutex
	calls int
	reply string
	err   error
}

func (p *stubProvider) Generate(_ context.Context, _ *llm.GenerateRequest) (*llm.GenerateResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &llm.GenerateResult{
		Text:         p.reply,
		InputTokens:  100,
		OutputTokens: 50,
		DurationMs:   5,
	}, nil
}

func (p *stubProvider) Warmup(context.Context) {}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// stubMemStore is an in-memory memory.Store.
type stubMemStore struct {
	mu       sync.Mutex
	profiles map[string]*memory.LongTermProfile
	entries  map[string][]*memory.ShortTermEntry
}

func newStubMemStore() *stubMemStore {
	return &stubMemStore{
		profiles: make(map[string]*memory.LongTermProfile),
		entries:  make(map[string][]*memory.ShortTermEntry),
	}
}

func (m *stubMemStore) GetProfile(_ context.Context, userID string) (*memory.LongTermProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profiles[userID], nil
}

func (m *stubMemStore) PutProfile(_ context.Context, profile *memory.LongTermProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.UserID] = profile
	return nil
}

func (m *stubMemStore) RecentEntries(_ context.Context, userID string, limit int) ([]*memory.ShortTermEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.entries[userID]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (m *stubMemStore) AppendEntry(_ context.Context, userID string, entry *memory.ShortTermEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[userID] = append([]*memory.ShortTermEntry{entry}, m.entries[userID]...)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []GuardianEvent
}

func (n *recordingNotifier) NotifyAsync(event GuardianEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

type recordingArchiver struct {
	mu        sync.Mutex
	summaries []*Summary
}

func (a *recordingArchiver) ArchiveSession(_ context.Context, summary *Summary) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summaries = append(a.summaries, summary)
	return nil
}

type testHarness struct {
	orch     *Orchestrator
	provider *stubProvider
	store    *stubMemStore
	notifier *recordingNotifier
	archiver *recordingArchiver
	tracker  *optimizer.Tracker
	cache    *cache.ResponseCache
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	h := &testHarness{
		provider: &stubProvider{reply: "Great question! Let's figure it out together."},
		store:    newStubMemStore(),
		notifier: &recordingNotifier{},
		archiver: &recordingArchiver{},
	}
	h.tracker = optimizer.NewTracker(optimizer.TrackerConfig{DailyBudgetUSD: 5})
	h.cache = cache.NewResponseCache(cache.DefaultResponseCacheConfig())

	h.orch = NewOrchestrator(Config{}, Deps{
		Consolidator: memory.NewConsolidator(h.store, 10),
		Optimizer:    optimizer.New(),
		Tracker:      h.tracker,
		Cache:        h.cache,
		Provider:     h.provider,
		Failures:     fallback.NewHandler(fallback.NewBank(catalog.Default(), 1)),
		Notifier:     h.notifier,
		Archiver:     h.archiver,
		Catalog:      catalog.Default(),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	h.orch.sleep = func(context.Context, time.Duration) error { return nil }
	return h
}

func (h *testHarness) start(t *testing.T, userID, module string) string {
	t.Helper()
	res, err := h.orch.Start(context.Background(), userID, module)
	require.NoError(t, err)
	return res.SessionID
}

func TestStart(t *testing.T) {
	h := newHarness(t)

	t.Run("returns greeting and registers session", func(t *testing.T) {
		res, err := h.orch.Start(context.Background(), "kid-1", "math")
		require.NoError(t, err)
		assert.NotEmpty(t, res.SessionID)
		assert.NotEmpty(t, res.Greeting)
		assert.Equal(t, 1, h.orch.ActiveSessions())
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		_, err := h.orch.Start(context.Background(), "", "math")
		assert.Error(t, err)
		_, err = h.orch.Start(context.Background(), "kid-1", "")
		assert.Error(t, err)
	})

	t.Run("unknown session is not found", func(t *testing.T) {
		_, err := h.orch.Ingest(context.Background(), "nope", "hello")
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestIngestProviderTurn(t *testing.T) {
	h := newHarness(t)
	h.provider.reply = "**Nice!** 2 plus 2 is 4."
	id := h.start(t, "kid-1", "math")

	res, err := h.orch.Ingest(context.Background(), id, "what is 2 plus 2")
	require.NoError(t, err)

	assert.Contains(t, res.Reply, "2 plus 2 is 4")
	assert.NotContains(t, res.Reply, "**", "markdown must be rendered to plain text")
	assert.False(t, res.CacheHit)
	assert.False(t, res.Fallback)
	assert.Equal(t, baseTurnXP, res.XPDelta)
	assert.Greater(t, res.CostUSD, 0.0)
	assert.Equal(t, 1, h.provider.callCount())
}

func TestBreakSuggestedExactlyOnce(t *testing.T) {
	h := newHarness(t)
	id := h.start(t, "kid-1", "math")

	var breakTurns []int
	for i := 1; i <= 16; i++ {
		res, err := h.orch.Ingest(context.Background(), id, fmt.Sprintf("tell me about shapes number %d", i))
		require.NoError(t, err)
		if res.BreakSuggested {
			breakTurns = append(breakTurns, i)
			assert.Contains(t, res.Reply, "break")
		}
	}

	require.Len(t, breakTurns, 1, "break must fire exactly once")
	assert.Equal(t, 15, breakTurns[0])
}

func TestRateLimitFallsBackToOfflineContent(t *testing.T) {
	h := newHarness(t)
	h.provider.err = &openai.APIError{HTTPStatusCode: 429, Message: "rate limit exceeded"}
	id := h.start(t, "kid-1", "math")

	res, err := h.orch.Ingest(context.Background(), id, "what is 6 times 7")
	require.NoError(t, err, "provider failures never surface as turn errors")

	assert.True(t, res.Fallback)
	assert.NotEmpty(t, res.Reply)
	assert.Greater(t, res.XPDelta, 0, "offline content still rewards the learner")
	assert.Equal(t, fallback.MaxAttempts, h.provider.callCount(), "retriable errors exhaust the retry budget")
	assert.Equal(t, 1, h.orch.deps.Replay.Len(), "utterance queued for replay")
}

func TestAuthFailureNotifiesWithoutRetry(t *testing.T) {
	h := newHarness(t)
	h.provider.err = &openai.APIError{HTTPStatusCode: 401, Message: "invalid api key"}
	id := h.start(t, "kid-1", "science")

	res, err := h.orch.Ingest(context.Background(), id, "why is the sky blue")
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	assert.Equal(t, offlineApology, res.Reply)
	assert.Equal(t, 1, h.provider.callCount(), "auth failures are not retried")
	assert.Equal(t, 0, h.orch.deps.Replay.Len())

	h.notifier.mu.Lock()
	defer h.notifier.mu.Unlock()
	require.Len(t, h.notifier.events, 1)
	assert.Equal(t, "provider_down", h.notifier.events[0].Kind)
}

func TestSecondIdenticalPromptServedFromCache(t *testing.T) {
	h := newHarness(t)
	id := h.start(t, "kid-1", "math")

	first, err := h.orch.Ingest(context.Background(), id, "what is a fraction")
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	id2 := h.start(t, "kid-2", "math")
	second, err := h.orch.Ingest(context.Background(), id2, "what is a fraction")
	require.NoError(t, err)

	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Reply, second.Reply)
	assert.Equal(t, 0.0, second.CostUSD, "cached turns are free")
	assert.Equal(t, 1, h.provider.callCount(), "no second provider call")
	assert.Greater(t, h.cache.TokensSaved(), int64(0))

	records := h.tracker.Records()
	require.Len(t, records, 2)
	assert.False(t, records[0].CachedHit)
	assert.True(t, records[1].CachedHit)
	assert.Equal(t, 0.0, records[1].CostUSD)
	assert.Zero(t, records[1].InputTokens, "cached turns consume no provider tokens")
	assert.Zero(t, records[1].OutputTokens)
}

func TestStrugglingLearnerGetsQualityTier(t *testing.T) {
	h := newHarness(t)
	id := h.start(t, "kid-1", "math")

	res, err := h.orch.Ingest(context.Background(), id, "i don't get it, this is too hard")
	require.NoError(t, err)
	assert.Equal(t, llm.TierQuality, res.Tier)
}

func TestEndConsolidatesAndArchives(t *testing.T) {
	h := newHarness(t)
	id := h.start(t, "kid-1", "math")

	_, err := h.orch.Ingest(context.Background(), id, "can we learn fractions today")
	require.NoError(t, err)
	_, err = h.orch.Ingest(context.Background(), id, "why do fractions need a denominator?")
	require.NoError(t, err)

	summary, err := h.orch.End(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Messages)
	assert.Contains(t, summary.TopicsDiscussed, "fractions")
	assert.Equal(t, "requested", summary.EndReason)
	assert.Equal(t, 0, h.orch.ActiveSessions())

	entries, err := h.store.RecentEntries(context.Background(), "kid-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Topics, "fractions")

	profile, err := h.store.GetProfile(context.Background(), "kid-1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	require.NotEmpty(t, profile.Interests)
	assert.Equal(t, "fractions", profile.Interests[0].Topic)
	assert.Contains(t, profile.RecurringQuestions, "why do fractions need a denominator?")
	assert.Contains(t, profile.FavoriteTopics, "fractions")
	assert.NotEmpty(t, profile.LearningStyle.Primary)

	h.archiver.mu.Lock()
	defer h.archiver.mu.Unlock()
	require.Len(t, h.archiver.summaries, 1)

	_, err = h.orch.End(context.Background(), id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCleanupEndsIdleSessions(t *testing.T) {
	h := newHarness(t)
	id := h.start(t, "kid-1", "math")
	_, err := h.orch.Ingest(context.Background(), id, "hello there")
	require.NoError(t, err)

	base := time.Now()
	h.orch.now = func() time.Time { return base.Add(3 * time.Hour) }

	job := NewCleanupJob(h.orch, 2*time.Hour, time.Minute)
	ended := job.RunOnce(context.Background())

	assert.Equal(t, 1, ended)
	assert.Equal(t, 0, h.orch.ActiveSessions())

	h.archiver.mu.Lock()
	defer h.archiver.mu.Unlock()
	require.Len(t, h.archiver.summaries, 1)
	assert.Equal(t, "inactivity", h.archiver.summaries[0].EndReason)
}

func TestCleanupSweepConcurrentWithEnd(t *testing.T) {
	h := newHarness(t)
	job := NewCleanupJob(h.orch, 0, time.Minute)

	ids := make([]string, 0, 32)
	for i := 0; i < 32; i++ {
		ids = append(ids, h.start(t, fmt.Sprintf("kid-%d", i), "math"))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			job.RunOnce(context.Background())
		}
	}()
	go func() {
		defer wg.Done()
		for _, id := range ids {
			_, _ = h.orch.End(context.Background(), id) //nolint:errcheck // racing the sweep for the same sessions
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("end and cleanup sweep did not finish; session and registry locks are wedged")
	}
	assert.Equal(t, 0, h.orch.ActiveSessions())
}

func TestCleanupDropsExpiredCacheEntries(t *testing.T) {
	h := newHarness(t)
	short := cache.NewResponseCache(cache.ResponseCacheConfig{ConversationalTTL: time.Nanosecond})
	h.orch.deps.Cache = short

	short.Store("what is a fraction", "math", "A fraction is part of a whole.", 40)
	require.Equal(t, 1, short.Size())
	time.Sleep(time.Millisecond)

	job := NewCleanupJob(h.orch, 2*time.Hour, time.Minute)
	job.RunOnce(context.Background())

	assert.Equal(t, 0, short.Size())
}

func TestReplayPendingRefillsCache(t *testing.T) {
	h := newHarness(t)
	h.provider.err = &openai.APIError{HTTPStatusCode: 503, Message: "maintenance"}
	id := h.start(t, "kid-1", "math")

	_, err := h.orch.Ingest(context.Background(), id, "what is 9 minus 4")
	require.NoError(t, err)
	require.Equal(t, 1, h.orch.deps.Replay.Len())

	h.provider.mu.Lock()
	h.provider.err = nil
	h.provider.mu.Unlock()

	replayed := h.orch.ReplayPending(context.Background())
	assert.Equal(t, 1, replayed)
	assert.Equal(t, 0, h.orch.deps.Replay.Len())

	hit, ok := h.cache.Lookup("what is 9 minus 4", "math")
	require.True(t, ok, "replayed reply lands in the cache")
	assert.NotEmpty(t, hit.Response)
}
