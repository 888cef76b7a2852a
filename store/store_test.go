package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/tutorsense/ai/memory"
	"github.com/hrygo/tutorsense/internal/profile"
	"github.com/hrygo/tutorsense/store"
	"github.com/hrygo/tutorsense/store/db/sqlite"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	p := &profile.Profile{
		Driver:           "sqlite",
		DSN:              filepath.Join(t.TempDir(), "tutorsense_test.db"),
		ShortTermEntries: 3,
	}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)

	s := store.New(driver, p)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() }) //nolint:errcheck // test cleanup

	return s
}

func TestUserProfileRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetUserProfile(ctx, "kid-1")
	require.NoError(t, err)
	assert.Nil(t, got, "unknown learner yields nil, not an error")

	_, err = s.UpsertUserProfile(ctx, &store.UserProfile{
		UID:       "kid-1",
		Payload:   `{"user_id":"kid-1","confidence":10}`,
		UpdatedTs: time.Now().Unix(),
	})
	require.NoError(t, err)

	got, err = s.GetUserProfile(ctx, "kid-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Contains(t, got.Payload, `"confidence":10`)

	// Upsert replaces the payload.
	_, err = s.UpsertUserProfile(ctx, &store.UserProfile{
		UID:       "kid-1",
		Payload:   `{"user_id":"kid-1","confidence":20}`,
		UpdatedTs: time.Now().Unix(),
	})
	require.NoError(t, err)

	got, err = s.GetUserProfile(ctx, "kid-1")
	require.NoError(t, err)
	assert.Contains(t, got.Payload, `"confidence":20`)
}

func TestShortTermMemoryRing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.CreateShortTermMemory(ctx, &store.ShortTermMemory{
			UID:       "kid-1",
			SessionID: string(rune('a' + i)),
			Payload:   `{}`,
			CreatedTs: int64(1000 + i),
		})
		require.NoError(t, err)
	}

	list, err := s.ListShortTermMemories(ctx, &store.FindShortTermMemory{UID: "kid-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 3, "ring keeps only the configured window")
	assert.Equal(t, "e", list[0].SessionID, "newest first")
	assert.Equal(t, "c", list[2].SessionID, "oldest rows trimmed")
}

func TestUsageRecordAppendAndSum(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	records := []*store.UsageRecord{
		{SessionID: "s1", Module: "math", Tier: "balance", InputTokens: 100, OutputTokens: 50, CostUSD: 0.002, Day: "2026-08-29", CreatedTs: 1},
		{SessionID: "s1", Module: "math", Tier: "balance", CachedHit: true, CostUSD: 0, Day: "2026-08-29", CreatedTs: 2},
		{SessionID: "s2", Module: "science", Tier: "economy", InputTokens: 80, OutputTokens: 40, CostUSD: 0.001, Day: "2026-08-28", CreatedTs: 3},
	}
	for _, r := range records {
		_, err := s.CreateUsageRecord(ctx, r)
		require.NoError(t, err)
	}

	day := "2026-08-29"
	list, err := s.ListUsageRecords(ctx, &store.FindUsageRecord{Day: &day})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	total, err := s.SumDailyCostUSD(ctx, day)
	require.NoError(t, err)
	assert.InDelta(t, 0.002, total, 1e-9, "cached hits do not count toward spend")

	sid := "s1"
	bySession, err := s.ListUsageRecords(ctx, &store.FindUsageRecord{SessionID: &sid})
	require.NoError(t, err)
	assert.Len(t, bySession, 2)
}

func TestSessionArchiveUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateSessionArchive(ctx, &store.SessionArchive{
		SessionID: "sess-1",
		UID:       "kid-1",
		Module:    "math",
		Payload:   `{"messages":4}`,
		StartedTs: 100,
		EndedTs:   200,
		Messages:  4,
		EndReason: "requested",
	})
	require.NoError(t, err)

	// Re-archiving the same session updates in place.
	_, err = s.CreateSessionArchive(ctx, &store.SessionArchive{
		SessionID: "sess-1",
		UID:       "kid-1",
		Module:    "math",
		Payload:   `{"messages":6}`,
		StartedTs: 100,
		EndedTs:   300,
		Messages:  6,
		EndReason: "inactivity",
	})
	require.NoError(t, err)

	uid := "kid-1"
	list, err := s.ListSessionArchives(ctx, &store.FindSessionArchive{UID: &uid})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int32(6), list[0].Messages)
	assert.Equal(t, "inactivity", list[0].EndReason)
}

func TestMemoryAdapterRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mem := s.MemoryStore()

	got, err := mem.GetProfile(ctx, "kid-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	p := &memory.LongTermProfile{
		UserID:     "kid-1",
		Confidence: 42,
		Interests: []*memory.Interest{
			{Topic: "fractions", MentionCount: 3, Strength: 6, LastMentioned: time.Now().UTC().Truncate(time.Second)},
		},
	}
	require.NoError(t, mem.PutProfile(ctx, p))

	got, err = mem.GetProfile(ctx, "kid-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 42.0, got.Confidence)
	require.Len(t, got.Interests, 1)
	assert.Equal(t, "fractions", got.Interests[0].Topic)

	entry := &memory.ShortTermEntry{
		SessionID: "sess-1",
		Date:      time.Now().UTC().Truncate(time.Second),
		Module:    "math",
		Topics:    []string{"fractions"},
		Energy:    "high",
	}
	require.NoError(t, mem.AppendEntry(ctx, "kid-1", entry))

	entries, err := mem.RecentEntries(ctx, "kid-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "sess-1", entries[0].SessionID)
	assert.Equal(t, []string{"fractions"}, entries[0].Topics)
}
