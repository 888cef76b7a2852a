package optimizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/tutorsense/ai/core/llm"
)

func TestTrackerCachedTurnsAreFree(t *testing.T) {
	tracker := NewTracker(TrackerConfig{DailyBudgetUSD: 1})

	result := tracker.Track("s1", 100000, 50000, llm.TierQuality, "math", true)
	assert.Zero(t, result.CostUSD)
	assert.Zero(t, tracker.DailyUsageRatio())
}

func TestTrackerCostArithmetic(t *testing.T) {
	tracker := NewTracker(TrackerConfig{
		DailyBudgetUSD: 1,
		Prices: map[llm.Tier]TierPrice{
			llm.TierEconomy: {InputUSD: 1, OutputUSD: 2},
		},
	})

	// 1M in at $1 + 0.5M out at $2 = $2
	result := tracker.Track("s1", 1_000_000, 500_000, llm.TierEconomy, "math", false)
	assert.InDelta(t, 2.0, result.CostUSD, 1e-9)
	assert.InDelta(t, 200, result.DailyUsagePercent, 1e-9)
	assert.True(t, result.ShouldFallback)
	assert.True(t, result.CostAlert)
}

func TestTrackerDailyPercentMonotonic(t *testing.T) {
	tracker := NewTracker(TrackerConfig{DailyBudgetUSD: 10})

	var last float64
	for i := 0; i < 5; i++ {
		result := tracker.Track("s1", 200_000, 100_000, llm.TierBalance, "math", false)
		assert.GreaterOrEqual(t, result.DailyUsagePercent, last)
		last = result.DailyUsagePercent
	}
}

func TestTrackerDayBoundaryReset(t *testing.T) {
	tracker := NewTracker(TrackerConfig{DailyBudgetUSD: 1})

	day := time.Date(2026, 8, 28, 23, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return day }
	tracker.Track("s1", 1_000_000, 1_000_000, llm.TierQuality, "math", false)
	require.Positive(t, tracker.DailyUsageRatio())

	tracker.now = func() time.Time { return day.Add(2 * time.Hour) } // next day
	assert.Zero(t, tracker.DailyUsageRatio())
	// The ledger itself is append-only and survives the rollover.
	assert.Len(t, tracker.Records(), 1)
}

func TestTrackerSinkReceivesRecords(t *testing.T) {
	var got []UsageRecord
	tracker := NewTracker(TrackerConfig{
		DailyBudgetUSD: 1,
		Sink:           func(r UsageRecord) { got = append(got, r) },
	})

	tracker.Track("s1", 10, 20, llm.TierEconomy, "science", false)
	tracker.Track("s1", 0, 0, llm.TierEconomy, "science", true)

	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].SessionID)
	assert.True(t, got[1].CachedHit)
}
