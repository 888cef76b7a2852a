package optimizer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/tutorsense/ai/core/llm"
)

// UsageRecord is one immutable entry in the append-only spend ledger.
type UsageRecord struct {
	Timestamp    time.Time
	SessionID    string
	Module       string
	Tier         llm.Tier
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	CachedHit    bool
}

// TrackResult reports the outcome of recording one turn's usage.
type TrackResult struct {
	CostUSD           float64
	DailyUsagePercent float64
	// ShouldFallback is set once daily usage crosses the budget guard;
	// callers downgrade to the economy tier or serve cached content.
	ShouldFallback bool
	// CostAlert is set when the daily spend crosses the alert threshold.
	CostAlert bool
}

// Tracker keeps the spend ledger and the daily budget control loop.
// Records are handed to the sink (when configured) for asynchronous
// persistence; the sink must never block.
type Tracker struct {
	mu       sync.Mutex
	prices   map[llm.Tier]TierPrice
	records  []UsageRecord
	dailyUSD float64
	day      string // calendar day of dailyUSD, "2006-01-02"

	budgetUSD float64
	alertUSD  float64
	sink      func(UsageRecord)
	now       func() time.Time
}

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	// DailyBudgetUSD is the spend ceiling the usage ratio is measured against.
	DailyBudgetUSD float64

	// CostAlertUSD is the daily spend that raises a cost alert.
	CostAlertUSD float64

	// Prices overrides the pricing table; nil uses DefaultTierPrices.
	Prices map[llm.Tier]TierPrice

	// Sink receives each appended record, e.g. an async persister enqueue.
	Sink func(UsageRecord)
}

// NewTracker creates a usage tracker.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.DailyBudgetUSD <= 0 {
		cfg.DailyBudgetUSD = 1.0
	}
	if cfg.CostAlertUSD <= 0 {
		cfg.CostAlertUSD = cfg.DailyBudgetUSD * 0.8
	}
	prices := cfg.Prices
	if prices == nil {
		prices = DefaultTierPrices()
	}
	return &Tracker{
		prices:    prices,
		budgetUSD: cfg.DailyBudgetUSD,
		alertUSD:  cfg.CostAlertUSD,
		sink:      cfg.Sink,
		now:       time.Now,
	}
}

// Track appends a usage record for one turn. Cached turns cost zero.
// The daily usage percent is non-decreasing within a calendar day and
// resets only at the day boundary.
func (t *Tracker) Track(sessionID string, inputTokens, outputTokens int, tier llm.Tier, module string, cached bool) TrackResult {
	now := t.now()

	cost := 0.0
	if !cached {
		price := t.prices[tier]
		cost = float64(inputTokens)/1e6*price.InputUSD + float64(outputTokens)/1e6*price.OutputUSD
	}

	record := UsageRecord{
		Timestamp:    now,
		SessionID:    sessionID,
		Module:       module,
		Tier:         tier,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		CachedHit:    cached,
	}

	t.mu.Lock()
	t.rolloverLocked(now)
	t.records = append(t.records, record)
	t.dailyUSD += cost
	daily := t.dailyUSD
	t.mu.Unlock()

	if t.sink != nil {
		t.sink(record)
	}

	result := TrackResult{
		CostUSD:           cost,
		DailyUsagePercent: daily / t.budgetUSD * 100,
		ShouldFallback:    daily/t.budgetUSD >= budgetGuardRatio,
		CostAlert:         daily >= t.alertUSD,
	}
	if result.CostAlert {
		slog.Warn("cost alert: daily spend crossed threshold",
			"daily_usd", daily, "threshold_usd", t.alertUSD)
	}
	return result
}

// DailyUsageRatio returns today's spend as a fraction of the daily budget.
func (t *Tracker) DailyUsageRatio() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked(t.now())
	return t.dailyUSD / t.budgetUSD
}

// Records returns a copy of the ledger.
func (t *Tracker) Records() []UsageRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]UsageRecord, len(t.records))
	copy(out, t.records)
	return out
}

// rolloverLocked resets the daily accumulator at the calendar day boundary.
// Lock must be held.
func (t *Tracker) rolloverLocked(now time.Time) {
	day := now.Format("2006-01-02")
	if t.day != day {
		t.day = day
		t.dailyUSD = 0
	}
}
