package store

import "context"

// UsageRecord is one immutable provider usage entry. Records are append-only;
// there is deliberately no update or delete surface.
type UsageRecord struct {
	ID           int64
	SessionID    string
	Module       string
	Tier         string
	InputTokens  int32
	OutputTokens int32
	CostUSD      float64
	CachedHit    bool
	Day          string // YYYY-MM-DD
	CreatedTs    int64
}

// FindUsageRecord filters usage record reads.
type FindUsageRecord struct {
	SessionID *string
	Day       *string
	Limit     *int
}

func (s *Store) CreateUsageRecord(ctx context.Context, create *UsageRecord) (*UsageRecord, error) {
	return s.driver.CreateUsageRecord(ctx, create)
}

func (s *Store) ListUsageRecords(ctx context.Context, find *FindUsageRecord) ([]*UsageRecord, error) {
	return s.driver.ListUsageRecords(ctx, find)
}

// SumDailyCostUSD aggregates non-cached spend for one calendar day.
func (s *Store) SumDailyCostUSD(ctx context.Context, day string) (float64, error) {
	return s.driver.SumDailyCostUSD(ctx, day)
}
