package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Migrate applies the latest schema. Both drivers use idempotent DDL;
	// it is safe to call on every startup.
	Migrate(ctx context.Context) error

	// UserProfile model related methods.
	UpsertUserProfile(ctx context.Context, upsert *UserProfile) (*UserProfile, error)
	GetUserProfile(ctx context.Context, uid string) (*UserProfile, error)

	// ShortTermMemory model related methods.
	CreateShortTermMemory(ctx context.Context, create *ShortTermMemory) (*ShortTermMemory, error)
	ListShortTermMemories(ctx context.Context, find *FindShortTermMemory) ([]*ShortTermMemory, error)
	TrimShortTermMemories(ctx context.Context, uid string, keep int) error

	// UsageRecord model related methods (append-only).
	CreateUsageRecord(ctx context.Context, create *UsageRecord) (*UsageRecord, error)
	ListUsageRecords(ctx context.Context, find *FindUsageRecord) ([]*UsageRecord, error)
	SumDailyCostUSD(ctx context.Context, day string) (float64, error)

	// SessionArchive model related methods.
	CreateSessionArchive(ctx context.Context, create *SessionArchive) (*SessionArchive, error)
	ListSessionArchives(ctx context.Context, find *FindSessionArchive) ([]*SessionArchive, error)
}
