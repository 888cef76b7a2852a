package store

import (
	"context"
	"time"

	"github.com/hrygo/tutorsense/ai/cache"
	"github.com/hrygo/tutorsense/internal/profile"
)

const (
	defaultShortTermLimit = 10
	profileCacheCapacity  = 1000
	profileCacheTTL       = 10 * time.Minute
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// shortTermLimit bounds each learner's short-term memory ring.
	shortTermLimit int

	// profileCache keeps hot learner profiles out of the database. Writes
	// go through the cache, so a single process never reads stale rows.
	profileCache *cache.LRU[string, *UserProfile]
}

// New creates a new instance of Store.
func New(driver Driver, p *profile.Profile) *Store {
	limit := defaultShortTermLimit
	if p != nil && p.ShortTermEntries > 0 {
		limit = p.ShortTermEntries
	}

	return &Store{
		driver:         driver,
		profile:        p,
		shortTermLimit: limit,
		profileCache:   cache.NewLRU[string, *UserProfile](profileCacheCapacity, profileCacheTTL),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

// Migrate applies the latest schema.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	s.profileCache.Clear()
	return s.driver.Close()
}
