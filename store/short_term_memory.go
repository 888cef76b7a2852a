package store

import "context"

// ShortTermMemory is one session digest in a learner's rolling window. The
// window is ring-bounded; appends trim the oldest rows beyond the limit.
type ShortTermMemory struct {
	ID        int64
	UID       string
	SessionID string
	Payload   string // JSON
	CreatedTs int64
}

// FindShortTermMemory filters short-term memory reads.
type FindShortTermMemory struct {
	UID   string
	Limit int // newest first
}

func (s *Store) CreateShortTermMemory(ctx context.Context, create *ShortTermMemory) (*ShortTermMemory, error) {
	created, err := s.driver.CreateShortTermMemory(ctx, create)
	if err != nil {
		return nil, err
	}
	if s.shortTermLimit > 0 {
		if err := s.driver.TrimShortTermMemories(ctx, create.UID, s.shortTermLimit); err != nil {
			return nil, err
		}
	}
	return created, nil
}

func (s *Store) ListShortTermMemories(ctx context.Context, find *FindShortTermMemory) ([]*ShortTermMemory, error) {
	return s.driver.ListShortTermMemories(ctx, find)
}
