package store

import "context"

// SessionArchive is the durable record of one finished session, kept for
// guardian digests and progress history.
type SessionArchive struct {
	ID        int64
	SessionID string
	UID       string
	Module    string
	Payload   string // JSON summary
	StartedTs int64
	EndedTs   int64
	Messages  int32
	EndReason string
}

// FindSessionArchive filters session archive reads.
type FindSessionArchive struct {
	UID   *string
	Limit *int // newest first
}

func (s *Store) CreateSessionArchive(ctx context.Context, create *SessionArchive) (*SessionArchive, error) {
	return s.driver.CreateSessionArchive(ctx, create)
}

func (s *Store) ListSessionArchives(ctx context.Context, find *FindSessionArchive) ([]*SessionArchive, error) {
	return s.driver.ListSessionArchives(ctx, find)
}
