package store

import "context"

// UserProfile holds one learner's long-term profile as an opaque JSON
// payload. The schema of the payload belongs to the memory layer; the store
// only guarantees durable get/put semantics.
type UserProfile struct {
	UID       string
	Payload   string // JSON
	UpdatedTs int64
}

func (s *Store) UpsertUserProfile(ctx context.Context, upsert *UserProfile) (*UserProfile, error) {
	stored, err := s.driver.UpsertUserProfile(ctx, upsert)
	if err != nil {
		return nil, err
	}
	s.profileCache.Set(stored.UID, stored, 0)
	return stored, nil
}

func (s *Store) GetUserProfile(ctx context.Context, uid string) (*UserProfile, error) {
	if cached, ok := s.profileCache.Get(uid); ok {
		return cached, nil
	}
	stored, err := s.driver.GetUserProfile(ctx, uid)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		s.profileCache.Set(uid, stored, 0)
	}
	return stored, nil
}
