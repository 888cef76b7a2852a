package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/tutorsense/ai/memory"
)

// MemoryStore returns a memory.Store view over the durable store. Profiles
// and short-term entries travel as JSON payloads; the store stays agnostic
// of the memory layer's schema.
func (s *Store) MemoryStore() memory.Store {
	return &memoryAdapter{store: s}
}

type memoryAdapter struct {
	store *Store
}

func (a *memoryAdapter) GetProfile(ctx context.Context, userID string) (*memory.LongTermProfile, error) {
	row, err := a.store.GetUserProfile(ctx, userID)
	if err != nil || row == nil {
		return nil, err
	}

	var p memory.LongTermProfile
	if err := json.Unmarshal([]byte(row.Payload), &p); err != nil {
		return nil, errors.Wrapf(err, "decode profile payload for user %s", userID)
	}
	return &p, nil
}

func (a *memoryAdapter) PutProfile(ctx context.Context, p *memory.LongTermProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encode profile payload")
	}
	_, err = a.store.UpsertUserProfile(ctx, &UserProfile{
		UID:       p.UserID,
		Payload:   string(raw),
		UpdatedTs: time.Now().Unix(),
	})
	return err
}

func (a *memoryAdapter) RecentEntries(ctx context.Context, userID string, limit int) ([]*memory.ShortTermEntry, error) {
	rows, err := a.store.ListShortTermMemories(ctx, &FindShortTermMemory{UID: userID, Limit: limit})
	if err != nil {
		return nil, err
	}

	entries := make([]*memory.ShortTermEntry, 0, len(rows))
	for _, row := range rows {
		var entry memory.ShortTermEntry
		if err := json.Unmarshal([]byte(row.Payload), &entry); err != nil {
			return nil, errors.Wrapf(err, "decode short-term entry %d", row.ID)
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

func (a *memoryAdapter) AppendEntry(ctx context.Context, userID string, entry *memory.ShortTermEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "encode short-term entry")
	}
	_, err = a.store.CreateShortTermMemory(ctx, &ShortTermMemory{
		UID:       userID,
		SessionID: entry.SessionID,
		Payload:   string(raw),
		CreatedTs: entry.Date.Unix(),
	})
	return err
}
