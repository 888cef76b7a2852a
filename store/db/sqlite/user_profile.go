package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/hrygo/tutorsense/store"
)

// UpsertUserProfile inserts or updates a learner profile payload.
func (d *DB) UpsertUserProfile(ctx context.Context, upsert *store.UserProfile) (*store.UserProfile, error) {
	stmt := `
		INSERT INTO user_profile (uid, payload, updated_ts)
		VALUES (?, ?, ?)
		ON CONFLICT (uid) DO UPDATE SET
			payload = excluded.payload,
			updated_ts = excluded.updated_ts
		RETURNING uid, payload, updated_ts
	`
	var p store.UserProfile
	err := d.db.QueryRowContext(ctx, stmt,
		upsert.UID,
		upsert.Payload,
		upsert.UpdatedTs,
	).Scan(
		&p.UID,
		&p.Payload,
		&p.UpdatedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert user profile")
	}
	return &p, nil
}

// GetUserProfile returns a profile, or nil when the learner is unknown.
func (d *DB) GetUserProfile(ctx context.Context, uid string) (*store.UserProfile, error) {
	query := `SELECT uid, payload, updated_ts FROM user_profile WHERE uid = ?`

	var p store.UserProfile
	err := d.db.QueryRowContext(ctx, query, uid).Scan(
		&p.UID,
		&p.Payload,
		&p.UpdatedTs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user profile")
	}
	return &p, nil
}
