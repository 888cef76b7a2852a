package sqlite

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/tutorsense/store"
)

// CreateShortTermMemory appends one session digest to the learner's ring.
func (d *DB) CreateShortTermMemory(ctx context.Context, create *store.ShortTermMemory) (*store.ShortTermMemory, error) {
	stmt := `
		INSERT INTO short_term_memory (uid, session_id, payload, created_ts)
		VALUES (?, ?, ?, ?)
		RETURNING id, uid, session_id, payload, created_ts
	`
	var m store.ShortTermMemory
	err := d.db.QueryRowContext(ctx, stmt,
		create.UID,
		create.SessionID,
		create.Payload,
		create.CreatedTs,
	).Scan(
		&m.ID,
		&m.UID,
		&m.SessionID,
		&m.Payload,
		&m.CreatedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create short term memory")
	}
	return &m, nil
}

// ListShortTermMemories lists a learner's digests, newest first.
func (d *DB) ListShortTermMemories(ctx context.Context, find *store.FindShortTermMemory) ([]*store.ShortTermMemory, error) {
	query := `SELECT id, uid, session_id, payload, created_ts
		FROM short_term_memory
		WHERE uid = ?
		ORDER BY created_ts DESC, id DESC`
	args := []any{find.UID}

	if find.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list short term memories")
	}
	defer rows.Close()

	var list []*store.ShortTermMemory
	for rows.Next() {
		var m store.ShortTermMemory
		if err := rows.Scan(&m.ID, &m.UID, &m.SessionID, &m.Payload, &m.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan short term memory")
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}

// TrimShortTermMemories drops all but the newest keep rows for a learner.
func (d *DB) TrimShortTermMemories(ctx context.Context, uid string, keep int) error {
	stmt := `
		DELETE FROM short_term_memory
		WHERE uid = ? AND id NOT IN (
			SELECT id FROM short_term_memory
			WHERE uid = ?
			ORDER BY created_ts DESC, id DESC
			LIMIT ?
		)
	`
	if _, err := d.db.ExecContext(ctx, stmt, uid, uid, keep); err != nil {
		return errors.Wrap(err, "failed to trim short term memories")
	}
	return nil
}
