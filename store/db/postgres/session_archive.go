package postgres

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/tutorsense/store"
)

// CreateSessionArchive stores the durable record of a finished session.
func (d *DB) CreateSessionArchive(ctx context.Context, create *store.SessionArchive) (*store.SessionArchive, error) {
	stmt := `
		INSERT INTO session_archive (session_id, uid, module, payload, started_ts, ended_ts, messages, end_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			ended_ts = EXCLUDED.ended_ts,
			messages = EXCLUDED.messages,
			end_reason = EXCLUDED.end_reason
		RETURNING id, session_id, uid, module, payload, started_ts, ended_ts, messages, end_reason
	`
	var a store.SessionArchive
	err := d.db.QueryRowContext(ctx, stmt,
		create.SessionID,
		create.UID,
		create.Module,
		create.Payload,
		create.StartedTs,
		create.EndedTs,
		create.Messages,
		create.EndReason,
	).Scan(
		&a.ID,
		&a.SessionID,
		&a.UID,
		&a.Module,
		&a.Payload,
		&a.StartedTs,
		&a.EndedTs,
		&a.Messages,
		&a.EndReason,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session archive")
	}
	return &a, nil
}

// ListSessionArchives lists archived sessions, newest first.
func (d *DB) ListSessionArchives(ctx context.Context, find *store.FindSessionArchive) ([]*store.SessionArchive, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.UID != nil {
		where, args = append(where, "uid = "+placeholder(len(args)+1)), append(args, *find.UID)
	}

	query := `SELECT id, session_id, uid, module, payload, started_ts, ended_ts, messages, end_reason
		FROM session_archive
		WHERE ` + joinAnd(where) + `
		ORDER BY ended_ts DESC, id DESC`

	if find.Limit != nil {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list session archives")
	}
	defer rows.Close()

	var list []*store.SessionArchive
	for rows.Next() {
		var a store.SessionArchive
		if err := rows.Scan(
			&a.ID,
			&a.SessionID,
			&a.UID,
			&a.Module,
			&a.Payload,
			&a.StartedTs,
			&a.EndedTs,
			&a.Messages,
			&a.EndReason,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan session archive")
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}
