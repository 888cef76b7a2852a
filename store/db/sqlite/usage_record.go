package sqlite

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/tutorsense/store"
)

// CreateUsageRecord appends one immutable usage entry.
func (d *DB) CreateUsageRecord(ctx context.Context, create *store.UsageRecord) (*store.UsageRecord, error) {
	stmt := `
		INSERT INTO usage_record (session_id, module, tier, input_tokens, output_tokens, cost_usd, cached_hit, day, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id, session_id, module, tier, input_tokens, output_tokens, cost_usd, cached_hit, day, created_ts
	`
	var r store.UsageRecord
	err := d.db.QueryRowContext(ctx, stmt,
		create.SessionID,
		create.Module,
		create.Tier,
		create.InputTokens,
		create.OutputTokens,
		create.CostUSD,
		create.CachedHit,
		create.Day,
		create.CreatedTs,
	).Scan(
		&r.ID,
		&r.SessionID,
		&r.Module,
		&r.Tier,
		&r.InputTokens,
		&r.OutputTokens,
		&r.CostUSD,
		&r.CachedHit,
		&r.Day,
		&r.CreatedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create usage record")
	}
	return &r, nil
}

// ListUsageRecords lists usage entries, newest first.
func (d *DB) ListUsageRecords(ctx context.Context, find *store.FindUsageRecord) ([]*store.UsageRecord, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.SessionID != nil {
		where, args = append(where, "session_id = ?"), append(args, *find.SessionID)
	}
	if find.Day != nil {
		where, args = append(where, "day = ?"), append(args, *find.Day)
	}

	query := `SELECT id, session_id, module, tier, input_tokens, output_tokens, cost_usd, cached_hit, day, created_ts
		FROM usage_record
		WHERE ` + joinAnd(where) + `
		ORDER BY created_ts DESC, id DESC`

	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list usage records")
	}
	defer rows.Close()

	var list []*store.UsageRecord
	for rows.Next() {
		var r store.UsageRecord
		if err := rows.Scan(
			&r.ID,
			&r.SessionID,
			&r.Module,
			&r.Tier,
			&r.InputTokens,
			&r.OutputTokens,
			&r.CostUSD,
			&r.CachedHit,
			&r.Day,
			&r.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan usage record")
		}
		list = append(list, &r)
	}
	return list, rows.Err()
}

// SumDailyCostUSD aggregates non-cached spend for one calendar day.
func (d *DB) SumDailyCostUSD(ctx context.Context, day string) (float64, error) {
	query := `SELECT COALESCE(SUM(cost_usd), 0) FROM usage_record WHERE day = ? AND cached_hit = 0`

	var total float64
	if err := d.db.QueryRowContext(ctx, query, day).Scan(&total); err != nil {
		return 0, errors.Wrap(err, "failed to sum daily cost")
	}
	return total, nil
}
