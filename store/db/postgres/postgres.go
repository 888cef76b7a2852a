package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/hrygo/tutorsense/internal/profile"
	"github.com/hrygo/tutorsense/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the PostgreSQL database named by the profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	pgDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	pgDB.SetMaxOpenConns(10)
	pgDB.SetMaxIdleConns(5)

	driver := DB{db: pgDB, profile: profile}

	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

const latestSchema = `
CREATE TABLE IF NOT EXISTS user_profile (
	uid TEXT PRIMARY KEY,
	payload TEXT NOT NULL DEFAULT '{}',
	updated_ts BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS short_term_memory (
	id BIGSERIAL PRIMARY KEY,
	uid TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL,
	created_ts BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_short_term_memory_uid_created ON short_term_memory (uid, created_ts);

CREATE TABLE IF NOT EXISTS usage_record (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	module TEXT NOT NULL,
	tier TEXT NOT NULL,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	cached_hit BOOLEAN NOT NULL DEFAULT FALSE,
	day TEXT NOT NULL,
	created_ts BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_record_day ON usage_record (day);

CREATE TABLE IF NOT EXISTS session_archive (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL UNIQUE,
	uid TEXT NOT NULL,
	module TEXT NOT NULL,
	payload TEXT NOT NULL,
	started_ts BIGINT NOT NULL,
	ended_ts BIGINT NOT NULL,
	messages INTEGER NOT NULL DEFAULT 0,
	end_reason TEXT NOT NULL DEFAULT 'requested'
);

CREATE INDEX IF NOT EXISTS idx_session_archive_uid ON session_archive (uid);
`

// Migrate applies the latest schema. All DDL is idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, latestSchema); err != nil {
		return errors.Wrap(err, "failed to apply latest schema")
	}
	return nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func joinAnd(where []string) string {
	return strings.Join(where, " AND ")
}
