package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/tutorsense/internal/profile"
	"github.com/hrygo/tutorsense/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database named by the profile DSN.
//
// Pragmas follow the modernc.org/sqlite convention (`_pragma=` prefix):
// WAL journal mode avoids writer locking, the busy timeout covers the rare
// concurrent write, and foreign keys stay explicitly off.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// SQLite with WAL performs best on a single connection.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	driver := DB{db: sqliteDB, profile: profile}

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
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uid TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL,
	created_ts BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_short_term_memory_uid_created ON short_term_memory (uid, created_ts);

CREATE TABLE IF NOT EXISTS usage_record (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	module TEXT NOT NULL,
	tier TEXT NOT NULL,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd REAL NOT NULL DEFAULT 0,
	cached_hit INTEGER NOT NULL DEFAULT 0,
	day TEXT NOT NULL,
	created_ts BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_record_day ON usage_record (day);

CREATE TABLE IF NOT EXISTS session_archive (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
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

func joinAnd(where []string) string {
	return strings.Join(where, " AND ")
}
