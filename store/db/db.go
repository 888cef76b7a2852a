// Package db selects the concrete store driver from the instance profile.
package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/tutorsense/internal/profile"
	"github.com/hrygo/tutorsense/store"
	"github.com/hrygo/tutorsense/store/db/postgres"
	"github.com/hrygo/tutorsense/store/db/sqlite"
)

// NewDBDriver creates a new database driver based on the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "sqlite":
		return sqlite.NewDB(profile)
	case "postgres":
		return postgres.NewDB(profile)
	default:
		return nil, errors.Errorf("unsupported database driver: %s", profile.Driver)
	}
}
