package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var dbMigrations embed.FS

func migrator(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(dbMigrations, "migrations")
	if err != nil {
		return nil, err
	}

	dst, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return nil, err
	}

	return migrate.NewWithInstance("iofs", src, "sqlite3", dst)
}

func migrateDB(db *sql.DB) error {
	m, err := migrator(db)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		// db already up to date
		break
	case err != nil:
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// OpenAt opens path migrated to exactly the given schema version.
// It exists to exercise upgrades from older schema versions.
func OpenAt(path string, version uint) (*sql.DB, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}

	m, err := migrator(db)
	if err == nil {
		err = m.Migrate(version)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		db.Close()
		return nil, fmt.Errorf("migrate to %d: %w", version, err)
	}
	return db, nil
}

// Version reports the current schema version.
func Version(db *sql.DB) (version uint, dirty bool, err error) {
	m, err := migrator(db)
	if err != nil {
		return 0, false, err
	}
	return m.Version()
}
