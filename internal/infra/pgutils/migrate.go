package pgutils

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Migrate applies the pending up migrations stored under dir in fsys and
// returns the resulting version. Versions are tracked in table, or in the
// golang-migrate default table when table is empty.
func Migrate(db *sql.DB, fsys fs.FS, dir, table string) (uint, error) {
	if table == "" {
		table = postgres.DefaultMigrationsTable
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
	if err != nil {
		return 0, fmt.Errorf("postgres driver: %w", err)
	}

	src, err := iofs.New(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("migration source %q: %w", dir, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return 0, fmt.Errorf("migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate up: %w", err)
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("read version: %w", err)
	}

	if dirty {
		return version, fmt.Errorf("version %d is dirty", version)
	}

	return version, nil
}
