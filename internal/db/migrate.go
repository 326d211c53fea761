package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrationsFS embed.FS

// dialectMap maps database drivers to Goose dialect names
var dialectMap = map[string]string{
	"sqlite": "sqlite3",
	"pgx":    "postgres",
}

// migrationDirs maps Goose dialects to their migration subdirectory
var migrationDirs = map[string]string{
	"sqlite3":  "migrations/sqlite",
	"postgres": "migrations/postgres",
}

// getDialect returns the Goose dialect for the given driver
func getDialect(driver string) string {
	dialect, ok := dialectMap[driver]
	if ok {
		return dialect
	}
	return driver // fallback to driver name
}

// setupGoose configures Goose with the correct dialect and filesystem
func setupGoose(driver string) error {
	dialect := getDialect(driver)

	dir, ok := migrationDirs[dialect]
	if !ok {
		return fmt.Errorf("no migrations for driver %q", driver)
	}

	err := goose.SetDialect(dialect)
	if err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	migrationsDir, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("failed to get migrations directory: %w", err)
	}

	goose.SetBaseFS(migrationsDir)
	goose.SetLogger(goose.NopLogger())
	return nil
}

func RunMigrations(db *sql.DB, driver string) error {
	err := setupGoose(driver)
	if err != nil {
		return err
	}

	err = goose.Up(db, ".")
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("migrations completed successfully")
	return nil
}

func MigrateDown(db *sql.DB, driver string) error {
	err := setupGoose(driver)
	if err != nil {
		return err
	}

	err = goose.Down(db, ".")
	if err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	slog.Info("rolled back one migration")
	return nil
}

// MigrationVersion returns the currently applied migration version.
func MigrationVersion(db *sql.DB, driver string) (int64, error) {
	err := setupGoose(driver)
	if err != nil {
		return 0, err
	}

	version, err := goose.GetDBVersion(db)
	if err != nil {
		return 0, fmt.Errorf("failed to read migration version: %w", err)
	}
	return version, nil
}
