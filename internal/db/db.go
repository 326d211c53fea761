package db

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite"
)

func Init(driver, connection string) (*sqlx.DB, error) {
	// SQLite: create data directory if needed
	if driver == "sqlite" {
		dir := filepath.Dir(sqlitePath(connection))
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sqlx.Open(driver, connection)
	if err != nil {
		return nil, fmt.Errorf("failed to open: %w", err)
	}

	// Connection pool configuration (good defaults for all drivers)
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Postgres may still be starting when the API boots (compose, k8s)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backoff := retry.WithMaxRetries(5, retry.NewExponential(250*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		pingErr := db.PingContext(ctx)
		if pingErr != nil {
			slog.Warn("database ping failed, retrying", "driver", driver, "error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("database connected", "driver", driver)

	return db, nil
}

func Close(db *sqlx.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}

// sqlitePath strips the query string from a sqlite DSN.
func sqlitePath(connection string) string {
	connection = strings.TrimPrefix(connection, "file:")
	path, _, _ := strings.Cut(connection, "?")
	return path
}
