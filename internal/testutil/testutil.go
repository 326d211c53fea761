package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/checkpoint-edu/checkpoint/internal/config"
	"github.com/checkpoint-edu/checkpoint/internal/db"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// NewTestDB opens a migrated SQLite database in a temp directory
func NewTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	conn, err := db.Init("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	require.NoError(t, db.RunMigrations(conn.DB, "sqlite"))

	return conn
}

// NewPostgresDB starts a PostgreSQL testcontainer and returns a migrated
// connection. The test is skipped when no container runtime is available.
func NewPostgresDB(t *testing.T) *sqlx.DB {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	container, err := tcPostgres.Run(ctx,
		"postgres:16-alpine",
		tcPostgres.WithDatabase("checkpoint_test"),
		tcPostgres.WithUsername("test"),
		tcPostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := db.Init("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	require.NoError(t, db.RunMigrations(conn.DB, "pgx"))

	return conn
}

// TestConfig returns a configuration suitable for testing
func TestConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		AppName:         "Checkpoint",
		AppEnv:          "test",
		AppURL:          "http://localhost:5173",
		Port:            "0",
		CORSOrigin:      "*",
		ContactEmail:    "contact@checkpoint.test",
		DBDriver:        "sqlite",
		JWTSecret:       "test-jwt-secret-key-for-testing-only",
		JWTExpiry:       time.Hour,
		BcryptCost:      4, // bcrypt.MinCost keeps tests fast
		RateLimitAuth:   1000,
		RateLimitWindow: time.Minute,
		StorageDriver:   "local",
		UploadDir:       filepath.Join(t.TempDir(), "uploads"),
		MaxFileSize:     1 << 20,
		EmailFrom:       "Checkpoint <noreply@checkpoint.test>",
	}
}
