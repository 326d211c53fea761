package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const devJWTSecret = "checkpoint-development-secret-change-me"

type Config struct {
	// Application
	AppName      string
	AppEnv       string
	AppURL       string
	Port         string
	CORSOrigin   string
	ContactEmail string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Security
	JWTSecret  string
	JWTExpiry  time.Duration
	BcryptCost int

	// Rate limiting for login, register and contact
	RateLimitAuth   int
	RateLimitWindow time.Duration
	RedisURL        string // optional, shares rate limit counters across instances

	// Uploads
	StorageDriver string // "local" or "s3"
	UploadDir     string
	MaxFileSize   int64

	// Storage (S3-compatible, only read when STORAGE_DRIVER=s3)
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string
	S3PathStyle bool // Required for MinIO and most non-AWS providers
	S3Prefix    string

	// Email
	EmailFrom    string
	ResendAPIKey string

	// Observability (optional)
	SentryDSN string
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName:      envString("APP_NAME", "Checkpoint"),
		AppEnv:       envString("APP_ENV", "development"),
		AppURL:       envString("APP_URL", "http://localhost:5173"),
		Port:         envString("PORT", "3000"),
		CORSOrigin:   envString("CORS_ORIGIN", "*"),
		ContactEmail: envString("CONTACT_EMAIL", "hello@checkpoint.local"),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/checkpoint.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"),

		// Security
		JWTSecret:  envString("JWT_SECRET", ""),
		JWTExpiry:  envDuration("JWT_EXPIRY", 168*time.Hour), // 7 days
		BcryptCost: envInt("BCRYPT_COST", 10),

		RateLimitAuth:   envPositiveInt("RATE_LIMIT_AUTH", 20),
		RateLimitWindow: envPositiveDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		RedisURL:        envString("REDIS_URL", ""),

		// Uploads
		StorageDriver: envString("STORAGE_DRIVER", "local"),
		UploadDir:     envString("UPLOAD_DIR", "./uploads"),
		MaxFileSize:   int64(envInt("MAX_FILE_SIZE", 10<<20)), // 10MB

		S3Region:    envString("S3_REGION", ""),
		S3Bucket:    envString("S3_BUCKET", ""),
		S3AccessKey: envString("S3_ACCESS_KEY", ""),
		S3SecretKey: envString("S3_SECRET_KEY", ""),
		S3Endpoint:  envString("S3_ENDPOINT", ""),
		S3PathStyle: envBool("S3_PATH_STYLE", true),
		S3Prefix:    envString("S3_PREFIX", "uploads"),

		// Email (RESEND_API_KEY optional in development, required in production)
		EmailFrom:    envString("EMAIL_FROM", "noreply@checkpoint.local"),
		ResendAPIKey: envString("RESEND_API_KEY", ""),

		SentryDSN: envString("SENTRY_DSN", ""),
	}

	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET not set, using development secret")
		cfg.JWTSecret = devJWTSecret
	}

	if cfg.StorageDriver == "s3" {
		cfg.S3Region = envRequired("S3_REGION")
		cfg.S3Bucket = envRequired("S3_BUCKET")
	}

	return cfg
}

// validateProduction ensures secrets and outbound services are configured.
// Development falls back to a fixed JWT secret and log-only email.
func validateProduction(cfg *Config) {
	if cfg.JWTSecret == "" {
		slog.Error("production deployment requires JWT_SECRET")
		os.Exit(1)
	}
	if cfg.ResendAPIKey == "" {
		slog.Error("production deployment requires RESEND_API_KEY",
			"hint", "set APP_ENV=development for local testing with email log mode")
		os.Exit(1)
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return i
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

// envPositiveInt is envInt for settings where zero or less makes no sense
func envPositiveInt(key string, def int) int {
	i := envInt(key, def)
	if i <= 0 {
		slog.Warn("config value must be positive, using default", "key", key, "value", i, "default", def)
		return def
	}
	return i
}

func envPositiveDuration(key string, def time.Duration) time.Duration {
	d := envDuration(key, def)
	if d <= 0 {
		slog.Warn("config value must be positive, using default", "key", key, "value", d, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Sanitized returns a copy of the config without secrets or credentials.
// Safe to log at startup.
func (c *Config) Sanitized() *Config {
	return &Config{
		AppName:       c.AppName,
		AppEnv:        c.AppEnv,
		AppURL:        c.AppURL,
		Port:          c.Port,
		CORSOrigin:    c.CORSOrigin,
		DBDriver:      c.DBDriver,
		JWTExpiry:     c.JWTExpiry,
		BcryptCost:    c.BcryptCost,
		StorageDriver: c.StorageDriver,
		UploadDir:     c.UploadDir,
		MaxFileSize:   c.MaxFileSize,
		S3Region:      c.S3Region,
		S3Bucket:      c.S3Bucket,
		S3Endpoint:    c.S3Endpoint,
		EmailFrom:     c.EmailFrom,
	}
}
