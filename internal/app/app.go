package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/checkpoint-edu/checkpoint/internal/auth"
	"github.com/checkpoint-edu/checkpoint/internal/config"
	"github.com/checkpoint-edu/checkpoint/internal/db"
	"github.com/checkpoint-edu/checkpoint/internal/middleware"
	"github.com/checkpoint-edu/checkpoint/internal/repository"
	"github.com/checkpoint-edu/checkpoint/internal/service"
	"github.com/checkpoint-edu/checkpoint/internal/storage"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

// App holds the dependency graph, assembled once at startup
type App struct {
	Cfg          *config.Config
	DB           *sqlx.DB
	Storage      storage.Storage
	UserService  *service.UserService
	FileService  *service.FileService
	EmailService *service.EmailService
	Limiter      middleware.Limiter

	redis       *redis.Client
	rateLimiter *middleware.RateLimiter
}

func New(cfg *config.Config) (*App, error) {
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	fileStorage, err := storage.New(cfg)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := NewWithDeps(cfg, database, fileStorage)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = client.Ping(ctx).Err()
		if err != nil {
			_ = client.Close()
			_ = a.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		a.redis = client
		a.Limiter = middleware.NewRedisLimiter(client, cfg.RateLimitAuth, cfg.RateLimitWindow)
		slog.Info("rate limiting backed by redis")
	}

	return a, nil
}

// NewWithDeps wires services over an open database and storage backend.
// Rate limiting stays in process memory.
func NewWithDeps(cfg *config.Config, database *sqlx.DB, fileStorage storage.Storage) *App {
	userRepository := repository.NewUserRepository(database)
	uploadRepository := repository.NewUploadRepository(database)

	emailService := service.NewEmailService(
		cfg.ResendAPIKey,
		cfg.EmailFrom,
		cfg.ContactEmail,
		cfg.AppURL,
		cfg.AppName,
		!cfg.IsProduction(),
	)

	transactor := db.NewTransactor(database)

	userService := service.NewUserService(
		userRepository,
		uploadRepository,
		fileStorage,
		auth.NewBcryptHasher(cfg.BcryptCost),
		auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiry),
		transactor,
		emailService,
	)
	fileService := service.NewFileService(userRepository, uploadRepository, fileStorage, transactor, cfg.MaxFileSize)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitAuth, cfg.RateLimitWindow)

	return &App{
		Cfg:          cfg,
		DB:           database,
		Storage:      fileStorage,
		UserService:  userService,
		FileService:  fileService,
		EmailService: emailService,
		Limiter:      rateLimiter,
		rateLimiter:  rateLimiter,
	}
}

func (a *App) Close() error {
	var errs []error
	a.rateLimiter.Close()
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, db.Close(a.DB))
	return errors.Join(errs...)
}
