// Package main is the entry point of the Pisure server.
//
// main only reads configuration, builds the long-lived clients (database,
// blob store, event publisher, auth services) and hands them to the server.
// All behaviour lives in the internal packages.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sakif/pisure/internal/auth"
	"github.com/sakif/pisure/internal/authz"
	"github.com/sakif/pisure/internal/config"
	"github.com/sakif/pisure/internal/events"
	sqliteRepo "github.com/sakif/pisure/internal/repository/sqlite"
	"github.com/sakif/pisure/internal/server"
	"github.com/sakif/pisure/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// === 1. CONFIGURATION ===
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// === 2. LOGGING ===
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	// === 3. DATABASE ===
	// os.MkdirAll is `mkdir -p`; the database file itself is created by SQLite.
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	// === 4. BLOB STORE ===
	store, err := newStore(cfg)
	if err != nil {
		db.Close()
		return err
	}

	// === 5. EVENTS ===
	var publisher events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		logger.Info("publishing moderation events to Kafka",
			slog.String("brokers", strings.Join(cfg.Kafka.Brokers, ",")),
			slog.String("topic", cfg.Kafka.Topic),
		)
	} else {
		publisher = events.NewLog(logger)
	}

	// === 6. AUTH ===
	tokens, err := auth.NewTokenService(cfg.JWTSecret, auth.DefaultTokenTTL)
	if err != nil {
		db.Close()
		return err
	}

	var github *auth.GitHubProvider
	if cfg.GitHubEnabled() {
		github = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	} else {
		logger.Warn("GITHUB_CLIENT_ID not set, GitHub sign-in is disabled")
	}
	policy := authz.NewAdminList(cfg.AdminEmails...)
	if policy.Len() == 0 {
		logger.Warn("ADMIN_EMAILS not set, nobody can moderate uploads")
	} else {
		logger.Info("moderation enabled", slog.Int("administrators", policy.Len()))
	}

	// === 7. SERVER ===
	srv, err := server.New(server.Config{
		Port:           cfg.Port,
		CORSOrigins:    cfg.CORSOrigins,
		SecureCookies:  cfg.SecureCookies,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	}, server.Deps{
		DB:        db,
		Store:     store,
		Publisher: publisher,
		Tokens:    tokens,
		Passwords: auth.NewPasswordService(),
		Notifier:  auth.NewNotifier(),
		Policy:    policy,
		GitHub:    github,
	}, logger)
	if err != nil {
		db.Close()
		return err
	}

	// Start blocks until Ctrl+C or SIGTERM.
	return srv.Start()
}

func newStore(cfg config.Config) (storage.Store, error) {
	switch cfg.StorageDriver {
	case config.StorageMinIO:
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		store, err := storage.NewMinIO(ctx, storage.MinIOOptions{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
			PublicURL: cfg.MinIO.PublicURL,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to MinIO: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewLocal(cfg.StorageDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening local storage: %w", err)
		}
		return store, nil
	}
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
