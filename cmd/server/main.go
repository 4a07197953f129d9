// Package main implements the entry point for the DriveFlow API server,
// which enriches uploaded files asynchronously (AI analysis, thumbnails,
// notifications) behind a durable task pipeline.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/driveflow/driveflow-api/internal/config"
	"github.com/driveflow/driveflow-api/internal/platform/logger"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	slog.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"worker_count", cfg.Pipeline.WorkerCount,
		"max_attempts", cfg.Pipeline.MaxAttempts)

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return err
	}

	if err := runMigrations(db, appLogger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, appLogger, db)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.start()
	}()

	select {
	case <-ctx.Done():
		appLogger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	app.shutdown(shutdownTimeout)
	return nil
}

// openDatabase opens the connection pool and verifies connectivity before
// any component depends on it.
func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
