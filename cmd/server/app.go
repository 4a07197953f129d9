package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/driveflow/driveflow-api/internal/analysis"
	"github.com/driveflow/driveflow-api/internal/api"
	"github.com/driveflow/driveflow-api/internal/config"
	"github.com/driveflow/driveflow-api/internal/events"
	"github.com/driveflow/driveflow-api/internal/notify"
	"github.com/driveflow/driveflow-api/internal/platform/gemini"
	"github.com/driveflow/driveflow-api/internal/platform/line"
	"github.com/driveflow/driveflow-api/internal/platform/minio"
	"github.com/driveflow/driveflow-api/internal/platform/ollama"
	"github.com/driveflow/driveflow-api/internal/platform/postgres"
	"github.com/driveflow/driveflow-api/internal/platform/qdrant"
	"github.com/driveflow/driveflow-api/internal/quota"
	"github.com/driveflow/driveflow-api/internal/stages"
	"github.com/driveflow/driveflow-api/internal/task"
	"github.com/driveflow/driveflow-api/internal/thumbnail"
	"github.com/driveflow/driveflow-api/internal/vectorindex"
)

// application holds the assembled components of the running server: the HTTP
// listener plus the background pipeline (worker pool, reaper, queue).
type application struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB

	server *api.Server
	queue  *task.Queue
	pool   *task.WorkerPool
	reaper *task.Reaper
}

// newApplication wires every component together: stores, object storage,
// analyzers behind the quota governor, the stage table, and the task
// pipeline feeding the HTTP layer.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	taskStore := postgres.NewPostgresTaskStore(db)
	fileStore := postgres.NewPostgresFileStore(db)

	objects, err := minio.NewObjectStore(ctx, logger, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	var index vectorindex.Index = vectorindex.Nop{}
	if cfg.Vector.URL != "" {
		index, err = qdrant.NewIndex(logger, cfg.Vector)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector index: %w", err)
		}
	} else {
		logger.Info("no vector database configured, search indexing disabled")
	}

	var notifier notify.Notifier = line.NopNotifier{}
	if cfg.Messaging.ChannelSecret != "" && cfg.Messaging.ChannelToken != "" {
		notifier, err = line.NewNotifier(logger, cfg.Messaging)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize notifier: %w", err)
		}
	} else {
		logger.Info("no messaging credentials configured, notifications disabled")
	}

	geminiAnalyzer, err := gemini.NewGeminiAnalyzer(ctx, logger, cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gemini analyzer: %w", err)
	}
	ollamaAnalyzer, err := ollama.NewOllamaAnalyzer(logger, cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama analyzer: %w", err)
	}
	analyzers := map[string]analysis.Analyzer{
		gemini.Provider: geminiAnalyzer,
		ollama.Provider: ollamaAnalyzer,
	}

	governor, err := quota.NewGovernor(
		map[string]quota.Limits{
			gemini.Provider: {
				PerMinute: cfg.Quota.PerMinute,
				PerDay:    cfg.Quota.PerDay,
			},
		},
		cfg.Quota.FallbackProvider,
		cfg.Quota.Timezone,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize quota governor: %w", err)
	}

	emitter := events.NewInMemoryEmitter(logger)
	emitter.RegisterHandler(events.NewLoggingHandler(logger))
	emitter.RegisterHandler(notify.NewTransitionHandler(fileStore, notifier, logger))

	queue := task.NewQueue(cfg.Pipeline.QueueSize, logger)
	reaper := task.NewReaper(taskStore, emitter,
		cfg.Pipeline.ReaperPeriod, cfg.Pipeline.StalenessThreshold, logger)

	stageSet := stages.BuildSet(stages.Dependencies{
		Objects:    objects,
		Files:      fileStore,
		Index:      index,
		Notifier:   notifier,
		Governor:   governor,
		Analyzers:  analyzers,
		Primary:    gemini.Provider,
		Thumbnails: thumbnail.NewGenerator(cfg.Storage.ThumbnailSize, logger),
		Reaper:     reaper,
		Logger:     logger,
	})

	retry := task.NewRetryController(taskStore,
		cfg.Pipeline.MaxAttempts, cfg.Pipeline.RetryDelay, logger)

	pool, err := task.NewWorkerPool(taskStore, fileStore, queue, retry, stageSet, emitter,
		task.WorkerPoolConfig{
			WorkerCount:  cfg.Pipeline.WorkerCount,
			TaskDeadline: cfg.Pipeline.TaskDeadline,
			PollInterval: cfg.Pipeline.PollInterval,
		}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize worker pool: %w", err)
	}

	dispatcher := task.NewDispatcher(taskStore, fileStore, queue, logger)
	server := api.NewServer(cfg.Server,
		api.NewTaskHandler(dispatcher),
		api.NewQuotaHandler(governor),
		api.NewHealthHandler(),
		logger)

	return &application{
		cfg:    cfg,
		logger: logger,
		db:     db,
		server: server,
		queue:  queue,
		pool:   pool,
		reaper: reaper,
	}, nil
}

// start launches the background pipeline and then the HTTP listener. It
// blocks until the listener stops.
func (a *application) start() error {
	a.pool.Start()
	a.reaper.Start()

	a.logger.Info("starting HTTP server", "port", a.cfg.Server.Port)
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// shutdown drains the server and pipeline in dependency order: stop accepting
// requests, stop the reaper and workers, close the queue, then the database.
func (a *application) shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("HTTP server shutdown failed", "error", err)
	}

	a.reaper.Stop()
	a.queue.Close()
	a.pool.Stop()

	if err := a.db.Close(); err != nil {
		a.logger.Error("database close failed", "error", err)
	}

	a.logger.Info("shutdown complete")
}
