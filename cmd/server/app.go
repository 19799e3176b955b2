package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/studybuddy/studybuddy-api/internal/cache"
	"github.com/studybuddy/studybuddy-api/internal/config"
	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/events"
	"github.com/studybuddy/studybuddy-api/internal/generation"
	"github.com/studybuddy/studybuddy-api/internal/pipeline"
	"github.com/studybuddy/studybuddy-api/internal/platform/gemini"
	"github.com/studybuddy/studybuddy-api/internal/platform/postgres"
	"github.com/studybuddy/studybuddy-api/internal/platform/storage"
	"github.com/studybuddy/studybuddy-api/internal/progress"
	"github.com/studybuddy/studybuddy-api/internal/queue"
	"github.com/studybuddy/studybuddy-api/internal/store"
	"github.com/studybuddy/studybuddy-api/internal/worker"
)

// application holds the fully wired components of the running server.
type application struct {
	config *config.Config
	logger *slog.Logger

	db    *sql.DB
	redis *redis.Client

	jobStore  store.JobStore
	noteStore store.NoteStore
	quizStore store.QuizStore

	broker  *events.Broker
	history *events.History

	orchestrator *queue.Orchestrator
	coordinator  *pipeline.Coordinator
	pools        []*worker.Pool
}

// newApplication wires every component: stores over postgres, the
// cache/lock/staging layers over redis, the event broker, the queue
// orchestrator, the per-queue worker pools and the pipeline
// coordinator.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	db, err := setupDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// The cache layers degrade gracefully, but refusing to start on
		// an unreachable redis catches misconfiguration early.
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	jobStore := postgres.NewJobStore(db)
	noteStore := postgres.NewNoteStore(db)
	quizStore := postgres.NewQuizStore(db)

	broker := events.NewBroker(logger)
	history := events.NewHistory(redisClient, events.DefaultHistoryCap, events.DefaultHistoryTTL, logger)
	tracker := progress.NewTracker(jobStore, broker, history, logger)

	contentCache := cache.NewContentCache(redisClient, cfg.Pipeline.CacheTTL, logger)
	inflight := cache.NewInFlightLocks(redisClient, cfg.Pipeline.InFlightTTL, logger)
	staging := cache.NewStaging(redisClient, 0, logger)
	locks := cache.NewProcessingLocks(redisClient, cfg.Pipeline.ProcessingLockTTL, logger)

	blobs, err := setupBlobStore(cfg)
	if err != nil {
		return nil, err
	}

	generator, err := gemini.NewGenerator(ctx, logger, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	breaker := worker.NewBreaker(worker.BreakerConfig{
		Name:        "gemini",
		Threshold:   cfg.Pipeline.BreakerThreshold,
		ResetWindow: cfg.Pipeline.BreakerResetWindow,
	}, logger)

	queueConfig := queue.DefaultConfig()
	queueConfig.Retry = queue.RetryPolicy{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		BaseDelay:   cfg.Pipeline.RetryBaseDelay,
		Factor:      2,
	}
	queueConfig.CompletedRetention = cfg.Pipeline.CompletedRetention
	queueConfig.FailedRetention = cfg.Pipeline.FailedRetention

	orchestrator := queue.NewOrchestrator(jobStore, locks, tracker, queueConfig, logger)

	coordinator := pipeline.NewCoordinator(
		orchestrator,
		tracker,
		contentCache,
		inflight,
		staging,
		blobs,
		generator,
		breaker,
		noteStore,
		quizStore,
		db,
		pipeline.Config{},
		logger,
	)

	app := &application{
		config:       cfg,
		logger:       logger,
		db:           db,
		redis:        redisClient,
		jobStore:     jobStore,
		noteStore:    noteStore,
		quizStore:    quizStore,
		broker:       broker,
		history:      history,
		orchestrator: orchestrator,
		coordinator:  coordinator,
	}
	app.pools = buildPools(orchestrator, locks, coordinator, cfg, logger)

	return app, nil
}

// buildPools creates one worker pool per pipeline queue. Only the
// generate queue is rate limited; it is the one that talks to the AI
// service.
func buildPools(
	orchestrator *queue.Orchestrator,
	locks *cache.ProcessingLocks,
	coordinator *pipeline.Coordinator,
	cfg *config.Config,
	logger *slog.Logger,
) []*worker.Pool {
	handlers := coordinator.Handlers()
	pools := make([]*worker.Pool, 0, len(handlers))

	for queueName, handler := range handlers {
		poolConfig := worker.PoolConfig{WorkerCount: cfg.Pipeline.WorkerCount}
		if queueName == domain.QueueGenerate {
			poolConfig.RatePerSecond = cfg.Pipeline.RatePerSecond
		}
		pools = append(pools, worker.NewPool(queueName, orchestrator, locks, handler, poolConfig, logger))
	}

	return pools
}

// setupBlobStore selects the configured blob storage backend.
func setupBlobStore(cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return storage.NewS3Store(cfg.Storage.Bucket, cfg.Storage.Region)
	case "local":
		return storage.NewLocalStore(cfg.Storage.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// start launches the orchestrator and the worker pools.
func (app *application) start() error {
	if err := app.orchestrator.Start(); err != nil {
		return err
	}
	for _, pool := range app.pools {
		pool.Start()
	}
	app.logger.Info("pipeline started",
		"worker_count", app.config.Pipeline.WorkerCount,
		"max_attempts", app.config.Pipeline.MaxAttempts)
	return nil
}

// cleanup stops the pipeline and closes external connections in reverse
// dependency order.
func (app *application) cleanup() {
	for _, pool := range app.pools {
		pool.Stop()
	}
	app.orchestrator.Stop()

	if err := app.redis.Close(); err != nil {
		app.logger.Warn("failed to close redis client", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn("failed to close database", "error", err)
	}
}

// compile-time check that the gemini generator satisfies the boundary
var _ generation.Generator = (*gemini.Generator)(nil)
