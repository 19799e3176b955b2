package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/studybuddy/studybuddy-api/internal/cache"
	"github.com/studybuddy/studybuddy-api/internal/domain"
	"github.com/studybuddy/studybuddy-api/internal/platform/logger"
	"github.com/studybuddy/studybuddy-api/internal/queue"
)

// Handler executes one job. Errors are classified through the queue
// package's taxonomy: retryable errors re-enter the retry machinery,
// anything else fails the job terminally. Handlers must be idempotent
// because a stalled or retried job re-executes from the top.
type Handler func(ctx context.Context, job *domain.JobRecord) error

// PoolConfig holds configuration options for a worker pool.
type PoolConfig struct {
	// WorkerCount determines how many concurrent workers process jobs.
	// If zero or negative, defaults to 1.
	WorkerCount int

	// RatePerSecond caps dispatches per second across the pool,
	// protecting the downstream AI dependency. Zero disables limiting.
	RatePerSecond float64

	// RateBurst is the limiter burst; defaults to WorkerCount.
	RateBurst int
}

// Pool runs a bounded set of workers against one named queue. Each
// worker blocks on the queue until work arrives, passes the rate
// limiter, claims the job's processing lock, renews it at half the lock
// TTL while the handler runs, and reports the outcome back to the
// orchestrator.
type Pool struct {
	queueName string
	orch      *queue.Orchestrator
	locks     *cache.ProcessingLocks
	handler   Handler
	config    PoolConfig
	limiter   *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewPool creates a worker pool for the named queue.
func NewPool(
	queueName string,
	orch *queue.Orchestrator,
	locks *cache.ProcessingLocks,
	handler Handler,
	config PoolConfig,
	log *slog.Logger,
) *Pool {
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}

	var limiter *rate.Limiter
	if config.RatePerSecond > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = config.WorkerCount
		}
		limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), burst)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		queueName: queueName,
		orch:      orch,
		locks:     locks,
		handler:   handler,
		config:    config,
		limiter:   limiter,
		ctx:       ctx,
		cancel:    cancel,
		logger:    log.With("component", "worker_pool", "queue", queueName),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop signals all workers to finish and waits for them. In-flight
// handlers run to completion; nothing new is dispatched.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}

// worker pulls jobs from the queue until the pool is stopped.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)

	for {
		job, err := p.orch.Dequeue(p.ctx, p.queueName)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrQueueClosed) {
				p.logger.Debug("stopping worker", "worker_id", id)
				return
			}
			p.logger.Error("dequeue failed", "worker_id", id, "error", err)
			continue
		}

		if p.limiter != nil {
			if err := p.limiter.Wait(p.ctx); err != nil {
				// Pool is shutting down; requeue happens via recovery.
				return
			}
		}

		p.process(job, id)
	}
}

// process executes a single job under the processing lock.
func (p *Pool) process(job *domain.JobRecord, workerID int) {
	workerName := fmt.Sprintf("%s-%d", p.queueName, workerID)
	jobLogger := p.logger.With(
		"job_id", job.ID,
		"correlation_id", job.CorrelationID,
		"worker_id", workerID,
	)
	ctx := logger.WithContext(context.Background(), jobLogger)

	if !p.locks.Acquire(ctx, job.ID, p.queueName, workerName) {
		// Another worker already claimed this job, e.g. a stalled requeue
		// racing the original worker's recovery.
		jobLogger.Warn("job already claimed by another worker, skipping")
		return
	}
	defer p.locks.Release(ctx, job.ID, p.queueName)

	renewCtx, stopRenewal := context.WithCancel(ctx)
	defer stopRenewal()
	p.wg.Add(1)
	go p.renewLock(renewCtx, job)

	if err := p.orch.MarkActive(ctx, job); err != nil {
		jobLogger.Error("failed to mark job active", "error", err)
		return
	}

	jobLogger.Info("processing job", "attempt", job.AttemptCount)

	if err := p.handler(ctx, job); err != nil {
		p.orch.HandleFailure(ctx, job, err)
		return
	}

	// Handlers advance the job to its next stage or settle it terminally
	// themselves. A job still active here finished its last stage without
	// either, so close it out.
	if job.Status == domain.JobStatusActive {
		p.orch.Complete(ctx, job)
	}
	jobLogger.Info("stage finished", "queue", p.queueName, "status", job.Status)
}

// renewLock extends the processing lock at half its TTL until the job
// finishes. Renewing well before expiry avoids false-positive stalled
// detection under transient slowness.
func (p *Pool) renewLock(ctx context.Context, job *domain.JobRecord) {
	defer p.wg.Done()

	interval := p.locks.TTL() / 2
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.locks.Renew(ctx, job.ID, p.queueName)
		}
	}
}
