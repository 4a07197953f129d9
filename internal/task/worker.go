package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/driveflow/driveflow-api/internal/events"
	"github.com/driveflow/driveflow-api/internal/store"
	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
)

// WorkerPoolConfig holds configuration for the worker pool.
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent workers process tasks.
	// Zero or negative means one worker per available CPU core.
	WorkerCount int

	// TaskDeadline is the hard wall-clock limit for one task execution,
	// measured from the claim.
	TaskDeadline time.Duration

	// PollInterval defines how often the due-task poller scans for pending
	// records whose visibility time has passed.
	PollInterval time.Duration
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with the defaults the
// pipeline was designed around.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:  runtime.NumCPU(),
		TaskDeadline: 10 * time.Minute,
		PollInterval: 5 * time.Second,
	}
}

// WorkerPool is a fixed-size set of concurrent execution units consuming
// task messages from the queue. Each unit claims the referenced record via
// an atomic status CAS, drives the retry controller over the kind's stage
// sequence under a hard deadline, and emits transition events. A poller
// goroutine replays due pending records so requeued and orphaned messages
// are never lost.
type WorkerPool struct {
	tasks    Store
	files    store.FileStore
	queue    *Queue
	retry    *RetryController
	stageSet StageSet
	emitter  events.Emitter
	config   WorkerPoolConfig
	logger   *slog.Logger
	owner    string

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewWorkerPool creates a worker pool. The stage set must already be
// validated; NewWorkerPool returns an error for an invalid set so a bad
// kind table can never reach dispatch.
func NewWorkerPool(
	tasks Store,
	files store.FileStore,
	queue *Queue,
	retry *RetryController,
	stageSet StageSet,
	emitter events.Emitter,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPool, error) {
	if err := stageSet.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stage set: %w", err)
	}

	if config.WorkerCount <= 0 {
		config.WorkerCount = runtime.NumCPU()
	}
	if config.TaskDeadline <= 0 {
		config.TaskDeadline = 10 * time.Minute
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		tasks:      tasks,
		files:      files,
		queue:      queue,
		retry:      retry,
		stageSet:   stageSet,
		emitter:    emitter,
		config:     config,
		logger:     logger.With("component", "worker_pool"),
		owner:      hostname + "-" + shortuuid.New(),
		ctx:        ctx,
		cancelFunc: cancel,
	}, nil
}

// Owner returns the claim-owner identity this pool writes into claimed records.
func (p *WorkerPool) Owner() string {
	return p.owner
}

// Start launches the worker goroutines and the due-task poller.
func (p *WorkerPool) Start() {
	p.logger.Info("starting worker pool",
		"worker_count", p.config.WorkerCount,
		"task_deadline", p.config.TaskDeadline,
		"claim_owner", p.owner)

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.wg.Add(1)
	go p.pollDueTasks()
}

// Stop shuts the pool down and waits for in-flight tasks to finish their
// current attempt.
func (p *WorkerPool) Stop() {
	p.cancelFunc()
	p.wg.Wait()
}

// worker consumes task messages until shutdown.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("worker started")

	for {
		select {
		case <-p.ctx.Done():
			logger.Debug("worker stopping")
			return

		case taskID, ok := <-p.queue.Chan():
			if !ok {
				logger.Debug("task channel closed, worker stopping")
				return
			}
			p.processTask(taskID, logger)
		}
	}
}

// processTask claims and executes one task. A lost claim race means the
// message was a redelivery and is silently discarded.
func (p *WorkerPool) processTask(taskID uuid.UUID, logger *slog.Logger) {
	claimCtx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
	rec, err := p.tasks.ClaimTask(claimCtx, taskID, p.owner)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrConflict) || store.IsNotFoundError(err) {
			logger.Debug("discarding message for unclaimable task",
				"task_id", taskID, "reason", err)
			return
		}
		logger.Error("failed to claim task", "task_id", taskID, "error", err)
		return
	}

	logger = logger.With("task_id", rec.ID, "kind", rec.Kind, "attempt", rec.AttemptCount)
	logger.Info("claimed task")

	p.emit(rec, string(StatusPending), string(StatusProcessing), "")

	stages := p.stageSet[rec.Kind]

	st := &State{}
	execErr := p.loadEntity(rec, st)
	if execErr == nil {
		// The hard deadline bounds the whole sequence; workers rely on it
		// instead of a cooperative cancellation signal.
		taskCtx, cancelTask := context.WithTimeout(p.ctx, p.config.TaskDeadline)
		execErr = p.retry.ExecuteSequence(taskCtx, rec, stages, st)
		if execErr != nil && errors.Is(execErr, context.DeadlineExceeded) {
			execErr = Transient(fmt.Errorf("task exceeded deadline of %s: %w", p.config.TaskDeadline, execErr))
		}
		cancelTask()
	}

	// Finalization must outlive the task deadline, but not block shutdown
	// forever.
	finalCtx, cancelFinal := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelFinal()

	disposition, err := p.retry.Resolve(finalCtx, rec, execErr)
	if err != nil {
		logger.Error("failed to persist task disposition",
			"disposition", disposition, "error", err)
		// The claim stays in place; the reaper will reclaim it.
		return
	}

	switch disposition {
	case DispositionCompleted:
		logger.Info("task completed", "progress", rec.Progress)
		p.emit(rec, string(StatusProcessing), string(StatusCompleted), "")
	case DispositionRequeued:
		logger.Info("task requeued", "attempt", rec.AttemptCount)
		p.emit(rec, string(StatusProcessing), string(StatusPending), rec.LastError)
	case DispositionFailed:
		logger.Warn("task failed", "error", rec.LastError)
		p.emit(rec, string(StatusProcessing), string(StatusFailed), rec.LastError)
	}
}

// loadEntity fetches the file record for entity-bound kinds into the state.
// A missing file is permanent: retrying cannot bring it back.
func (p *WorkerPool) loadEntity(rec *Record, st *State) error {
	if !rec.Kind.RequiresEntity() {
		return nil
	}

	ctx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
	defer cancel()

	file, err := p.files.GetFile(ctx, rec.EntityID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return Permanent(fmt.Errorf("entity %s no longer exists: %w", rec.EntityID, err))
		}
		return Transient(fmt.Errorf("failed to load entity %s: %w", rec.EntityID, err))
	}

	st.File = file
	return nil
}

// pollDueTasks periodically replays pending records whose visibility time
// has passed. Claim CAS makes duplicate deliveries harmless.
func (p *WorkerPool) pollDueTasks() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(p.ctx, p.config.PollInterval)
			due, err := p.tasks.GetDueTasks(ctx, cap(p.queue.Chan())-len(p.queue.Chan()))
			cancel()
			if err != nil {
				p.logger.Error("failed to poll for due tasks", "error", err)
				continue
			}

			for _, rec := range due {
				if err := p.queue.Enqueue(rec.ID); err != nil {
					if errors.Is(err, ErrQueueClosed) {
						return
					}
					// Queue full; the next tick retries.
					break
				}
			}
		}
	}
}

// emit publishes one transition event.
func (p *WorkerPool) emit(rec *Record, from, to, errMsg string) {
	p.emitter.EmitTransition(p.ctx, events.TaskTransitionEvent{
		TaskID:     rec.ID,
		EntityID:   rec.EntityID,
		Kind:       string(rec.Kind),
		From:       from,
		To:         to,
		Attempt:    rec.AttemptCount,
		Error:      errMsg,
		OccurredAt: time.Now().UTC(),
	})
}
