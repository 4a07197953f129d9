package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Disposition is the terminal decision the retry controller reaches for one
// execution attempt.
type Disposition int

// Possible dispositions.
const (
	// DispositionCompleted means every stage succeeded.
	DispositionCompleted Disposition = iota

	// DispositionRequeued means the task was reverted to pending for a
	// later attempt (transient failure with budget left, or quota deferral).
	DispositionRequeued

	// DispositionFailed means the task reached terminal failure.
	DispositionFailed
)

// String returns the disposition name for logs and events.
func (d Disposition) String() string {
	switch d {
	case DispositionCompleted:
		return "completed"
	case DispositionRequeued:
		return "requeued"
	case DispositionFailed:
		return "failed"
	}
	return "unknown"
}

// RetryController drives a claimed task through its stage sequence and
// centralizes every escalation decision: retry versus terminal failure,
// attempt accounting, and the requeue delay. Stages only classify their
// failures; policy lives here, defined once.
type RetryController struct {
	store       Store
	maxAttempts int
	retryDelay  time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewRetryController creates a retry controller with the given policy.
func NewRetryController(store Store, maxAttempts int, retryDelay time.Duration, logger *slog.Logger) *RetryController {
	return &RetryController{
		store:       store,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		logger:      logger.With("component", "retry_controller"),
		now:         time.Now,
	}
}

// ExecuteSequence runs the stages in order against the shared state,
// recording a progress checkpoint after each one. It stops at the first
// failure and returns it unreclassified; callers pass the result to Resolve.
// Progress is non-decreasing within the attempt because checkpoints ascend.
func (c *RetryController) ExecuteSequence(ctx context.Context, rec *Record, stages []Stage, st *State) error {
	logger := c.logger.With("task_id", rec.ID, "kind", rec.Kind)

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sequence aborted before stage %q: %w", stage.Name(), err)
		}

		logger.Debug("running stage", "stage", stage.Name())
		started := c.now()

		if err := stage.Run(ctx, st); err != nil {
			return fmt.Errorf("stage %q: %w", stage.Name(), err)
		}

		rec.Progress = stage.Checkpoint()
		logger.Debug("stage completed",
			"stage", stage.Name(),
			"progress", rec.Progress,
			"duration", c.now().Sub(started))

		// Progress is advisory visibility for external observers; a write
		// failure must not fail an otherwise healthy attempt.
		if err := c.store.UpdateProgress(ctx, rec.ID, rec.Progress); err != nil {
			logger.Warn("failed to record progress checkpoint",
				"stage", stage.Name(), "error", err)
		}
	}

	return nil
}

// Resolve turns the outcome of an attempt into a state transition and
// persists it. The caller supplies a context that is still live even when
// the attempt itself was aborted by the task deadline.
//
// Classification:
//   - nil: completed.
//   - deferred: requeue after the retry delay without touching the attempt
//     count; quota deferrals never consume retry budget.
//   - canceled: the worker is shutting down, not failing; requeue
//     immediately without touching the attempt count.
//   - permanent: fail immediately regardless of attempts.
//   - transient (including deadline timeouts and unclassified errors):
//     increment the attempt count, requeue if budget remains, otherwise fail.
func (c *RetryController) Resolve(ctx context.Context, rec *Record, execErr error) (Disposition, error) {
	logger := c.logger.With("task_id", rec.ID, "kind", rec.Kind)

	if execErr == nil {
		if err := c.store.CompleteTask(ctx, rec.ID); err != nil {
			return DispositionCompleted, fmt.Errorf("failed to finalize completed task: %w", err)
		}
		rec.Status = StatusCompleted
		rec.Progress = 100
		return DispositionCompleted, nil
	}

	switch {
	case errors.Is(execErr, ErrDeferred):
		visibleAfter := c.now().Add(c.retryDelay)
		logger.Info("task deferred by quota, requeueing without retry cost",
			"visible_after", visibleAfter, "error", execErr)
		if err := c.store.RequeueTask(ctx, rec.ID, visibleAfter, rec.AttemptCount, rec.Progress, execErr.Error()); err != nil {
			return DispositionRequeued, fmt.Errorf("failed to requeue deferred task: %w", err)
		}
		rec.Status = StatusPending
		return DispositionRequeued, nil

	case errors.Is(execErr, context.Canceled):
		// Shutdown aborted the attempt mid-sequence. The process dying is
		// infrastructure, not a processing failure, so the attempt count
		// stays untouched and the task is visible again immediately for
		// the next worker to pick up.
		logger.Info("attempt interrupted by shutdown, requeueing without retry cost",
			"error", execErr)
		if err := c.store.RequeueTask(ctx, rec.ID, c.now(), rec.AttemptCount, rec.Progress, execErr.Error()); err != nil {
			return DispositionRequeued, fmt.Errorf("failed to requeue interrupted task: %w", err)
		}
		rec.Status = StatusPending
		return DispositionRequeued, nil

	case errors.Is(execErr, ErrPermanent):
		logger.Warn("permanent stage failure, finalizing task", "error", execErr)
		if err := c.store.FailTask(ctx, rec.ID, rec.AttemptCount, execErr.Error()); err != nil {
			return DispositionFailed, fmt.Errorf("failed to finalize failed task: %w", err)
		}
		rec.Status = StatusFailed
		rec.LastError = execErr.Error()
		return DispositionFailed, nil

	default:
		rec.AttemptCount++

		if rec.AttemptCount >= c.maxAttempts {
			logger.Warn("retry budget exhausted, finalizing task",
				"attempt_count", rec.AttemptCount, "error", execErr)
			if err := c.store.FailTask(ctx, rec.ID, rec.AttemptCount, execErr.Error()); err != nil {
				return DispositionFailed, fmt.Errorf("failed to finalize failed task: %w", err)
			}
			rec.Status = StatusFailed
			rec.LastError = execErr.Error()
			return DispositionFailed, nil
		}

		visibleAfter := c.now().Add(c.retryDelay)
		logger.Info("transient stage failure, scheduling retry",
			"attempt_count", rec.AttemptCount,
			"max_attempts", c.maxAttempts,
			"visible_after", visibleAfter,
			"error", execErr)
		if err := c.store.RequeueTask(ctx, rec.ID, visibleAfter, rec.AttemptCount, rec.Progress, execErr.Error()); err != nil {
			return DispositionRequeued, fmt.Errorf("failed to requeue task for retry: %w", err)
		}
		rec.Status = StatusPending
		rec.LastError = execErr.Error()
		return DispositionRequeued, nil
	}
}
