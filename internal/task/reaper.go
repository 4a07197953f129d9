package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/driveflow/driveflow-api/internal/events"
	"github.com/driveflow/driveflow-api/internal/store"
)

// StuckTaskError is the synthetic message stored on tasks the reaper seizes.
const StuckTaskError = "task abandoned: claim exceeded staleness threshold"

// Reaper periodically force-fails tasks whose claim has outlived the
// staleness threshold. A claim older than the hard per-task deadline means
// the worker crashed, not that the work is recoverable, so the transition
// ignores the remaining attempt budget. This is what bounds the lifetime of
// orphaned claims.
type Reaper struct {
	tasks     Store
	emitter   events.Emitter
	period    time.Duration
	threshold time.Duration
	logger    *slog.Logger

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewReaper creates a reaper sweeping every period for claims older than
// threshold.
func NewReaper(tasks Store, emitter events.Emitter, period, threshold time.Duration, logger *slog.Logger) *Reaper {
	ctx, cancel := context.WithCancel(context.Background())

	return &Reaper{
		tasks:      tasks,
		emitter:    emitter,
		period:     period,
		threshold:  threshold,
		logger:     logger.With("component", "reaper"),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the periodic sweep goroutine.
func (r *Reaper) Start() {
	r.logger.Info("starting reaper",
		"period", r.period, "staleness_threshold", r.threshold)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.period)
		defer ticker.Stop()

		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.RunOnce(r.ctx); err != nil {
					r.logger.Error("reaper sweep failed", "error", err)
				}
			}
		}
	}()
}

// Stop terminates the periodic sweep.
func (r *Reaper) Stop() {
	r.cancelFunc()
	r.wg.Wait()
}

// RunOnce performs one sweep and returns how many stuck tasks it failed.
// It is also invoked by cleanup-kind tasks for on-demand sweeps.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	stale, err := r.tasks.GetStaleTasks(ctx, r.threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to scan for stale tasks: %w", err)
	}

	if len(stale) == 0 {
		return 0, nil
	}

	r.logger.Info("found stale claims", "count", len(stale))

	reaped := 0
	for _, rec := range stale {
		if err := r.tasks.FailTask(ctx, rec.ID, rec.AttemptCount, StuckTaskError); err != nil {
			// The worker holding the claim may have finalized the task
			// between the scan and the seize; that row is no longer stuck.
			if errors.Is(err, store.ErrConflict) {
				r.logger.Debug("stale claim finalized before seize, skipping",
					"task_id", rec.ID, "claim_owner", rec.ClaimOwner)
				continue
			}
			r.logger.Error("failed to fail stuck task",
				"task_id", rec.ID, "claim_owner", rec.ClaimOwner, "error", err)
			continue
		}

		r.logger.Warn("force-failed stuck task",
			"task_id", rec.ID,
			"kind", rec.Kind,
			"claim_owner", rec.ClaimOwner,
			"claimed_at", rec.ClaimedAt)

		r.emitter.EmitTransition(ctx, events.TaskTransitionEvent{
			TaskID:     rec.ID,
			EntityID:   rec.EntityID,
			Kind:       string(rec.Kind),
			From:       string(StatusProcessing),
			To:         string(StatusFailed),
			Attempt:    rec.AttemptCount,
			Error:      StuckTaskError,
			OccurredAt: time.Now().UTC(),
		})
		reaped++
	}

	return reaped, nil
}
