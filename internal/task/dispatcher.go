package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/driveflow/driveflow-api/internal/store"
	"github.com/google/uuid"
)

// StatusView is the externally observable state of a task, served to the
// web layer by the status operation.
type StatusView struct {
	TaskID       uuid.UUID `json:"task_id"`
	EntityID     uuid.UUID `json:"entity_id"`
	Kind         Kind      `json:"kind"`
	Status       Status    `json:"status"`
	Progress     int       `json:"progress_percent"`
	AttemptCount int       `json:"attempt_count"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Dispatcher is the enqueue-side contract invoked by the web layer. It
// creates task records, deduplicates per entity, and exposes the reprocess
// and status operations. Post-enqueue processing failures never propagate
// to submission callers; submission errors are only validation errors.
type Dispatcher struct {
	tasks  Store
	files  store.FileStore
	queue  *Queue
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(tasks Store, files store.FileStore, queue *Queue, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		tasks:  tasks,
		files:  files,
		queue:  queue,
		logger: logger.With("component", "dispatcher"),
	}
}

// Submit validates the request, creates a pending task record, and enqueues
// a message referencing it. Submitting for an entity that already has a
// pending or processing record is an idempotent no-op returning the
// existing task ID.
func (d *Dispatcher) Submit(ctx context.Context, entityID uuid.UUID, kind Kind) (uuid.UUID, error) {
	if !kind.Valid() {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if kind.RequiresEntity() {
		if entityID == uuid.Nil {
			return uuid.Nil, fmt.Errorf("%w: entity ID required for kind %q", ErrUnknownEntity, kind)
		}
		if _, err := d.files.GetFile(ctx, entityID); err != nil {
			if store.IsNotFoundError(err) {
				return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entityID)
			}
			return uuid.Nil, fmt.Errorf("failed to validate entity: %w", err)
		}

		// Single-flight per entity: an active record wins over a new one.
		existing, err := d.tasks.GetActiveTaskForEntity(ctx, entityID)
		if err == nil {
			d.logger.Info("entity already has an active task, returning existing",
				"entity_id", entityID,
				"task_id", existing.ID,
				"status", existing.Status)
			return existing.ID, nil
		}
		if !errors.Is(err, store.ErrTaskNotFound) {
			return uuid.Nil, fmt.Errorf("failed to check for active task: %w", err)
		}
	}

	rec := NewRecord(entityID, kind)
	if err := d.tasks.CreateTask(ctx, rec); err != nil {
		// Two concurrent submits can both pass the active-task check; the
		// loser hits the unique active-entity constraint. Resolve it the
		// same way as the pre-check: return the winner's task.
		if kind.RequiresEntity() && errors.Is(err, store.ErrDuplicate) {
			existing, getErr := d.tasks.GetActiveTaskForEntity(ctx, entityID)
			if getErr == nil {
				d.logger.Info("lost submit race, returning winning task",
					"entity_id", entityID, "task_id", existing.ID)
				return existing.ID, nil
			}
		}
		return uuid.Nil, fmt.Errorf("failed to create task record: %w", err)
	}

	if err := d.queue.Enqueue(rec.ID); err != nil {
		// The record is durable; the due-task poller will pick it up even
		// though the hint message was dropped.
		d.logger.Warn("failed to enqueue task message, poller will recover it",
			"task_id", rec.ID, "error", err)
	}

	d.logger.Info("task submitted",
		"task_id", rec.ID, "entity_id", entityID, "kind", kind)
	return rec.ID, nil
}

// Reprocess resets a failed task to pending with a fresh retry budget and
// re-enqueues it. Only failed tasks can be reprocessed; completed, pending,
// and processing tasks are rejected.
func (d *Dispatcher) Reprocess(ctx context.Context, taskID uuid.UUID) (uuid.UUID, error) {
	rec, err := d.tasks.GetTask(ctx, taskID)
	if err != nil {
		return uuid.Nil, err
	}

	if rec.Status != StatusFailed {
		return uuid.Nil, fmt.Errorf("%w: task %s is %s", ErrNotReprocessable, taskID, rec.Status)
	}

	if err := d.tasks.ResetForReprocess(ctx, taskID); err != nil {
		return uuid.Nil, fmt.Errorf("failed to reset task for reprocess: %w", err)
	}

	if err := d.queue.Enqueue(taskID); err != nil {
		d.logger.Warn("failed to enqueue reprocessed task, poller will recover it",
			"task_id", taskID, "error", err)
	}

	d.logger.Info("task reset for reprocessing", "task_id", taskID)
	return taskID, nil
}

// Status returns the externally observable state of a task.
func (d *Dispatcher) Status(ctx context.Context, taskID uuid.UUID) (*StatusView, error) {
	rec, err := d.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	return &StatusView{
		TaskID:       rec.ID,
		EntityID:     rec.EntityID,
		Kind:         rec.Kind,
		Status:       rec.Status,
		Progress:     rec.Progress,
		AttemptCount: rec.AttemptCount,
		LastError:    rec.LastError,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}, nil
}
