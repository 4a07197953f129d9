package task

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a task
type Status string

// Possible task status values
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Kind identifies the stage sequence a task executes. The set is closed:
// every kind is mapped to a fixed sequence in a StageSet validated at
// startup, rather than looked up by name at dispatch time.
type Kind string

// Task kinds
const (
	// KindFullProcess runs the complete enrichment sequence for a newly
	// uploaded file.
	KindFullProcess Kind = "full_process"

	// KindReprocess re-runs the enrichment sequence for a file that was
	// already processed once.
	KindReprocess Kind = "reprocess"

	// KindThumbnail generates only a thumbnail for a file.
	KindThumbnail Kind = "thumbnail"

	// KindNotify delivers a processing notification without any other work.
	KindNotify Kind = "notify"

	// KindCleanup runs one sweep for abandoned claims on demand, in
	// addition to the reaper's periodic schedule.
	KindCleanup Kind = "cleanup"
)

// Valid reports whether k is one of the defined task kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindFullProcess, KindReprocess, KindThumbnail, KindNotify, KindCleanup:
		return true
	}
	return false
}

// RequiresEntity reports whether tasks of this kind operate on a file
// entity. Cleanup sweeps are entity-less.
func (k Kind) RequiresEntity() bool {
	return k != KindCleanup
}

// Record is the durable unit of schedulable work. A record is created by the
// Dispatcher, mutated only by the worker holding its claim (or the reaper,
// which may seize an expired claim), and retained after terminal status for
// audit and status queries.
type Record struct {
	ID           uuid.UUID
	EntityID     uuid.UUID
	Kind         Kind
	Status       Status
	AttemptCount int
	Progress     int
	ClaimedAt    *time.Time
	ClaimOwner   string
	VisibleAfter time.Time
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewRecord creates a pending task record for the given entity and kind.
func NewRecord(entityID uuid.UUID, kind Kind) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:           uuid.New(),
		EntityID:     entityID,
		Kind:         kind,
		Status:       StatusPending,
		VisibleAfter: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Store defines the persistence interface for task records. Claim is the
// single-flight primitive: an atomic pending-to-processing transition that
// at most one worker can win per record.
type Store interface {
	// CreateTask persists a new task record.
	CreateTask(ctx context.Context, rec *Record) error

	// GetTask retrieves a task record by ID.
	// Returns store.ErrTaskNotFound if no record exists.
	GetTask(ctx context.Context, id uuid.UUID) (*Record, error)

	// GetActiveTaskForEntity returns the pending or processing task for an
	// entity, or store.ErrTaskNotFound when the entity has no in-flight work.
	GetActiveTaskForEntity(ctx context.Context, entityID uuid.UUID) (*Record, error)

	// ClaimTask atomically transitions a pending task to processing,
	// recording the claim owner and time. Returns store.ErrConflict when
	// the task is no longer pending (another worker won the claim, or the
	// message was a redelivery).
	ClaimTask(ctx context.Context, id uuid.UUID, owner string) (*Record, error)

	// CompleteTask transitions a processing task to completed with
	// progress 100 and clears the claim.
	CompleteTask(ctx context.Context, id uuid.UUID) error

	// FailTask transitions a processing task to failed, storing the final
	// attempt count and error message and clearing the claim. Used both by
	// workers finalizing exhausted retries and by the reaper seizing
	// expired claims. Returns store.ErrConflict when the task is no longer
	// processing; terminal statuses stay terminal.
	FailTask(ctx context.Context, id uuid.UUID, attemptCount int, errMsg string) error

	// RequeueTask reverts a processing task to pending with the given
	// attempt count and progress floor, invisible to workers until
	// visibleAfter. The retry delay is data, not scheduler behavior.
	RequeueTask(ctx context.Context, id uuid.UUID, visibleAfter time.Time, attemptCount, progress int, lastError string) error

	// UpdateProgress records a progress checkpoint for a processing task.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error

	// GetDueTasks returns pending tasks whose visibility time has passed,
	// oldest first, up to limit.
	GetDueTasks(ctx context.Context, limit int) ([]*Record, error)

	// GetStaleTasks returns processing tasks whose claim is older than the
	// given age.
	GetStaleTasks(ctx context.Context, olderThan time.Duration) ([]*Record, error)

	// ResetForReprocess reverts a failed task to pending with attempt
	// count, progress, and last error cleared. Returns store.ErrConflict
	// if the task is not failed.
	ResetForReprocess(ctx context.Context, id uuid.UUID) error
}
