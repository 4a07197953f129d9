package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Common errors returned by the Queue
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// Queue is the in-process feed of the worker pool: a buffered channel of
// task IDs. Durability lives in the task records; a message is only a hint
// that a record may be claimable, so losing or duplicating messages is safe.
// The due-task poller replays records whose messages were lost, and the
// claim CAS discards duplicates.
type Queue struct {
	ids    chan uuid.UUID
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
}

// NewQueue creates a new task queue with the specified buffer size.
func NewQueue(size int, logger *slog.Logger) *Queue {
	return &Queue{
		ids:    make(chan uuid.UUID, size),
		logger: logger,
	}
}

// Enqueue adds a task ID to the queue for processing.
// Returns an error if the queue is full or closed.
func (q *Queue) Enqueue(id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.ids <- id:
		q.logger.Debug("task enqueued",
			"task_id", id,
			"queue_len", len(q.ids),
			"queue_cap", cap(q.ids))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.ids))
	}
}

// Close closes the task queue, preventing further task submission.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ids)
		q.logger.Info("task queue closed")
	}
}

// Chan returns a read-only channel for consuming task IDs.
func (q *Queue) Chan() <-chan uuid.UUID {
	return q.ids
}
