package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskTransitionEvent is a structured record of one task lifecycle
// transition, emitted by the worker pool and the reaper at well-defined
// points (claim, completion, failure, requeue). Observability consumers
// subscribe to these instead of hooking into the scheduler.
type TaskTransitionEvent struct {
	// TaskID identifies the task record that transitioned.
	TaskID uuid.UUID `json:"task_id"`

	// EntityID identifies the file the task operates on, if any.
	EntityID uuid.UUID `json:"entity_id"`

	// Kind is the task kind.
	Kind string `json:"kind"`

	// From and To are the transition endpoints.
	From string `json:"from"`
	To   string `json:"to"`

	// Attempt is the attempt count after the transition.
	Attempt int `json:"attempt"`

	// Error carries the failure message for failed or requeued transitions.
	Error string `json:"error,omitempty"`

	// OccurredAt is the timestamp when the transition happened.
	OccurredAt time.Time `json:"occurred_at"`
}

// Handler defines an interface for components that consume transition events.
type Handler interface {
	// HandleTransition processes the given event within the provided context.
	HandleTransition(ctx context.Context, event TaskTransitionEvent)
}

// Emitter defines an interface for components that emit transition events.
// This allows the pipeline to publish lifecycle changes without direct
// knowledge of consumers.
type Emitter interface {
	// EmitTransition publishes the given event to all registered handlers.
	EmitTransition(ctx context.Context, event TaskTransitionEvent)
}
