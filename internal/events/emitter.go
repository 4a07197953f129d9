package events

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryEmitter is a simple implementation of the Emitter interface that
// stores registered handlers in memory and dispatches events to them
// synchronously, in registration order.
type InMemoryEmitter struct {
	handlers []Handler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewInMemoryEmitter creates a new instance of InMemoryEmitter.
func NewInMemoryEmitter(logger *slog.Logger) *InMemoryEmitter {
	return &InMemoryEmitter{
		handlers: make([]Handler, 0),
		logger:   logger.With("component", "event_emitter"),
	}
}

// RegisterHandler adds a new handler to receive transition events.
func (e *InMemoryEmitter) RegisterHandler(handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
	e.logger.Debug("registered transition handler", "handler_count", len(e.handlers))
}

// EmitTransition publishes the given event to all registered handlers.
func (e *InMemoryEmitter) EmitTransition(ctx context.Context, event TaskTransitionEvent) {
	e.mu.RLock()
	handlers := make([]Handler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	for _, handler := range handlers {
		handler.HandleTransition(ctx, event)
	}
}

// LoggingHandler is the default observability consumer: it writes every
// transition as a structured log record.
type LoggingHandler struct {
	logger *slog.Logger
}

// NewLoggingHandler creates a handler that logs transitions via the given logger.
func NewLoggingHandler(logger *slog.Logger) *LoggingHandler {
	return &LoggingHandler{logger: logger.With("component", "task_transitions")}
}

// HandleTransition logs the transition at info level, with the error
// attached when present.
func (h *LoggingHandler) HandleTransition(ctx context.Context, event TaskTransitionEvent) {
	attrs := []any{
		"task_id", event.TaskID,
		"entity_id", event.EntityID,
		"kind", event.Kind,
		"from", event.From,
		"to", event.To,
		"attempt", event.Attempt,
	}
	if event.Error != "" {
		attrs = append(attrs, "error", event.Error)
	}
	h.logger.InfoContext(ctx, "task transition", attrs...)
}

// Ensure implementations satisfy the interfaces.
var (
	_ Emitter = (*InMemoryEmitter)(nil)
	_ Handler = (*LoggingHandler)(nil)
)
