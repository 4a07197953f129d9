package notify

import (
	"context"
	"log/slog"

	"github.com/driveflow/driveflow-api/internal/events"
	"github.com/driveflow/driveflow-api/internal/store"
	"github.com/google/uuid"
)

// TransitionHandler subscribes to task lifecycle events and notifies users
// when processing of their file fails terminally. Completion notifications
// are the notify stage's job; this handler covers the failure paths the
// stage sequence never reaches, including tasks seized by the reaper.
type TransitionHandler struct {
	files    store.FileStore
	notifier Notifier
	logger   *slog.Logger
}

// NewTransitionHandler creates a handler delivering failure notifications.
func NewTransitionHandler(files store.FileStore, notifier Notifier, logger *slog.Logger) *TransitionHandler {
	return &TransitionHandler{
		files:    files,
		notifier: notifier,
		logger:   logger.With("component", "failure_notifier"),
	}
}

// HandleTransition delivers a failure notification for terminal failures of
// entity-bound tasks. Delivery errors are logged and dropped.
func (h *TransitionHandler) HandleTransition(ctx context.Context, event events.TaskTransitionEvent) {
	if event.To != "failed" || event.EntityID == uuid.Nil {
		return
	}

	file, err := h.files.GetFile(ctx, event.EntityID)
	if err != nil {
		h.logger.WarnContext(ctx, "cannot notify about failed task, file lookup failed",
			"task_id", event.TaskID, "entity_id", event.EntityID, "error", err)
		return
	}

	payload := Payload{
		Filename: file.OriginalFilename,
		Error:    event.Error,
	}
	if err := h.notifier.Notify(ctx, file.UserID.String(), EventProcessingFailed, payload); err != nil {
		h.logger.WarnContext(ctx, "failed to deliver failure notification",
			"task_id", event.TaskID, "user_id", file.UserID, "error", err)
	}
}

var _ events.Handler = (*TransitionHandler)(nil)
