package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/driveflow/driveflow-api/internal/api/shared"
	"github.com/driveflow/driveflow-api/internal/store"
	"github.com/driveflow/driveflow-api/internal/task"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ProcessFileRequest represents the request body for submitting a file for
// processing. Kind is optional and defaults to full_process.
type ProcessFileRequest struct {
	Kind string `json:"kind" validate:"omitempty,oneof=full_process reprocess thumbnail notify cleanup"`
}

// TaskSubmittedResponse is returned when a task has been accepted.
type TaskSubmittedResponse struct {
	TaskID string `json:"task_id"`
}

// TaskHandler handles task-related HTTP requests.
type TaskHandler struct {
	dispatcher *task.Dispatcher
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(dispatcher *task.Dispatcher) *TaskHandler {
	return &TaskHandler{dispatcher: dispatcher}
}

// ProcessFile handles POST /api/files/{id}/process requests.
func (h *TaskHandler) ProcessFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid file ID")
		return
	}

	// An empty body means a default full enrichment run.
	req := ProcessFileRequest{Kind: string(task.KindFullProcess)}
	if r.Body != nil && r.ContentLength != 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
			return
		}
		if req.Kind == "" {
			req.Kind = string(task.KindFullProcess)
		}
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	taskID, err := h.dispatcher.Submit(r.Context(), fileID, task.Kind(req.Kind))
	if err != nil {
		switch {
		case errors.Is(err, task.ErrUnknownKind):
			shared.RespondWithError(w, r, http.StatusBadRequest, "Unknown task kind")
		case errors.Is(err, task.ErrUnknownEntity), store.IsNotFoundError(err):
			shared.RespondWithError(w, r, http.StatusNotFound, "File not found")
		default:
			slog.Error("failed to submit task", "error", err, "file_id", fileID)
			shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to submit task")
		}
		return
	}

	// Processing happens asynchronously.
	shared.RespondWithJSON(w, r, http.StatusAccepted, TaskSubmittedResponse{TaskID: taskID.String()})
}

// GetTask handles GET /api/tasks/{id} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	view, err := h.dispatcher.Status(r.Context(), taskID)
	if err != nil {
		if store.IsNotFoundError(err) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
			return
		}
		slog.Error("failed to get task status", "error", err, "task_id", taskID)
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to get task status")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, view)
}

// ReprocessTask handles POST /api/tasks/{id}/reprocess requests.
func (h *TaskHandler) ReprocessTask(w http.ResponseWriter, r *http.Request) {
	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return
	}

	resubmitted, err := h.dispatcher.Reprocess(r.Context(), taskID)
	if err != nil {
		switch {
		case store.IsNotFoundError(err):
			shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
		case errors.Is(err, task.ErrNotReprocessable):
			shared.RespondWithError(w, r, http.StatusConflict, "Only failed tasks can be reprocessed")
		default:
			slog.Error("failed to reprocess task", "error", err, "task_id", taskID)
			shared.RespondWithError(w, r, http.StatusInternalServerError, "Failed to reprocess task")
		}
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, TaskSubmittedResponse{TaskID: resubmitted.String()})
}
