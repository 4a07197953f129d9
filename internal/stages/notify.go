package stages

import (
	"context"
	"log/slog"

	"github.com/driveflow/driveflow-api/internal/notify"
	"github.com/driveflow/driveflow-api/internal/task"
)

// Notify tells the user their file finished processing. Delivery is
// fire-and-forget: a messaging outage must never fail, retry, or delay a
// task whose actual work already succeeded.
type Notify struct {
	notifier   notify.Notifier
	logger     *slog.Logger
	checkpoint int
}

// NewNotify creates the completion notification stage.
func NewNotify(notifier notify.Notifier, logger *slog.Logger, checkpoint int) *Notify {
	return &Notify{
		notifier:   notifier,
		logger:     logger.With("stage", "notify"),
		checkpoint: checkpoint,
	}
}

func (s *Notify) Name() string    { return "notify" }
func (s *Notify) Checkpoint() int { return s.checkpoint }

func (s *Notify) Run(ctx context.Context, st *task.State) error {
	filename := st.File.OriginalFilename
	if st.File.SuggestedFilename != "" {
		filename = st.File.SuggestedFilename
	}

	payload := notify.Payload{
		Filename: filename,
		Summary:  st.File.Summary,
		Tags:     st.File.Tags,
	}

	if err := s.notifier.Notify(ctx, st.File.UserID.String(), notify.EventProcessingCompleted, payload); err != nil {
		s.logger.WarnContext(ctx, "failed to deliver completion notification",
			"file_id", st.File.ID, "user_id", st.File.UserID, "error", err)
	}
	return nil
}
