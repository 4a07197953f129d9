package stages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/driveflow/driveflow-api/internal/task"
)

// Cleanup runs an on-demand sweep for stale claims, the same sweep the
// reaper performs on its own schedule. Operators submit cleanup tasks to
// recover orphaned work without waiting for the next periodic pass.
type Cleanup struct {
	reaper     *task.Reaper
	logger     *slog.Logger
	checkpoint int
}

// NewCleanup creates the stale-claim cleanup stage.
func NewCleanup(reaper *task.Reaper, logger *slog.Logger, checkpoint int) *Cleanup {
	return &Cleanup{
		reaper:     reaper,
		logger:     logger.With("stage", "cleanup"),
		checkpoint: checkpoint,
	}
}

func (s *Cleanup) Name() string    { return "cleanup" }
func (s *Cleanup) Checkpoint() int { return s.checkpoint }

func (s *Cleanup) Run(ctx context.Context, _ *task.State) error {
	reaped, err := s.reaper.RunOnce(ctx)
	if err != nil {
		return task.Transient(fmt.Errorf("stale-claim sweep failed: %w", err))
	}

	s.logger.InfoContext(ctx, "on-demand sweep finished", "reaped", reaped)
	return nil
}
