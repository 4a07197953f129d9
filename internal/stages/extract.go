package stages

import (
	"context"

	"github.com/driveflow/driveflow-api/internal/extract"
	"github.com/driveflow/driveflow-api/internal/task"
)

// Extract pulls plain text out of the downloaded object. Formats without
// extractable text leave the state's text empty, which downstream stages
// treat as "nothing to analyze" rather than a failure.
type Extract struct {
	checkpoint int
}

// NewExtract creates the text extraction stage.
func NewExtract(checkpoint int) *Extract {
	return &Extract{checkpoint: checkpoint}
}

func (s *Extract) Name() string    { return "extract" }
func (s *Extract) Checkpoint() int { return s.checkpoint }

func (s *Extract) Run(_ context.Context, st *task.State) error {
	st.Text = extract.Text(st.Data)
	return nil
}
