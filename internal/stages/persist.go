package stages

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/driveflow/driveflow-api/internal/domain"
	"github.com/driveflow/driveflow-api/internal/store"
	"github.com/driveflow/driveflow-api/internal/task"
	"github.com/driveflow/driveflow-api/internal/vectorindex"
)

// Persist writes the enrichment results to the file record and upserts the
// embedding into the vector index. When analysis produced nothing (no
// extractable text), the file is simply marked completed.
type Persist struct {
	files      store.FileStore
	index      vectorindex.Index
	logger     *slog.Logger
	checkpoint int
	now        func() time.Time
}

// NewPersist creates the persistence stage.
func NewPersist(files store.FileStore, index vectorindex.Index, logger *slog.Logger, checkpoint int) *Persist {
	return &Persist{
		files:      files,
		index:      index,
		logger:     logger.With("stage", "persist"),
		checkpoint: checkpoint,
		now:        time.Now,
	}
}

func (s *Persist) Name() string    { return "persist" }
func (s *Persist) Checkpoint() int { return s.checkpoint }

func (s *Persist) Run(ctx context.Context, st *task.State) error {
	if st.Analysis == nil {
		if err := s.files.UpdateProcessingStatus(ctx, st.File.ID, domain.ProcessingStatusCompleted); err != nil {
			return task.Transient(fmt.Errorf("failed to mark file completed: %w", err))
		}
		st.File.Status = domain.ProcessingStatusCompleted
		return nil
	}

	processedAt := s.now().UTC()
	st.File.SuggestedFilename = st.Analysis.SuggestedFilename
	st.File.Summary = st.Analysis.Summary
	st.File.Tags = st.Analysis.TagNames()
	st.File.Status = domain.ProcessingStatusCompleted
	st.File.ProcessedAt = &processedAt

	if err := s.files.SaveEnrichment(ctx, st.File); err != nil {
		return task.Transient(fmt.Errorf("failed to save enrichment: %w", err))
	}

	if len(st.Analysis.Embedding) > 0 {
		err := s.index.Upsert(ctx, st.File.ID.String(), st.Analysis.Embedding, vectorindex.Payload{
			Filename: st.File.OriginalFilename,
			Summary:  st.File.Summary,
			Tags:     st.File.Tags,
			UserID:   st.File.UserID.String(),
		})
		if err != nil {
			// SaveEnrichment is idempotent, so retrying the stage is safe.
			return task.Transient(fmt.Errorf("failed to index embedding: %w", err))
		}
	}

	s.logger.DebugContext(ctx, "persisted enrichment",
		"file_id", st.File.ID,
		"provider", st.AnalysisProvider,
		"tags", len(st.File.Tags),
		"embedding_dims", len(st.Analysis.Embedding))

	return nil
}
