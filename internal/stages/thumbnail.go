package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/driveflow/driveflow-api/internal/storage"
	"github.com/driveflow/driveflow-api/internal/store"
	"github.com/driveflow/driveflow-api/internal/task"
	"github.com/driveflow/driveflow-api/internal/thumbnail"
)

// Thumbnail generates a preview for image uploads and stores it next to the
// original. In an enrichment run, non-image files pass through untouched and
// an image that cannot be decoded is skipped with a warning; a missing
// preview is never worth failing an otherwise enriched file. A required
// stage (the dedicated thumbnail kind) instead fails permanently on formats
// it cannot render.
type Thumbnail struct {
	generator  *thumbnail.Generator
	objects    storage.ObjectStore
	files      store.FileStore
	logger     *slog.Logger
	checkpoint int
	required   bool
}

// NewThumbnail creates a best-effort thumbnail stage for enrichment runs.
func NewThumbnail(
	generator *thumbnail.Generator,
	objects storage.ObjectStore,
	files store.FileStore,
	logger *slog.Logger,
	checkpoint int,
) *Thumbnail {
	return &Thumbnail{
		generator:  generator,
		objects:    objects,
		files:      files,
		logger:     logger.With("stage", "thumbnail"),
		checkpoint: checkpoint,
	}
}

// NewRequiredThumbnail creates the stage for dedicated thumbnail tasks,
// where an unsupported or undecodable format is a permanent failure rather
// than a skip.
func NewRequiredThumbnail(
	generator *thumbnail.Generator,
	objects storage.ObjectStore,
	files store.FileStore,
	logger *slog.Logger,
	checkpoint int,
) *Thumbnail {
	s := NewThumbnail(generator, objects, files, logger, checkpoint)
	s.required = true
	return s
}

func (s *Thumbnail) Name() string    { return "thumbnail" }
func (s *Thumbnail) Checkpoint() int { return s.checkpoint }

func (s *Thumbnail) Run(ctx context.Context, st *task.State) error {
	if !thumbnail.CanThumbnail(st.DetectedMime) {
		if s.required {
			return task.Permanent(fmt.Errorf("unsupported thumbnail format %q", st.DetectedMime))
		}
		return nil
	}

	data, err := s.generator.Generate(st.Data)
	if err != nil {
		if errors.Is(err, thumbnail.ErrBusy) {
			return task.Transient(err)
		}
		if s.required {
			return task.Permanent(fmt.Errorf("failed to decode image: %w", err))
		}
		s.logger.WarnContext(ctx, "skipping thumbnail for undecodable image",
			"file_id", st.File.ID, "mime", st.DetectedMime, "error", err)
		return nil
	}

	key := fmt.Sprintf("thumbnails/%s.jpg", st.File.ID)
	if _, err := s.objects.Put(ctx, key, data, "image/jpeg"); err != nil {
		return task.Transient(fmt.Errorf("failed to store thumbnail: %w", err))
	}

	if err := s.files.SaveThumbnailKey(ctx, st.File.ID, key); err != nil {
		return task.Transient(fmt.Errorf("failed to record thumbnail key: %w", err))
	}

	st.ThumbnailKey = key
	st.File.ThumbnailKey = key
	return nil
}
