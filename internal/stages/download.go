package stages

import (
	"context"
	"errors"
	"fmt"

	"github.com/driveflow/driveflow-api/internal/extract"
	"github.com/driveflow/driveflow-api/internal/storage"
	"github.com/driveflow/driveflow-api/internal/task"
)

// Download fetches the file's object from storage and sniffs its real
// content type from the bytes, ignoring the client-reported MIME type.
type Download struct {
	objects    storage.ObjectStore
	checkpoint int
}

// NewDownload creates the download stage.
func NewDownload(objects storage.ObjectStore, checkpoint int) *Download {
	return &Download{objects: objects, checkpoint: checkpoint}
}

func (s *Download) Name() string    { return "download" }
func (s *Download) Checkpoint() int { return s.checkpoint }

func (s *Download) Run(ctx context.Context, st *task.State) error {
	data, err := s.objects.Get(ctx, st.File.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			// Retrying cannot bring a deleted object back.
			return task.Permanent(fmt.Errorf("object %q missing from storage: %w", st.File.ObjectKey, err))
		}
		return task.Transient(fmt.Errorf("failed to download object %q: %w", st.File.ObjectKey, err))
	}

	st.Data = data
	st.DetectedMime = extract.Detect(data)
	return nil
}
