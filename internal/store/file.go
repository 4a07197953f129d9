package store

import (
	"context"

	"github.com/driveflow/driveflow-api/internal/domain"
	"github.com/google/uuid"
)

// FileStore defines the persistence interface for file records. The pipeline
// reads file metadata at dispatch time and writes enrichment results from the
// persist stage; all other file lifecycle operations belong to the web layer.
type FileStore interface {
	// GetFile retrieves a file record by its ID.
	// Returns ErrFileNotFound if no record exists.
	GetFile(ctx context.Context, id uuid.UUID) (*domain.File, error)

	// UpdateProcessingStatus sets the externally visible processing status
	// of a file.
	UpdateProcessingStatus(ctx context.Context, id uuid.UUID, status domain.ProcessingStatus) error

	// SaveEnrichment persists the AI-derived metadata for a file and marks
	// it processed.
	SaveEnrichment(ctx context.Context, file *domain.File) error

	// SaveThumbnailKey records the object key of a generated thumbnail.
	SaveThumbnailKey(ctx context.Context, id uuid.UUID, thumbnailKey string) error
}
