package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/driveflow/driveflow-api/internal/domain"
	"github.com/driveflow/driveflow-api/internal/platform/logger"
	"github.com/driveflow/driveflow-api/internal/store"
	"github.com/google/uuid"
)

// PostgresFileStore implements the store.FileStore interface using
// a PostgreSQL database as the storage backend.
type PostgresFileStore struct {
	db store.DBTX
}

// NewPostgresFileStore creates a new PostgreSQL implementation of the
// FileStore interface. It accepts a database connection that should be
// initialized and managed by the caller.
func NewPostgresFileStore(db store.DBTX) *PostgresFileStore {
	return &PostgresFileStore{
		db: db,
	}
}

// Ensure PostgresFileStore implements store.FileStore.
var _ store.FileStore = (*PostgresFileStore)(nil)

// GetFile implements store.FileStore.GetFile.
func (s *PostgresFileStore) GetFile(ctx context.Context, id uuid.UUID) (*domain.File, error) {
	query := `
		SELECT id, user_id, original_filename, object_key, mime_type, size_bytes,
			status, suggested_filename, summary, tags, thumbnail_key,
			processed_at, created_at, updated_at
		FROM files
		WHERE id = $1
	`

	var (
		f                 domain.File
		suggestedFilename sql.NullString
		summary           sql.NullString
		thumbnailKey      sql.NullString
		processedAt       sql.NullTime
		tags              []byte
	)

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&f.ID,
		&f.UserID,
		&f.OriginalFilename,
		&f.ObjectKey,
		&f.MimeType,
		&f.SizeBytes,
		&f.Status,
		&suggestedFilename,
		&summary,
		&tags,
		&thumbnailKey,
		&processedAt,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	f.SuggestedFilename = suggestedFilename.String
	f.Summary = summary.String
	f.ThumbnailKey = thumbnailKey.String
	if processedAt.Valid {
		t := processedAt.Time
		f.ProcessedAt = &t
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &f.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode file tags: %w", err)
		}
	}

	return &f, nil
}

// UpdateProcessingStatus implements store.FileStore.UpdateProcessingStatus.
func (s *PostgresFileStore) UpdateProcessingStatus(ctx context.Context, id uuid.UUID, status domain.ProcessingStatus) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE files
		SET status = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		log.Error("failed to update file processing status",
			"file_id", id,
			"status", status,
			"error", err)
		return fmt.Errorf("failed to update processing status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrFileNotFound
	}

	return nil
}

// SaveEnrichment implements store.FileStore.SaveEnrichment.
func (s *PostgresFileStore) SaveEnrichment(ctx context.Context, file *domain.File) error {
	log := logger.FromContext(ctx)

	query := `
		UPDATE files
		SET status = $1, suggested_filename = $2, summary = $3, tags = $4,
			processed_at = $5, updated_at = $6
		WHERE id = $7
	`

	tags, err := json.Marshal(file.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode file tags: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query,
		file.Status,
		nullString(file.SuggestedFilename),
		nullString(file.Summary),
		tags,
		file.ProcessedAt,
		time.Now().UTC(),
		file.ID,
	)
	if err != nil {
		log.Error("failed to save file enrichment",
			"file_id", file.ID,
			"error", err)
		return fmt.Errorf("failed to save enrichment: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrFileNotFound
	}

	return nil
}

// SaveThumbnailKey implements store.FileStore.SaveThumbnailKey.
func (s *PostgresFileStore) SaveThumbnailKey(ctx context.Context, id uuid.UUID, thumbnailKey string) error {
	query := `
		UPDATE files
		SET thumbnail_key = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, thumbnailKey, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to save thumbnail key: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrFileNotFound
	}

	return nil
}
