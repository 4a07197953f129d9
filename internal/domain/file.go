package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ProcessingStatus represents the enrichment state of a file as exposed to
// external observers. It mirrors the lifecycle of the file's pipeline task.
type ProcessingStatus string

// Possible processing status values
const (
	ProcessingStatusPending    ProcessingStatus = "pending"
	ProcessingStatusProcessing ProcessingStatus = "processing"
	ProcessingStatusCompleted  ProcessingStatus = "completed"
	ProcessingStatusFailed     ProcessingStatus = "failed"
)

// Common validation errors for File
var (
	ErrEmptyFileID     = errors.New("file ID cannot be empty")
	ErrEmptyFileUserID = errors.New("file user ID cannot be empty")
	ErrEmptyObjectKey  = errors.New("file object key cannot be empty")
	ErrInvalidStatus   = errors.New("invalid processing status")
	ErrEmptyFilename   = errors.New("file original filename cannot be empty")
)

// File represents a user-uploaded file record. The pipeline owns only the
// processing-state and enrichment fields; upload, ownership, and retention
// are managed by the surrounding application.
type File struct {
	ID               uuid.UUID        `json:"id"`
	UserID           uuid.UUID        `json:"user_id"`
	OriginalFilename string           `json:"original_filename"`
	ObjectKey        string           `json:"object_key"`
	MimeType         string           `json:"mime_type"`
	SizeBytes        int64            `json:"size_bytes"`
	Status           ProcessingStatus `json:"status"`

	// Enrichment results, populated by the pipeline's persist stage.
	SuggestedFilename string     `json:"suggested_filename,omitempty"`
	Summary           string     `json:"summary,omitempty"`
	Tags              []string   `json:"tags,omitempty"`
	ThumbnailKey      string     `json:"thumbnail_key,omitempty"`
	ProcessedAt       *time.Time `json:"processed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewFile creates a new File with the given owner, name, and storage key.
// It generates a new UUID for the file ID, sets the status to pending, and
// sets the creation/update timestamps. Returns an error if validation fails.
func NewFile(userID uuid.UUID, originalFilename, objectKey, mimeType string, sizeBytes int64) (*File, error) {
	f := &File{
		ID:               uuid.New(),
		UserID:           userID,
		OriginalFilename: originalFilename,
		ObjectKey:        objectKey,
		MimeType:         mimeType,
		SizeBytes:        sizeBytes,
		Status:           ProcessingStatusPending,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}

	return f, nil
}

// Validate checks that the file record is structurally valid.
func (f *File) Validate() error {
	if f.ID == uuid.Nil {
		return ErrEmptyFileID
	}
	if f.UserID == uuid.Nil {
		return ErrEmptyFileUserID
	}
	if f.OriginalFilename == "" {
		return ErrEmptyFilename
	}
	if f.ObjectKey == "" {
		return ErrEmptyObjectKey
	}
	switch f.Status {
	case ProcessingStatusPending, ProcessingStatusProcessing,
		ProcessingStatusCompleted, ProcessingStatusFailed:
		return nil
	default:
		return ErrInvalidStatus
	}
}
