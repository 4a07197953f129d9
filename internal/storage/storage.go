// Package storage defines the object storage contract used by the pipeline's
// download and thumbnail stages. Transfer failures are transient by nature
// and are retried briefly by the caller before escalating.
package storage

import (
	"context"
	"errors"
)

// Common object storage errors.
var (
	// ErrObjectNotFound is returned when the requested key does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrUnavailable is returned for network or service availability
	// failures; callers should treat it as retryable.
	ErrUnavailable = errors.New("object storage unavailable")
)

// ObjectStore abstracts the blob store holding uploaded files and generated
// thumbnails.
type ObjectStore interface {
	// Get downloads the object stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put uploads data under key with the given content type and returns
	// the stored key.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
