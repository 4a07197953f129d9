// Package minio implements the storage.ObjectStore interface against an
// S3-compatible object store.
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/driveflow/driveflow-api/internal/config"
	"github.com/driveflow/driveflow-api/internal/storage"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore is the MinIO-backed implementation of storage.ObjectStore.
// All objects live in a single configured bucket.
type ObjectStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewObjectStore creates an ObjectStore and verifies the configured bucket
// exists, creating it when it does not.
func NewObjectStore(ctx context.Context, logger *slog.Logger, cfg config.StorageConfig) (*ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.Bucket, err)
		}
		logger.Info("created storage bucket", "bucket", cfg.Bucket)
	}

	return &ObjectStore{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With("component", "object_store"),
	}, nil
}

// Ensure ObjectStore implements storage.ObjectStore.
var _ storage.ObjectStore = (*ObjectStore)(nil)

// Get implements storage.ObjectStore.Get.
func (s *ObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	defer func() { _ = obj.Close() }()

	// GetObject is lazy; missing keys surface on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapObjectError(key, err)
	}

	return data, nil
}

// Put implements storage.ObjectStore.Put.
func (s *ObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("%w: failed to store object %q: %v", storage.ErrUnavailable, key, err)
	}

	s.logger.DebugContext(ctx, "stored object",
		"key", key, "bytes", len(data), "content_type", contentType)

	return key, nil
}

// mapObjectError translates MinIO error responses into the storage error
// taxonomy.
func mapObjectError(key string, err error) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
	}
	return fmt.Errorf("%w: failed to read object %q: %v", storage.ErrUnavailable, key, err)
}
