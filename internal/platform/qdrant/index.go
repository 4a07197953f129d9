// Package qdrant implements the vectorindex.Index interface against a
// Qdrant server's REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/driveflow/driveflow-api/internal/config"
	"github.com/driveflow/driveflow-api/internal/vectorindex"
)

// Index is the Qdrant-backed implementation of vectorindex.Index.
type Index struct {
	client     *http.Client
	baseURL    string
	collection string
	logger     *slog.Logger

	// The collection is created lazily on the first upsert because the
	// vector size is only known once an embedding arrives.
	mu      sync.Mutex
	created bool
}

// NewIndex creates an Index for the configured collection.
func NewIndex(logger *slog.Logger, cfg config.VectorConfig) (*Index, error) {
	if cfg.URL == "" {
		return nil, errors.New("vector index URL cannot be empty")
	}
	if cfg.Collection == "" {
		return nil, errors.New("vector index collection cannot be empty")
	}

	return &Index{
		client:     &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		collection: cfg.Collection,
		logger:     logger.With("component", "vector_index"),
	}, nil
}

// Ensure Index implements vectorindex.Index.
var _ vectorindex.Index = (*Index)(nil)

// point is one entry in an upsert request.
type point struct {
	ID      string              `json:"id"`
	Vector  []float32           `json:"vector"`
	Payload vectorindex.Payload `json:"payload"`
}

// Upsert implements vectorindex.Index.Upsert.
func (i *Index) Upsert(ctx context.Context, entityID string, embedding []float32, payload vectorindex.Payload) error {
	if err := i.ensureCollection(ctx, len(embedding)); err != nil {
		return err
	}

	body := map[string]any{
		"points": []point{{ID: entityID, Vector: embedding, Payload: payload}},
	}

	err := i.do(ctx, http.MethodPut,
		fmt.Sprintf("/collections/%s/points?wait=true", i.collection), body)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding for %s: %w", entityID, err)
	}

	i.logger.DebugContext(ctx, "upserted embedding",
		"entity_id", entityID, "dims", len(embedding))
	return nil
}

// Delete implements vectorindex.Index.Delete.
func (i *Index) Delete(ctx context.Context, entityID string) error {
	body := map[string]any{
		"points": []string{entityID},
	}

	err := i.do(ctx, http.MethodPost,
		fmt.Sprintf("/collections/%s/points/delete?wait=true", i.collection), body)
	if err != nil {
		return fmt.Errorf("failed to delete embedding for %s: %w", entityID, err)
	}
	return nil
}

// ensureCollection creates the collection with the observed vector size if
// it has not been created yet. Creating an existing collection is treated
// as success.
func (i *Index) ensureCollection(ctx context.Context, size int) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.created {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     size,
			"distance": "Cosine",
		},
	}

	err := i.do(ctx, http.MethodPut, "/collections/"+i.collection, body)
	if err != nil && !errors.Is(err, errConflict) {
		return fmt.Errorf("failed to ensure collection %q: %w", i.collection, err)
	}

	i.created = true
	return nil
}

// errConflict marks a 409 response, which for collection creation means the
// collection already exists.
var errConflict = errors.New("resource already exists")

// do sends one JSON request and checks the response status.
func (i *Index) do(ctx context.Context, method, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, i.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusConflict {
		return errConflict
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, snippet)
	}

	return nil
}
