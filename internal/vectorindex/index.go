// Package vectorindex defines the embedding index contract used by the
// persist stage to make enriched files searchable.
package vectorindex

import "context"

// Payload is the metadata stored alongside an embedding so that search
// results can be rendered without a second lookup.
type Payload struct {
	Filename string   `json:"filename"`
	Summary  string   `json:"summary"`
	Tags     []string `json:"tags"`
	UserID   string   `json:"user_id"`
}

// Index abstracts the vector database holding file embeddings.
type Index interface {
	// Upsert stores or replaces the embedding for the given entity.
	Upsert(ctx context.Context, entityID string, embedding []float32, payload Payload) error

	// Delete removes the embedding for the given entity. Deleting a
	// missing entity is not an error.
	Delete(ctx context.Context, entityID string) error
}

// Nop discards all index operations. It is used when no vector database is
// configured; enrichment still completes, files are just not searchable.
type Nop struct{}

// Upsert implements Index.Upsert as a no-op.
func (Nop) Upsert(context.Context, string, []float32, Payload) error { return nil }

// Delete implements Index.Delete as a no-op.
func (Nop) Delete(context.Context, string) error { return nil }

var _ Index = Nop{}
