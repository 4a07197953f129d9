package analysis

import "context"

// Tag is a single AI-suggested label with the provider's confidence in it.
type Tag struct {
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
}

// Request carries the extracted text and original filename of the file
// being analyzed.
type Request struct {
	Text     string
	Filename string
}

// Result is the full enrichment output for one file: a suggested filename,
// a short summary, categorization tags, and an embedding vector for search.
type Result struct {
	SuggestedFilename string
	Summary           string
	Tags              []Tag
	Embedding         []float32
}

// TagNames returns just the tag labels, in order.
func (r *Result) TagNames() []string {
	names := make([]string, 0, len(r.Tags))
	for _, t := range r.Tags {
		names = append(names, t.Tag)
	}
	return names
}

// Analyzer defines the interface for AI-backed file analysis.
// This interface serves as a boundary between the pipeline core and
// external AI/LLM services, following the hexagonal architecture pattern.
type Analyzer interface {
	// Analyze derives naming, summary, tags, and an embedding from the
	// provided text. See errors.go for the error taxonomy implementations
	// must follow; in particular, provider rate-limit signals must be
	// reported as ErrRateLimited so the quota governor can react.
	Analyze(ctx context.Context, req Request) (*Result, error)

	// Provider returns the identity of the backing provider, used by the
	// quota governor for admission decisions.
	Provider() string
}
