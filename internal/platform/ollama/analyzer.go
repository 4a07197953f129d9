package ollama

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
	"time"

	"github.com/driveflow/driveflow-api/internal/analysis"
	"github.com/driveflow/driveflow-api/internal/config"
)

// Provider is the provider name this analyzer registers under. The quota
// governor leaves it unmetered: a locally hosted model has no external
// quota to protect.
const Provider = "ollama"

const prompt = `You are a file organization assistant. Analyze the following file content and respond with a single JSON object, no markdown fences, with exactly these fields:
- "suggested_filename": a concise descriptive filename including the original extension
- "summary": a 1-2 sentence summary of the content
- "tags": an array of objects with "tag" (a short lowercase label) and "confidence" (0.0-1.0), at most 5 entries

Original filename: %s

File content:
%s`

// OllamaAnalyzer implements the analysis.Analyzer interface against a local
// Ollama server's REST API.
type OllamaAnalyzer struct {
	logger  *slog.Logger
	client  *http.Client
	baseURL string
	model   string
}

// NewOllamaAnalyzer creates a new OllamaAnalyzer from the AI configuration.
func NewOllamaAnalyzer(logger *slog.Logger, cfg config.AIConfig) (*OllamaAnalyzer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.OllamaURL == "" {
		return nil, fmt.Errorf("%w: ollama URL cannot be empty", analysis.ErrInvalidConfig)
	}
	if cfg.OllamaModel == "" {
		return nil, fmt.Errorf("%w: ollama model name cannot be empty", analysis.ErrInvalidConfig)
	}

	return &OllamaAnalyzer{
		logger:  logger.With("component", "ollama_analyzer"),
		client:  &http.Client{Timeout: 120 * time.Second},
		baseURL: strings.TrimSuffix(cfg.OllamaURL, "/"),
		model:   cfg.OllamaModel,
	}, nil
}

// Ensure OllamaAnalyzer implements analysis.Analyzer.
var _ analysis.Analyzer = (*OllamaAnalyzer)(nil)

// Provider implements analysis.Analyzer.Provider.
func (o *OllamaAnalyzer) Provider() string {
	return Provider
}

// generateRequest is the /api/generate request body.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format,omitempty"`
	Stream bool   `json:"stream"`
}

// generateResponse is the non-streaming /api/generate response body.
type generateResponse struct {
	Response string `json:"response"`
}

// embeddingsRequest is the /api/embeddings request body.
type embeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// embeddingsResponse is the /api/embeddings response body.
type embeddingsResponse struct {
	Embedding []float64 `json:"embedding"`
}

// enrichmentSchema mirrors the JSON structure the prompt requests.
type enrichmentSchema struct {
	SuggestedFilename string `json:"suggested_filename"`
	Summary           string `json:"summary"`
	Tags              []struct {
		Tag        string  `json:"tag"`
		Confidence float64 `json:"confidence"`
	} `json:"tags"`
}

// Analyze implements analysis.Analyzer.Analyze.
func (o *OllamaAnalyzer) Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("%w: empty text", analysis.ErrAnalysisFailed)
	}

	o.logger.DebugContext(ctx, "calling ollama generation",
		"model", o.model, "text_length", len(req.Text))

	var genResp generateResponse
	err := o.post(ctx, "/api/generate", generateRequest{
		Model:  o.model,
		Prompt: fmt.Sprintf(prompt, req.Filename, req.Text),
		Format: "json",
		Stream: false,
	}, &genResp)
	if err != nil {
		return nil, err
	}

	raw := strings.TrimSpace(genResp.Response)
	var schema enrichmentSchema
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		return nil, fmt.Errorf("%w: failed to decode enrichment JSON: %v", analysis.ErrInvalidResponse, err)
	}
	if schema.SuggestedFilename == "" && schema.Summary == "" {
		return nil, fmt.Errorf("%w: enrichment JSON has no usable fields", analysis.ErrInvalidResponse)
	}

	var embResp embeddingsResponse
	err = o.post(ctx, "/api/embeddings", embeddingsRequest{
		Model:  o.model,
		Prompt: req.Text,
	}, &embResp)
	if err != nil {
		return nil, err
	}

	result := &analysis.Result{
		SuggestedFilename: schema.SuggestedFilename,
		Summary:           schema.Summary,
		Embedding:         toFloat32(embResp.Embedding),
	}
	for _, t := range schema.Tags {
		result.Tags = append(result.Tags, analysis.Tag{Tag: t.Tag, Confidence: t.Confidence})
	}

	return result, nil
}

// post sends a JSON request to the Ollama server and decodes the JSON
// response into out.
func (o *OllamaAnalyzer) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: failed to encode request: %v", analysis.ErrAnalysisFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: failed to build request: %v", analysis.ErrAnalysisFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", analysis.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %s returned %d: %s", analysis.ErrUnavailable, path, resp.StatusCode, snippet)
		}
		return fmt.Errorf("%w: %s returned %d: %s", analysis.ErrAnalysisFailed, path, resp.StatusCode, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", analysis.ErrInvalidResponse, err)
	}

	return nil
}

func toFloat32(vs []float64) []float32 {
	out := make([]float32, len(vs))
	for i, v := range vs {
		out[i] = float32(v)
	}
	return out
}
