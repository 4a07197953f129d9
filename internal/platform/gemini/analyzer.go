package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/driveflow/driveflow-api/internal/analysis"
	"github.com/driveflow/driveflow-api/internal/config"
	"google.golang.org/genai"
)

// Provider is the provider name this analyzer registers under, and the name
// the quota governor meters.
const Provider = "gemini"

// promptTemplate asks for enrichment as strict JSON so the response can be
// decoded directly into the response schema.
const promptTemplate = `You are a file organization assistant. Analyze the following file content and respond with a single JSON object, no markdown fences, with exactly these fields:
- "suggested_filename": a concise descriptive filename including the original extension
- "summary": a 1-2 sentence summary of the content
- "tags": an array of objects with "tag" (a short lowercase label) and "confidence" (0.0-1.0), at most 5 entries

Original filename: {{.Filename}}

File content:
{{.Text}}`

// responseSchema mirrors the JSON structure the prompt requests.
type responseSchema struct {
	SuggestedFilename string `json:"suggested_filename"`
	Summary           string `json:"summary"`
	Tags              []struct {
		Tag        string  `json:"tag"`
		Confidence float64 `json:"confidence"`
	} `json:"tags"`
}

// promptData is the template input.
type promptData struct {
	Filename string
	Text     string
}

// GeminiAnalyzer implements the analysis.Analyzer interface using Google's
// Gemini API for enrichment and embeddings.
type GeminiAnalyzer struct {
	logger *slog.Logger

	// client is the Gemini API client for making requests
	client *genai.Client

	// model generates the enrichment JSON; embeddingModel produces the
	// vector stored in the search index.
	model          string
	embeddingModel string

	prompt *template.Template
}

// NewGeminiAnalyzer creates a new GeminiAnalyzer from the AI configuration.
// It validates the configuration and initializes the API client; it does not
// make any API calls.
func NewGeminiAnalyzer(ctx context.Context, logger *slog.Logger, cfg config.AIConfig) (*GeminiAnalyzer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", analysis.ErrInvalidConfig)
	}
	if cfg.GeminiModel == "" {
		return nil, fmt.Errorf("%w: gemini model name cannot be empty", analysis.ErrInvalidConfig)
	}
	if cfg.EmbeddingModel == "" {
		return nil, fmt.Errorf("%w: embedding model name cannot be empty", analysis.ErrInvalidConfig)
	}

	prompt, err := template.New("enrichment").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse prompt template: %v", analysis.ErrInvalidConfig, err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", analysis.ErrInvalidConfig, err)
	}

	return &GeminiAnalyzer{
		logger:         logger.With("component", "gemini_analyzer"),
		client:         client,
		model:          cfg.GeminiModel,
		embeddingModel: cfg.EmbeddingModel,
		prompt:         prompt,
	}, nil
}

// Ensure GeminiAnalyzer implements analysis.Analyzer.
var _ analysis.Analyzer = (*GeminiAnalyzer)(nil)

// Provider implements analysis.Analyzer.Provider.
func (g *GeminiAnalyzer) Provider() string {
	return Provider
}

// Analyze implements analysis.Analyzer.Analyze. It makes two API calls: one
// generation call for the enrichment JSON and one embedding call for the
// search vector.
func (g *GeminiAnalyzer) Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("%w: empty text", analysis.ErrAnalysisFailed)
	}

	var promptBuf bytes.Buffer
	if err := g.prompt.Execute(&promptBuf, promptData{Filename: req.Filename, Text: req.Text}); err != nil {
		return nil, fmt.Errorf("%w: failed to render prompt: %v", analysis.ErrAnalysisFailed, err)
	}

	g.logger.DebugContext(ctx, "calling gemini generation",
		"model", g.model, "text_length", len(req.Text))

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(promptBuf.String()),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		})
	if err != nil {
		return nil, mapAPIError(err)
	}

	schema, err := decodeResponse(resp)
	if err != nil {
		return nil, err
	}

	embedding, err := g.embed(ctx, req.Text)
	if err != nil {
		return nil, err
	}

	result := &analysis.Result{
		SuggestedFilename: schema.SuggestedFilename,
		Summary:           schema.Summary,
		Embedding:         embedding,
	}
	for _, t := range schema.Tags {
		result.Tags = append(result.Tags, analysis.Tag{Tag: t.Tag, Confidence: t.Confidence})
	}

	return result, nil
}

// embed produces the embedding vector for the extracted text.
func (g *GeminiAnalyzer) embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), nil)
	if err != nil {
		return nil, mapAPIError(err)
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("%w: embedding response is empty", analysis.ErrInvalidResponse)
	}

	return resp.Embeddings[0].Values, nil
}

// decodeResponse extracts and decodes the JSON payload from a generation
// response, tolerating markdown fences some model revisions still emit.
func decodeResponse(resp *genai.GenerateContentResponse) (*responseSchema, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("%w: %s", analysis.ErrContentBlocked, resp.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("%w: no candidates returned", analysis.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: candidate has no content", analysis.ErrInvalidResponse)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		sb.WriteString(part.Text)
	}

	raw := strings.TrimSpace(sb.String())
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var schema responseSchema
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		return nil, fmt.Errorf("%w: failed to decode enrichment JSON: %v", analysis.ErrInvalidResponse, err)
	}

	if schema.SuggestedFilename == "" && schema.Summary == "" {
		return nil, fmt.Errorf("%w: enrichment JSON has no usable fields", analysis.ErrInvalidResponse)
	}

	return &schema, nil
}

// mapAPIError translates Gemini API errors into the analysis error taxonomy.
func mapAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return fmt.Errorf("%w: %v", analysis.ErrRateLimited, err)
		case apiErr.Code >= 500:
			return fmt.Errorf("%w: %v", analysis.ErrUnavailable, err)
		}
	}
	return fmt.Errorf("%w: %v", analysis.ErrAnalysisFailed, err)
}
