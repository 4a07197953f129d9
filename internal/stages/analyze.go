package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/driveflow/driveflow-api/internal/analysis"
	"github.com/driveflow/driveflow-api/internal/quota"
	"github.com/driveflow/driveflow-api/internal/task"
)

// Analyze runs AI enrichment on the extracted text. Every call is admitted
// through the quota governor first: a full per-minute window defers the
// whole task without consuming retry budget, and an exhausted daily quota
// reroutes the call to the fallback provider.
//
// Files with no extractable text skip analysis entirely and complete
// without enrichment.
type Analyze struct {
	governor   *quota.Governor
	analyzers  map[string]analysis.Analyzer
	primary    string
	logger     *slog.Logger
	checkpoint int
}

// NewAnalyze creates the analysis stage. analyzers must contain the primary
// provider and any fallback the governor can reroute to.
func NewAnalyze(
	governor *quota.Governor,
	analyzers map[string]analysis.Analyzer,
	primary string,
	logger *slog.Logger,
	checkpoint int,
) *Analyze {
	return &Analyze{
		governor:   governor,
		analyzers:  analyzers,
		primary:    primary,
		logger:     logger.With("stage", "analyze"),
		checkpoint: checkpoint,
	}
}

func (s *Analyze) Name() string    { return "analyze" }
func (s *Analyze) Checkpoint() int { return s.checkpoint }

func (s *Analyze) Run(ctx context.Context, st *task.State) error {
	if st.Text == "" {
		s.logger.DebugContext(ctx, "no extractable text, skipping analysis",
			"file_id", st.File.ID, "mime", st.DetectedMime)
		return nil
	}

	decision := s.governor.Admit(s.primary)
	if decision.Verdict == quota.VerdictDeny {
		return task.Deferred(fmt.Errorf("per-minute quota window for %q is full", s.primary))
	}

	provider := decision.Provider
	analyzer, ok := s.analyzers[provider]
	if !ok {
		// A provider the governor routes to but nothing implements is a
		// wiring bug, not a retryable condition.
		return task.Permanent(fmt.Errorf("%w: no analyzer registered for provider %q",
			analysis.ErrInvalidConfig, provider))
	}

	if decision.Verdict == quota.VerdictReroute {
		s.logger.InfoContext(ctx, "daily quota exhausted, using fallback provider",
			"file_id", st.File.ID, "provider", provider)
	}

	result, err := analyzer.Analyze(ctx, analysis.Request{
		Text:     st.Text,
		Filename: st.File.OriginalFilename,
	})
	if err != nil {
		return classifyAnalysisError(provider, err)
	}

	st.Analysis = result
	st.AnalysisProvider = provider
	return nil
}

// classifyAnalysisError maps provider error taxonomy onto retry semantics.
func classifyAnalysisError(provider string, err error) error {
	switch {
	case errors.Is(err, analysis.ErrRateLimited):
		// The provider is throttling beyond what the governor predicted;
		// treat it like a quota deferral so retry budget is preserved.
		return task.Deferred(fmt.Errorf("provider %q throttled the call: %w", provider, err))

	case errors.Is(err, analysis.ErrContentBlocked):
		return task.Permanent(fmt.Errorf("provider %q blocked the content: %w", provider, err))

	default:
		// Availability problems and malformed responses are worth retrying.
		return task.Transient(fmt.Errorf("analysis via %q failed: %w", provider, err))
	}
}
