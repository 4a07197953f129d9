package task

import (
	"context"
	"fmt"

	"github.com/driveflow/driveflow-api/internal/analysis"
	"github.com/driveflow/driveflow-api/internal/domain"
)

// State is the explicit snapshot threaded through a task's stage sequence.
// Each stage reads what earlier stages produced and records its own output;
// nothing is shared between concurrent tasks.
type State struct {
	// File is the entity being processed. Nil for entity-less kinds.
	File *domain.File

	// Data is the raw object downloaded from storage.
	Data []byte

	// DetectedMime is the sniffed content type of Data.
	DetectedMime string

	// Text is the extracted text content, empty when the format carries none.
	Text string

	// Analysis holds the AI enrichment result once the analyze stage ran.
	Analysis *analysis.Result

	// AnalysisProvider names the provider that produced Analysis, which may
	// be the fallback.
	AnalysisProvider string

	// ThumbnailKey is the object key of the generated thumbnail, if any.
	ThumbnailKey string

	// FailureReason carries the error message for failure notifications.
	FailureReason string
}

// Stage is one idempotent unit of work in a task's execution sequence. Run
// performs the stage's own I/O against external collaborators and classifies
// failures with Transient, Permanent, or Deferred; unclassified errors are
// treated as transient by the retry controller.
type Stage interface {
	// Name identifies the stage in logs and events.
	Name() string

	// Checkpoint is the progress percentage reached when this stage
	// completes. Checkpoints must be non-decreasing along a sequence.
	Checkpoint() int

	// Run executes the stage against the shared state.
	Run(ctx context.Context, st *State) error
}

// StageSet maps every task kind to its fixed stage sequence. The mapping is
// closed and validated once at startup instead of resolved by name at
// dispatch time.
type StageSet map[Kind][]Stage

// Validate checks that the set covers every defined kind, that no sequence
// is empty, and that checkpoints are non-decreasing and end at 100.
func (s StageSet) Validate() error {
	for _, kind := range []Kind{KindFullProcess, KindReprocess, KindThumbnail, KindNotify, KindCleanup} {
		stages, ok := s[kind]
		if !ok || len(stages) == 0 {
			return fmt.Errorf("no stage sequence defined for kind %q", kind)
		}

		prev := 0
		for _, stage := range stages {
			cp := stage.Checkpoint()
			if cp < prev || cp > 100 {
				return fmt.Errorf(
					"kind %q: stage %q checkpoint %d out of order (previous %d)",
					kind, stage.Name(), cp, prev)
			}
			prev = cp
		}

		if prev != 100 {
			return fmt.Errorf("kind %q: final stage %q ends at %d, want 100",
				kind, stages[len(stages)-1].Name(), prev)
		}
	}
	return nil
}
