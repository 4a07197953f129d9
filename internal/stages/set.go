package stages

import (
	"log/slog"

	"github.com/driveflow/driveflow-api/internal/analysis"
	"github.com/driveflow/driveflow-api/internal/notify"
	"github.com/driveflow/driveflow-api/internal/quota"
	"github.com/driveflow/driveflow-api/internal/storage"
	"github.com/driveflow/driveflow-api/internal/store"
	"github.com/driveflow/driveflow-api/internal/task"
	"github.com/driveflow/driveflow-api/internal/thumbnail"
	"github.com/driveflow/driveflow-api/internal/vectorindex"
)

// Dependencies carries every collaborator the stage sequences need.
type Dependencies struct {
	Objects    storage.ObjectStore
	Files      store.FileStore
	Index      vectorindex.Index
	Notifier   notify.Notifier
	Governor   *quota.Governor
	Analyzers  map[string]analysis.Analyzer
	Primary    string
	Thumbnails *thumbnail.Generator
	Reaper     *task.Reaper
	Logger     *slog.Logger
}

// BuildSet assembles the per-kind stage sequences. The worker pool validates
// the result at construction, so a bad table can never reach dispatch.
func BuildSet(d Dependencies) task.StageSet {
	enrich := []task.Stage{
		NewDownload(d.Objects, 10),
		NewExtract(30),
		NewAnalyze(d.Governor, d.Analyzers, d.Primary, d.Logger, 70),
		NewPersist(d.Files, d.Index, d.Logger, 90),
		NewThumbnail(d.Thumbnails, d.Objects, d.Files, d.Logger, 100),
		NewNotify(d.Notifier, d.Logger, 100),
	}

	return task.StageSet{
		task.KindFullProcess: enrich,
		task.KindReprocess:   enrich,
		task.KindThumbnail: []task.Stage{
			NewDownload(d.Objects, 30),
			NewRequiredThumbnail(d.Thumbnails, d.Objects, d.Files, d.Logger, 100),
		},
		task.KindNotify: []task.Stage{
			NewNotify(d.Notifier, d.Logger, 100),
		},
		task.KindCleanup: []task.Stage{
			NewCleanup(d.Reaper, d.Logger, 100),
		},
	}
}
