package build

import (
	"context"
	"log/slog"
	"time"

	"srcweb/internal/jobs"
)

// Resetter drops cached file state after the index changes.
type Resetter interface {
	Reset()
}

// ReindexHandler returns the job handler for reindex jobs: reload the
// analysis data without building, then drop cached highlighting that
// carries links from the old index.
func ReindexHandler(indexer Indexer, files Resetter, logger *slog.Logger) jobs.JobHandler {
	return func(ctx context.Context, job *jobs.Job, progress func(int)) (interface{}, error) {
		scope, err := jobs.ParseReindexScope(job.Scope)
		if err != nil {
			return nil, err
		}
		start := time.Now()
		logger.Info("Reindexing analysis data", "jobId", job.ID, "reason", scope.Reason)

		progress(10)
		stats, err := indexer.Reload(ctx)
		if err != nil {
			return nil, err
		}
		progress(90)
		files.Reset()

		return jobs.ReindexResult{
			Crates:     stats.Crates,
			Defs:       stats.Defs,
			Refs:       stats.Refs,
			Files:      stats.Files,
			SoftErrors: stats.SoftErrors,
			Duration:   time.Since(start).String(),
		}, nil
	}
}
