package preflight

import (
	"context"
	"path/filepath"

	"docket/internal/config"
)

// Result reports the outcome of a single preflight check. Advisory failures
// degrade a feature (placeholder summaries, no OCR for scanned documents)
// rather than break processing outright; callers decide how hard to react.
type Result struct {
	Name     string
	Passed   bool
	Advisory bool
	Detail   string
}

// RunAll executes every readiness check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Index directory", cfg.Paths.IndexDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Database directory", filepath.Dir(cfg.Paths.DatabasePath)),
		CheckFreeSpace(cfg.Paths.StagingDir, cfg.Processing.MinFreeSpaceMB),
	}
	results = append(results, CheckTools(cfg)...)
	results = append(results, CheckCompletion(ctx, cfg.GetCompletion()))
	return results
}

// Blockers filters results down to the failures that should stop the daemon.
func Blockers(results []Result) []Result {
	var blockers []Result
	for _, result := range results {
		if !result.Passed && !result.Advisory {
			blockers = append(blockers, result)
		}
	}
	return blockers
}
