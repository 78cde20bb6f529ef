package preflight

import (
	"context"
	"fmt"
	"strings"

	"docket/internal/config"
)

// CheckCompletionFromConfig evaluates completion service status from config
// and connectivity.
func CheckCompletionFromConfig(cfg *config.Config) Result {
	const name = completionCheckName

	if cfg == nil {
		return Result{Name: name, Advisory: true, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Completion.APIKey) == "" {
		return Result{Name: name, Advisory: true, Detail: "Missing API key"}
	}
	return CheckCompletion(context.Background(), cfg.GetCompletion())
}

// SpaceProbe reports a staging-volume capacity snapshot.
type SpaceProbe struct {
	Known   bool
	Path    string
	FreeMB  uint64
	TotalMB uint64
}

// ProbeSpace inspects the filesystem backing the given path.
func ProbeSpace(path string) SpaceProbe {
	path = strings.TrimSpace(path)
	if path == "" {
		return SpaceProbe{}
	}
	total, free, err := statVolume(path)
	if err != nil {
		return SpaceProbe{Path: path}
	}
	return SpaceProbe{
		Known:   true,
		Path:    path,
		FreeMB:  free,
		TotalMB: total,
	}
}

// SpaceDetail renders a display-friendly summary for status UIs.
func (p SpaceProbe) SpaceDetail() string {
	if !p.Known {
		return "Staging volume not probed"
	}
	return fmt.Sprintf("%d MB free of %d MB on %s", p.FreeMB, p.TotalMB, p.Path)
}
