package queue

import (
	"fmt"
	"path/filepath"
	"strings"

	"docket/internal/textutil"
)

// StagingRoot returns the per-entry staging directory rooted at base. The
// segment combines the contract and entry ID so concurrent entries never
// collide.
func (e Entry) StagingRoot(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	segment := strings.TrimSpace(e.ContractID)
	if segment != "" {
		segment = fmt.Sprintf("%s-entry-%d", segment, e.ID)
	} else {
		segment = fmt.Sprintf("entry-%d", e.ID)
	}
	segment = sanitizeSegment(segment)
	return filepath.Join(base, segment)
}

// Stem returns the entry's filename without its extension. Processed-index
// keys are derived from it, so the stem must be stable across retries.
func (e Entry) Stem() string {
	name := strings.TrimSpace(e.Filename)
	if name == "" {
		name = inferFilenameFromSource(e.LocalPath, e.DocumentURL)
	}
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func sanitizeSegment(value string) string {
	value = textutil.SanitizeFileName(value)
	if value == "" {
		return ""
	}
	value = strings.ReplaceAll(value, " ", "-")
	value = strings.Trim(value, "-_")
	if value == "" {
		return "entry"
	}
	return value
}
