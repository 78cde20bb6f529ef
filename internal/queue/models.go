package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue entry.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusQueued,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Entry represents one document awaiting or undergoing processing,
// persisted in SQLite.
type Entry struct {
	ID            int64
	ContractID    string
	DocumentURL   string
	LocalPath     string
	Filename      string
	Status        Status
	RetryCount    int
	MaxRetries    int
	ProcessedData string
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	FailedAt      *time.Time
}

// JobStatus represents the lifecycle of a processing job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
)

// JobTypeDocumentProcessing is the job type recorded for batch document runs.
const JobTypeDocumentProcessing = "document_processing"

// Job aggregates the outcome of one batch run. Counters are committed once,
// when the run finishes.
type Job struct {
	ID               string
	JobType          string
	Status           JobStatus
	RecordsProcessed int
	ErrorsCount      int
	ErrorDetails     []string
	StartedAt        time.Time
	CompletedAt      *time.Time
}

// AllStatuses returns the ordered list of known entry statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the entry has reached a final state.
func (e Entry) IsTerminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusFailed
}

// RetriesExhausted reports whether the entry has consumed its requeue budget.
func (e Entry) RetriesExhausted() bool {
	return e.RetryCount >= e.MaxRetries
}

// SourceRef returns the location the entry's bytes come from, preferring the
// local path when both are recorded.
func (e Entry) SourceRef() string {
	if e.LocalPath != "" {
		return e.LocalPath
	}
	return e.DocumentURL
}
