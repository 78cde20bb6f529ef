package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Entry describes a queue entry in a transport-friendly format.
type Entry struct {
	ID            int64           `json:"id"`
	ContractID    string          `json:"contract_id"`
	DocumentURL   string          `json:"document_url,omitempty"`
	LocalPath     string          `json:"local_path,omitempty"`
	Filename      string          `json:"filename"`
	Status        string          `json:"status"`
	RetryCount    int             `json:"retry_count"`
	MaxRetries    int             `json:"max_retries"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	ProcessedData json.RawMessage `json:"processed_data,omitempty"`
	CreatedAt     string          `json:"created_at,omitempty"`
	UpdatedAt     string          `json:"updated_at,omitempty"`
	StartedAt     string          `json:"started_at,omitempty"`
	CompletedAt   string          `json:"completed_at,omitempty"`
	FailedAt      string          `json:"failed_at,omitempty"`
}

// Job describes a batch processing job in a transport-friendly format.
type Job struct {
	ID               string   `json:"id"`
	JobType          string   `json:"job_type"`
	Status           string   `json:"status"`
	Running          bool     `json:"running"`
	RecordsProcessed int      `json:"records_processed"`
	ErrorsCount      int      `json:"errors_count"`
	ErrorDetails     []string `json:"error_details,omitempty"`
	StartedAt        string   `json:"started_at,omitempty"`
	CompletedAt      string   `json:"completed_at,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DependencySummary aggregates dependency readiness for status output.
type DependencySummary struct {
	Total           int    `json:"total"`
	Available       int    `json:"available"`
	MissingRequired int    `json:"missing_required"`
	MissingOptional int    `json:"missing_optional"`
	Severity        string `json:"severity"`
	Detail          string `json:"detail"`
}

// StatusLine is one rendered row of a status report section.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// PreflightResult mirrors a single readiness check outcome.
type PreflightResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Advisory bool   `json:"advisory,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// StagingSpace reports capacity of the staging volume.
type StagingSpace struct {
	Known   bool   `json:"known"`
	Path    string `json:"path,omitempty"`
	FreeMB  uint64 `json:"free_mb"`
	TotalMB uint64 `json:"total_mb"`
}

// PipelineStatus summarizes orchestrator execution state.
type PipelineStatus struct {
	RunningJobs []Job          `json:"running_jobs"`
	QueueStats  map[string]int `json:"queue_stats"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running          bool               `json:"running"`
	PID              int                `json:"pid"`
	QueueDBPath      string             `json:"queue_db_path"`
	LockFilePath     string             `json:"lock_file_path"`
	Pipeline         PipelineStatus     `json:"pipeline"`
	IndexedDocuments int                `json:"indexed_documents"`
	Dependencies     []DependencyStatus `json:"dependencies"`
	Preflight        []PreflightResult  `json:"preflight,omitempty"`
	Staging          StagingSpace       `json:"staging"`
}

// ProcessRequest asks the daemon to start a batch over queued entries.
type ProcessRequest struct {
	ContractID  string `json:"contract_id,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Concurrency int    `json:"concurrency,omitempty"`
	TestMode    bool   `json:"test_mode,omitempty"`
}

// ProcessAccepted acknowledges an accepted processing request.
type ProcessAccepted struct {
	JobID string `json:"job_id"`
}

// EnqueueRequest describes a document to add to the queue.
type EnqueueRequest struct {
	ContractID  string `json:"contract_id"`
	DocumentURL string `json:"document_url,omitempty"`
	LocalPath   string `json:"local_path,omitempty"`
	Filename    string `json:"filename,omitempty"`
}

// RetryRequest narrows a retry operation to specific entries. An empty ID
// list retries every failed entry.
type RetryRequest struct {
	IDs []int64 `json:"ids,omitempty"`
}

// QueueStatsResponse provides a normalized queue stats payload.
type QueueStatsResponse struct {
	Counts map[string]int `json:"counts"`
}

// QueueHealth combines entry counts with database diagnostics so operators
// can judge queue condition in one request.
type QueueHealth struct {
	Total      int            `json:"total"`
	Queued     int            `json:"queued"`
	Processing int            `json:"processing"`
	Completed  int            `json:"completed"`
	Failed     int            `json:"failed"`
	Database   DatabaseHealth `json:"database"`
}

// DatabaseHealth reports the structural state of the queue database.
type DatabaseHealth struct {
	Path             string   `json:"path,omitempty"`
	SchemaVersion    string   `json:"schema_version,omitempty"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present,omitempty"`
	MissingColumns   []string `json:"missing_columns,omitempty"`
	TotalEntries     int      `json:"total_entries"`
	IntegrityCheck   bool     `json:"integrity_check"`
	Error            string   `json:"error,omitempty"`
}

// QueueListResponse wraps a collection of queue entries for API responses.
type QueueListResponse struct {
	Entries []Entry `json:"entries"`
}

// EntryResponse wraps a single queue entry.
type EntryResponse struct {
	Entry Entry `json:"entry"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// ActionResponse reports how many rows a maintenance operation touched.
type ActionResponse struct {
	Updated int64 `json:"updated"`
}

// LogEvent is the transport form of a structured log line.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     string            `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	EntryID       int64             `json:"entry_id,omitempty"`
	ContractID    string            `json:"contract_id,omitempty"`
	JobID         string            `json:"job_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
	Details       []DetailField     `json:"details,omitempty"`
}

// DetailField carries a labelled value attached to a log event.
type DetailField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// LogStreamResponse carries a page of log events plus the next cursor.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`
}

// ErrorResponse is the uniform error payload for non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
