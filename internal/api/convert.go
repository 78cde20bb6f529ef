package api

import (
	"encoding/json"
	"time"

	"docket/internal/logging"
	"docket/internal/pipeline"
	"docket/internal/preflight"
	"docket/internal/queue"
)

// FromEntry converts a queue record to its API representation.
func FromEntry(entry *queue.Entry) Entry {
	if entry == nil {
		return Entry{}
	}

	dto := Entry{
		ID:           entry.ID,
		ContractID:   entry.ContractID,
		DocumentURL:  entry.DocumentURL,
		LocalPath:    entry.LocalPath,
		Filename:     entry.Filename,
		Status:       string(entry.Status),
		RetryCount:   entry.RetryCount,
		MaxRetries:   entry.MaxRetries,
		ErrorMessage: entry.ErrorMessage,
		CreatedAt:    formatTime(entry.CreatedAt),
		UpdatedAt:    formatTime(entry.UpdatedAt),
		StartedAt:    formatTimePtr(entry.StartedAt),
		CompletedAt:  formatTimePtr(entry.CompletedAt),
		FailedAt:     formatTimePtr(entry.FailedAt),
	}
	if raw := entry.ProcessedData; raw != "" {
		dto.ProcessedData = json.RawMessage(raw)
	}
	return dto
}

// FromEntries converts a slice of queue records into API DTOs.
func FromEntries(entries []*queue.Entry) []Entry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		out = append(out, FromEntry(entry))
	}
	return out
}

// FromJob converts a stored job row to its API representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	return Job{
		ID:               job.ID,
		JobType:          job.JobType,
		Status:           string(job.Status),
		Running:          job.Status == queue.JobRunning,
		RecordsProcessed: job.RecordsProcessed,
		ErrorsCount:      job.ErrorsCount,
		ErrorDetails:     job.ErrorDetails,
		StartedAt:        formatTime(job.StartedAt),
		CompletedAt:      formatTimePtr(job.CompletedAt),
	}
}

// FromJobs converts a slice of job rows into API DTOs.
func FromJobs(jobs []*queue.Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromJobStatus converts an orchestrator status snapshot, which carries run
// goroutine liveness on top of the stored counters.
func FromJobStatus(status pipeline.JobStatus) Job {
	return Job{
		ID:               status.JobID,
		JobType:          status.JobType,
		Status:           string(status.Status),
		Running:          status.Running,
		RecordsProcessed: status.RecordsProcessed,
		ErrorsCount:      status.ErrorsCount,
		ErrorDetails:     status.ErrorDetails,
		StartedAt:        formatTime(status.StartedAt),
		CompletedAt:      formatTimePtr(status.CompletedAt),
	}
}

// FromHealth flattens the store's health summary and database diagnostics
// into the transport shape.
func FromHealth(summary queue.HealthSummary, db queue.DatabaseHealth) QueueHealth {
	return QueueHealth{
		Total:      summary.Total,
		Queued:     summary.Queued,
		Processing: summary.Processing,
		Completed:  summary.Completed,
		Failed:     summary.Failed,
		Database: DatabaseHealth{
			Path:             db.DBPath,
			SchemaVersion:    db.SchemaVersion,
			DatabaseExists:   db.DatabaseExists,
			DatabaseReadable: db.DatabaseReadable,
			TableExists:      db.TableExists,
			ColumnsPresent:   db.ColumnsPresent,
			MissingColumns:   db.MissingColumns,
			TotalEntries:     db.TotalEntries,
			IntegrityCheck:   db.IntegrityCheck,
			Error:            db.Error,
		},
	}
}

// MergeQueueStats produces a string-keyed representation of queue stats.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// FromPreflight converts readiness check results into API DTOs.
func FromPreflight(results []preflight.Result) []PreflightResult {
	if len(results) == 0 {
		return nil
	}
	out := make([]PreflightResult, 0, len(results))
	for _, result := range results {
		out = append(out, PreflightResult{
			Name:     result.Name,
			Passed:   result.Passed,
			Advisory: result.Advisory,
			Detail:   result.Detail,
		})
	}
	return out
}

// FromLogEvents converts structured log events into their transport form.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		var details []DetailField
		if len(evt.Details) > 0 {
			details = make([]DetailField, 0, len(evt.Details))
			for _, detail := range evt.Details {
				details = append(details, DetailField{Label: detail.Label, Value: detail.Value})
			}
		}
		out = append(out, LogEvent{
			Sequence:      evt.Sequence,
			Timestamp:     formatTime(evt.Timestamp),
			Level:         evt.Level,
			Message:       evt.Message,
			Component:     evt.Component,
			Stage:         evt.Stage,
			EntryID:       evt.EntryID,
			ContractID:    evt.ContractID,
			JobID:         evt.JobID,
			CorrelationID: evt.CorrelationID,
			Fields:        evt.Fields,
			Details:       details,
		})
	}
	return out
}

// FromSpaceProbe converts a staging volume snapshot into its API form.
func FromSpaceProbe(probe preflight.SpaceProbe) StagingSpace {
	return StagingSpace{
		Known:   probe.Known,
		Path:    probe.Path,
		FreeMB:  probe.FreeMB,
		TotalMB: probe.TotalMB,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
