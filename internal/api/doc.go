// Package api defines wire-format types, converters, and the HTTP client for
// the daemon's JSON API. It translates internal queue and pipeline models into
// transport-friendly DTOs so the CLI and other consumers never couple to
// internal types.
//
// # Key Types
//
// Entry: transport representation of a queue entry, with processed data passed
// through as raw JSON.
//
// Job: batch run outcome with counters, error details, and run liveness.
//
// DaemonStatus: aggregated runtime information including queue stats, running
// jobs, dependency availability, preflight results, and staging capacity.
//
// LogEvent/LogStreamResponse: structured log payloads for live tailing.
//
// # Converters
//
// FromEntry: queue.Entry -> Entry with RFC3339 timestamps.
//
// FromJobStatus: pipeline.JobStatus -> Job, carrying run goroutine liveness on
// top of the stored counters.
//
// # Client
//
// Client wraps every daemon endpoint for CLI consumption. Connection-level
// failures are distinguishable via IsUnavailable so callers can fall back to
// direct store access when the daemon is down.
//
// # Design Notes
//
// DTOs use snake_case JSON tags. Internal enums (queue.Status,
// queue.JobStatus) are exposed as lowercase strings. Timestamps use RFC3339
// with milliseconds. ProcessedData is passed through as json.RawMessage to
// avoid double-encoding.
package api
