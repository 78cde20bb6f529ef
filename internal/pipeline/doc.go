// Package pipeline coordinates batch document-processing jobs.
//
// The Orchestrator selects queued entries, creates a job record, and works the
// selection in sequential batches with a bounded number of concurrent entries
// per batch. Every entry in a batch settles before the next batch starts, so a
// slow or failing document delays only its own batch and never cancels a
// sibling. Per entry the flow is claim, convert, extract, index lookup,
// summarize, index update, then a single completion write carrying the
// processed-data blob.
//
// Job counters are committed exactly once, when the whole run settles. While a
// job runs its record shows zero counts and a running status; Status combines
// that record with registry liveness so callers can poll without blocking on
// in-flight work. Each entry also runs under a wall-clock budget: an entry
// that exceeds it fails with a timeout classification while its siblings
// continue.
package pipeline
