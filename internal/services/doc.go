// Package services defines shared utilities consumed by the pipeline stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp queue entry IDs, contract and job
//     identifiers, stage names, and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into retryable and terminal kinds for the queue.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
