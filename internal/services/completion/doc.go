// Package completion provides the retrying OpenRouter chat client used to
// summarize extracted document text.
//
// This package is used by:
//   - Summarization stage: produce the structured summary stored with each
//     processed document
//   - Preflight: verify the API key and model before the daemon starts work
//
// # Retry Behaviour
//
// Failures are classified against a closed set of retryable conditions:
// gateway statuses (502/503/504), request-timeout and rate-limit statuses
// (408/429), connection reset/abort/timed-out network errors, and diagnostic
// messages carrying a timeout or gateway keyword. Retryable failures back
// off exponentially (2s base, doubling per attempt, 30s ceiling, 3 attempts
// by default) and honor a larger server Retry-After. Everything else fails
// fast, including context cancellation.
//
// # Placeholder Results
//
// Summarize never returns an error. When the service cannot produce usable
// content, the result carries a diagnostic placeholder with the failure
// class and attempt count, and Placeholder is true. Batch processing is
// therefore never blocked by a single document's summary failing.
//
// # Payload Validation
//
// The model is asked for a JSON summary payload. Responses are stripped of
// code fences, then validated against an embedded JSON Schema. Content that
// fails validation degrades to a plain-text summary rather than an error.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Summarize: summarize document text, always returning content.
// Client.HealthCheck: single-attempt probe of key and model availability.
// Classify: map a failure onto the closed retryable/fatal kind set.
package completion
