// Package daemon coordinates the long-running Docket process.
//
// It wires configuration, queue storage, the batch orchestrator, and the
// document index into a single lifecycle with flock-based locking to prevent
// multiple instances. Startup runs the readiness checks and refuses to come
// up while a blocking check fails; advisory failures only degrade a feature.
// The daemon exposes queue maintenance helpers, document enqueueing, and the
// HTTP API the CLI talks to.
//
// Keep orchestration logic here: per-entry processing lives in the pipeline
// package while the daemon focuses on startup, shutdown, and the control
// surface.
package daemon
