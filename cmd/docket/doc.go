// Package main hosts the docket CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP
// calls against the daemon API, queue maintenance operations, log streaming,
// and configuration scaffolding. Commands that work on the queue fall back to
// the database directly when no daemon is running, so operators keep a
// working toolbox either way.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
