// Package queue persists document entries and job records in SQLite and
// exposes helpers for driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, stuck-entry recovery, and the status transitions the pipeline
// depends on: queued entries are claimed into processing, then marked
// completed or failed, with retryable failures requeued until their retry
// budget runs out. Job records aggregate one batch run each and receive
// their counters in a single commit when the run finishes.
//
// The database is treated as transient storage for in-flight work rather than
// a long-term archive. Schema changes bump the version in schema.go; users
// clear the database to adopt the new schema.
//
// Treat this package as the single source of truth for queue semantics; when
// you add new statuses or columns, update schema.sql and bump schemaVersion.
package queue
