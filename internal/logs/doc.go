// Package logs reads daemon log files and fetches structured events from the
// daemon's log API.
//
// File tailing works with bounded memory: a negative offset means "last N
// lines", a non-negative offset resumes from a previous read, and follow mode
// polls for new lines until the caller's context ends. The CLI uses both
// halves for `docket logs`, preferring the API and falling back to the log
// file when the daemon is down.
package logs
