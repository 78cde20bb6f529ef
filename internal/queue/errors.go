package queue

import "errors"

// ErrorClassifier allows errors to declare their classification for retry mapping.
// Errors that implement this interface can influence whether a failure requeues
// the entry or sends it straight to the terminal failed state.
type ErrorClassifier interface {
	// ErrorKind returns a string classification of the error.
	// Known kinds that suppress requeueing: "validation", "configuration", "not_found"
	// All other kinds are treated as transient.
	ErrorKind() string
}

// Retryable reports whether a processing failure should send the entry back to
// queued (budget permitting) rather than straight to failed.
//
// Errors implementing ErrorClassifier with kinds "validation", "configuration",
// or "not_found" are deterministic and never requeued. All other errors are
// treated as transient and requeue until the entry's retry budget runs out.
func Retryable(err error) bool {
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		switch classifier.ErrorKind() {
		case "validation", "configuration", "not_found":
			return false
		}
	}
	return true
}
