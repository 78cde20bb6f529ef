package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrUnavailable   = errors.New("service unavailable")
)

// ErrorKind is a string classification attached to wrapped service errors.
// The queue package consumes it to decide whether a failure requeues.
type ErrorKind string

const (
	ErrorKindExternal      ErrorKind = "external_tool"
	ErrorKindValidation    ErrorKind = "validation"
	ErrorKindConfiguration ErrorKind = "configuration"
	ErrorKindNotFound      ErrorKind = "not_found"
	ErrorKindTimeout       ErrorKind = "timeout"
	ErrorKindTransient     ErrorKind = "transient"
)

type classifiedError struct {
	kind ErrorKind
	err  error
}

func (e *classifiedError) Error() string     { return e.err.Error() }
func (e *classifiedError) Unwrap() error     { return e.err }
func (e *classifiedError) ErrorKind() string { return string(e.kind) }

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	var wrapped error
	if err != nil {
		wrapped = fmt.Errorf("%w: %s: %w", marker, detail, err)
	} else {
		wrapped = fmt.Errorf("%w: %s", marker, detail)
	}
	return &classifiedError{kind: Classify(marker), err: wrapped}
}

// Classify maps an error to its kind via sentinel matching. Unrecognized
// errors classify as transient.
func Classify(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrValidation):
		return ErrorKindValidation
	case errors.Is(err, ErrConfiguration):
		return ErrorKindConfiguration
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrTimeout):
		return ErrorKindTimeout
	case errors.Is(err, ErrExternalTool):
		return ErrorKindExternal
	default:
		return ErrorKindTransient
	}
}

// Retryable reports whether the pipeline should requeue an entry after this
// error. Validation, configuration, and not-found failures are deterministic
// and never retried; everything else is worth another attempt.
func Retryable(err error) bool {
	switch Classify(err) {
	case ErrorKindValidation, ErrorKindConfiguration, ErrorKindNotFound:
		return false
	default:
		return true
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
