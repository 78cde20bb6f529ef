package services_test

import (
	"errors"
	"strings"
	"testing"

	"docket/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "conversion", "soffice", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"conversion", "soffice", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "extraction", "read", "short file", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected nil marker to default to transient, got %v", err)
	}
}

func TestClassifyMapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want services.ErrorKind
	}{
		{services.Wrap(services.ErrValidation, "conversion", "inspect", "unsupported", nil), services.ErrorKindValidation},
		{services.Wrap(services.ErrConfiguration, "pipeline", "start", "missing key", nil), services.ErrorKindConfiguration},
		{services.Wrap(services.ErrNotFound, "conversion", "fetch", "missing", nil), services.ErrorKindNotFound},
		{services.Wrap(services.ErrTimeout, "recognition", "tesseract", "deadline", nil), services.ErrorKindTimeout},
		{services.Wrap(services.ErrExternalTool, "conversion", "soffice", "exit 1", nil), services.ErrorKindExternal},
		{errors.New("anything"), services.ErrorKindTransient},
	}
	for _, tc := range cases {
		if got := services.Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v): expected %s, got %s", tc.err, tc.want, got)
		}
	}
}

func TestRetryableMapping(t *testing.T) {
	terminal := []error{
		services.Wrap(services.ErrValidation, "conversion", "inspect", "unsupported", nil),
		services.Wrap(services.ErrConfiguration, "pipeline", "start", "missing key", nil),
		services.Wrap(services.ErrNotFound, "conversion", "fetch", "missing", nil),
	}
	for _, err := range terminal {
		if services.Retryable(err) {
			t.Fatalf("expected %v to be terminal", err)
		}
	}

	retryable := []error{
		services.Wrap(services.ErrTransient, "conversion", "copy", "copy failed", errors.New("io")),
		services.Wrap(services.ErrTimeout, "pipeline", "entry", "deadline", nil),
		services.Wrap(services.ErrExternalTool, "recognition", "tesseract", "exit 1", nil),
		errors.New("unclassified"),
	}
	for _, err := range retryable {
		if !services.Retryable(err) {
			t.Fatalf("expected %v to be retryable", err)
		}
	}
}

func TestWrappedErrorsSatisfyKindClassifier(t *testing.T) {
	err := services.Wrap(services.ErrValidation, "conversion", "inspect", "unsupported", nil)
	var classifier interface{ ErrorKind() string }
	if !errors.As(err, &classifier) {
		t.Fatalf("expected wrapped error to expose its kind, got %T", err)
	}
	if classifier.ErrorKind() != string(services.ErrorKindValidation) {
		t.Fatalf("expected validation kind, got %s", classifier.ErrorKind())
	}
}
