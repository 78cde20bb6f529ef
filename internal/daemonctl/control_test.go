package daemonctl

import (
	"os"
	"path/filepath"
	"testing"

	"docket/internal/api"
)

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docket.pid")

	if pid, err := ReadPID(path); err != nil || pid != 0 {
		t.Fatalf("ReadPID(missing) = %d, %v; want 0, nil", pid, err)
	}

	if err := os.WriteFile(path, []byte("12345\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	pid, err := ReadPID(path)
	if err != nil {
		t.Fatalf("ReadPID: %v", err)
	}
	if pid != 12345 {
		t.Fatalf("pid = %d, want 12345", pid)
	}

	if err := os.WriteFile(path, []byte("not-a-pid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if pid, err := ReadPID(path); err != nil || pid != 0 {
		t.Fatalf("ReadPID(garbage) = %d, %v; want 0, nil", pid, err)
	}
}

func TestProcessAlive(t *testing.T) {
	if !ProcessAlive(os.Getpid()) {
		t.Fatal("expected current process to count as alive")
	}
	if ProcessAlive(0) {
		t.Fatal("pid 0 should not count as alive")
	}
	if ProcessAlive(-1) {
		t.Fatal("negative pid should not count as alive")
	}
}

func TestBuildDependencySummary(t *testing.T) {
	empty := BuildDependencySummary(nil)
	if empty.Severity != "info" {
		t.Fatalf("empty severity = %q, want info", empty.Severity)
	}

	allAvailable := BuildDependencySummary([]api.DependencyStatus{
		{Name: "LibreOffice", Available: true},
		{Name: "pdftotext", Available: true},
	})
	if allAvailable.Severity != "ok" {
		t.Fatalf("severity = %q, want ok", allAvailable.Severity)
	}
	if allAvailable.Detail != "2/2 available" {
		t.Fatalf("detail = %q", allAvailable.Detail)
	}

	missingOptional := BuildDependencySummary([]api.DependencyStatus{
		{Name: "LibreOffice", Available: true},
		{Name: "tesseract", Optional: true},
	})
	if missingOptional.Severity != "warn" {
		t.Fatalf("severity = %q, want warn", missingOptional.Severity)
	}
	if missingOptional.MissingOptional != 1 {
		t.Fatalf("missing optional = %d, want 1", missingOptional.MissingOptional)
	}

	missingRequired := BuildDependencySummary([]api.DependencyStatus{
		{Name: "LibreOffice"},
		{Name: "pdftotext", Available: true},
	})
	if missingRequired.Severity != "error" {
		t.Fatalf("severity = %q, want error", missingRequired.Severity)
	}
	if missingRequired.MissingRequired != 1 {
		t.Fatalf("missing required = %d, want 1", missingRequired.MissingRequired)
	}
}
