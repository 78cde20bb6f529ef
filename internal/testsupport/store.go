package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"docket/internal/config"
	"docket/internal/index"
	"docket/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenIndex opens an in-memory document index for tests and registers
// cleanup.
func MustOpenIndex(t testing.TB) *index.Index {
	t.Helper()

	ix, err := index.Open("", true, nil)
	if err != nil {
		t.Fatalf("index.Open: %v", err)
	}
	t.Cleanup(func() {
		if err := ix.Close(); err != nil {
			t.Errorf("index.Close: %v", err)
		}
	})
	return ix
}

// NewEntry enqueues a document for tests using the provided store.
func NewEntry(t testing.TB, store *queue.Store, req queue.AddRequest) *queue.Entry {
	t.Helper()

	entry, err := store.Add(context.Background(), req)
	if err != nil {
		t.Fatalf("store.Add: %v", err)
	}
	return entry
}

// WriteTextFile creates a file with the given content under dir, creating
// parent directories as needed, and returns its path.
func WriteTextFile(t testing.TB, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
