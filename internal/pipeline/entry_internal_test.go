package pipeline

import (
	"context"
	"testing"

	"docket/internal/queue"
	"docket/internal/testsupport"
)

func TestProcessEntrySkipsWhenShutdownBeatsClaim(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	entry := testsupport.NewEntry(t, store, queue.AddRequest{
		ContractID:  "C-77",
		DocumentURL: "https://contracts.example.gov/docs/sow.pdf",
		Filename:    "sow.pdf",
	})

	orch := New(cfg, store, Stages{}, nil)
	defer orch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := orch.processEntry(ctx, entry)
	if !out.skipped {
		t.Fatalf("expected entry to be skipped, got outcome %+v", out)
	}
	if out.err != nil {
		t.Fatalf("a shutdown-interrupted claim must not count as an entry error, got %v", out.err)
	}

	reloaded, err := store.ByID(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if reloaded.Status != queue.StatusQueued {
		t.Fatalf("entry should remain queued for the next run, got %s", reloaded.Status)
	}
}
