package services_test

import (
	"context"
	"testing"

	"docket/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithEntryID(ctx, 42)
	ctx = services.WithContractID(ctx, "contract-7")
	ctx = services.WithJobID(ctx, "job-abc")
	ctx = services.WithStage(ctx, "conversion")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.EntryIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected entry id: %v %v", id, ok)
	}
	if contract, ok := services.ContractIDFromContext(ctx); !ok || contract != "contract-7" {
		t.Fatalf("unexpected contract id: %v %v", contract, ok)
	}
	if job, ok := services.JobIDFromContext(ctx); !ok || job != "job-abc" {
		t.Fatalf("unexpected job id: %v %v", job, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "conversion" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}
