package api

import (
	"context"

	"docket/internal/queue"
)

// QueueActionService captures queue operations needed by per-entry retry workflows.
type QueueActionService interface {
	Describe(ctx context.Context, id int64) (*Entry, error)
	Retry(ctx context.Context, ids []int64) (int64, error)
}

type RetryEntryOutcome string

const (
	RetryEntryUpdated   RetryEntryOutcome = "retried"
	RetryEntryNotFound  RetryEntryOutcome = "not_found"
	RetryEntryNotFailed RetryEntryOutcome = "not_failed"
)

type RetryEntryResult struct {
	ID      int64             `json:"id"`
	Outcome RetryEntryOutcome `json:"outcome"`
}

type RetryEntriesResult struct {
	UpdatedCount int64              `json:"updated_count"`
	Entries      []RetryEntryResult `json:"entries"`
}

// RetryFailedEntriesByID validates IDs and retries only failed entries.
func RetryFailedEntriesByID(ctx context.Context, service QueueActionService, ids []int64) (RetryEntriesResult, error) {
	result := RetryEntriesResult{Entries: make([]RetryEntryResult, 0, len(ids))}
	for _, id := range ids {
		entry, err := service.Describe(ctx, id)
		if err != nil {
			return RetryEntriesResult{}, err
		}
		if entry == nil {
			result.Entries = append(result.Entries, RetryEntryResult{ID: id, Outcome: RetryEntryNotFound})
			continue
		}
		status, ok := queue.ParseStatus(entry.Status)
		if !ok || status != queue.StatusFailed {
			result.Entries = append(result.Entries, RetryEntryResult{ID: id, Outcome: RetryEntryNotFailed})
			continue
		}
		updated, err := service.Retry(ctx, []int64{id})
		if err != nil {
			return RetryEntriesResult{}, err
		}
		if updated > 0 {
			result.UpdatedCount += updated
			result.Entries = append(result.Entries, RetryEntryResult{ID: id, Outcome: RetryEntryUpdated})
			continue
		}
		result.Entries = append(result.Entries, RetryEntryResult{ID: id, Outcome: RetryEntryNotFailed})
	}
	return result, nil
}
