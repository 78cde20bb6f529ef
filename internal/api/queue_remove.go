package api

import "context"

// QueueRemoveService captures queue operations needed by per-entry remove workflows.
type QueueRemoveService interface {
	Remove(ctx context.Context, id int64) (bool, error)
}

type RemoveEntryOutcome string

const (
	RemoveEntryRemoved  RemoveEntryOutcome = "removed"
	RemoveEntryNotFound RemoveEntryOutcome = "not_found"
)

type RemoveEntryResult struct {
	ID      int64              `json:"id"`
	Outcome RemoveEntryOutcome `json:"outcome"`
}

type RemoveEntriesResult struct {
	RemovedCount int64               `json:"removed_count"`
	Entries      []RemoveEntryResult `json:"entries"`
}

// RemoveEntriesByID removes queue entries one-by-one so each ID can report removed/not_found.
func RemoveEntriesByID(ctx context.Context, service QueueRemoveService, ids []int64) (RemoveEntriesResult, error) {
	result := RemoveEntriesResult{Entries: make([]RemoveEntryResult, 0, len(ids))}
	for _, id := range ids {
		removed, err := service.Remove(ctx, id)
		if err != nil {
			return RemoveEntriesResult{}, err
		}
		if removed {
			result.RemovedCount++
			result.Entries = append(result.Entries, RemoveEntryResult{ID: id, Outcome: RemoveEntryRemoved})
			continue
		}
		result.Entries = append(result.Entries, RemoveEntryResult{ID: id, Outcome: RemoveEntryNotFound})
	}
	return result, nil
}
