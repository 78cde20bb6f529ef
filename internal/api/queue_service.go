package api

import (
	"context"

	"docket/internal/queue"
)

// QueueReader abstracts queue persistence interactions needed for API queries.
type QueueReader interface {
	List(ctx context.Context, statuses ...queue.Status) ([]*queue.Entry, error)
	Stats(ctx context.Context) (map[queue.Status]int, error)
	ByID(ctx context.Context, id int64) (*queue.Entry, error)
}

// QueueService exposes read-only queue operations returning API DTOs.
type QueueService struct {
	store QueueReader
}

// NewQueueService constructs a QueueService around the provided reader.
func NewQueueService(store QueueReader) *QueueService {
	if store == nil {
		return nil
	}
	return &QueueService{store: store}
}

// List returns queue entries filtered by status.
func (s *QueueService) List(ctx context.Context, statuses ...queue.Status) ([]Entry, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	entries, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromEntries(entries), nil
}

// Stats returns queue summary counts keyed by status string.
func (s *QueueService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeQueueStats(stats), nil
}

// Describe fetches a single queue entry.
func (s *QueueService) Describe(ctx context.Context, id int64) (*Entry, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	entry, err := s.store.ByID(ctx, id)
	if err != nil || entry == nil {
		return nil, err
	}
	dto := FromEntry(entry)
	return &dto, nil
}
