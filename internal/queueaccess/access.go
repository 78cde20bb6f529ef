// Package queueaccess abstracts queue operations over two backends: the
// daemon's HTTP API when it is running, and the SQLite store directly when it
// is not. CLI commands program against Access and stay oblivious to which
// backend answered.
package queueaccess

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"docket/internal/api"
	"docket/internal/config"
	"docket/internal/queue"
)

// Access provides queue operations regardless of API or direct store backing.
type Access interface {
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, statuses []string) ([]api.Entry, error)
	Describe(ctx context.Context, id int64) (*api.Entry, error)
	Add(ctx context.Context, req api.EnqueueRequest) (api.Entry, error)
	RetryAll(ctx context.Context) (int64, error)
	Retry(ctx context.Context, ids []int64) (int64, error)
	Reclaim(ctx context.Context) (int64, error)
	ClearAll(ctx context.Context) (int64, error)
	ClearStatus(ctx context.Context, status string) (int64, error)
	Health(ctx context.Context) (api.QueueHealth, error)
}

// NewAPIAccess returns an Access backed by the daemon HTTP API.
func NewAPIAccess(client *api.Client) Access {
	return &apiAccess{client: client}
}

// NewStoreAccess returns an Access backed by the queue database directly.
// The config supplies retry budgets and the stale-entry cutoff that the
// daemon would otherwise apply.
func NewStoreAccess(store *queue.Store, cfg *config.Config) Access {
	return &storeAccess{store: store, cfg: cfg}
}

type apiAccess struct {
	client *api.Client
}

func (a *apiAccess) Stats(ctx context.Context) (map[string]int, error) {
	return a.client.QueueStats(ctx)
}

func (a *apiAccess) List(ctx context.Context, statuses []string) ([]api.Entry, error) {
	return a.client.Queue(ctx, statuses)
}

func (a *apiAccess) Describe(ctx context.Context, id int64) (*api.Entry, error) {
	return a.client.QueueEntry(ctx, id)
}

func (a *apiAccess) Add(ctx context.Context, req api.EnqueueRequest) (api.Entry, error) {
	return a.client.Enqueue(ctx, req)
}

func (a *apiAccess) RetryAll(ctx context.Context) (int64, error) {
	return a.client.RetryFailed(ctx, nil)
}

func (a *apiAccess) Retry(ctx context.Context, ids []int64) (int64, error) {
	return a.client.RetryFailed(ctx, ids)
}

func (a *apiAccess) Reclaim(ctx context.Context) (int64, error) {
	return a.client.Reclaim(ctx)
}

func (a *apiAccess) ClearAll(ctx context.Context) (int64, error) {
	return a.client.ClearQueue(ctx, "")
}

func (a *apiAccess) ClearStatus(ctx context.Context, status string) (int64, error) {
	return a.client.ClearQueue(ctx, status)
}

func (a *apiAccess) Health(ctx context.Context) (api.QueueHealth, error) {
	return a.client.QueueHealth(ctx)
}

type storeAccess struct {
	store *queue.Store
	cfg   *config.Config
}

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return api.MergeQueueStats(stats), nil
}

func (a *storeAccess) List(ctx context.Context, statuses []string) ([]api.Entry, error) {
	var filters []queue.Status
	for _, raw := range statuses {
		status, ok := queue.ParseStatus(raw)
		if !ok {
			return nil, fmt.Errorf("unknown queue status %s", strconv.Quote(raw))
		}
		filters = append(filters, status)
	}
	entries, err := a.store.List(ctx, filters...)
	if err != nil {
		return nil, err
	}
	return api.FromEntries(entries), nil
}

func (a *storeAccess) Describe(ctx context.Context, id int64) (*api.Entry, error) {
	entry, err := a.store.ByID(ctx, id)
	if err != nil || entry == nil {
		return nil, err
	}
	converted := api.FromEntry(entry)
	return &converted, nil
}

func (a *storeAccess) Add(ctx context.Context, req api.EnqueueRequest) (api.Entry, error) {
	entry, err := a.store.Add(ctx, queue.AddRequest{
		ContractID:  req.ContractID,
		DocumentURL: req.DocumentURL,
		LocalPath:   req.LocalPath,
		Filename:    req.Filename,
		MaxRetries:  a.cfg.Processing.MaxRetries,
	})
	if err != nil {
		return api.Entry{}, err
	}
	return api.FromEntry(entry), nil
}

func (a *storeAccess) RetryAll(ctx context.Context) (int64, error) {
	return a.store.RetryFailed(ctx)
}

func (a *storeAccess) Retry(ctx context.Context, ids []int64) (int64, error) {
	return a.store.RetryFailed(ctx, ids...)
}

func (a *storeAccess) Reclaim(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-time.Duration(a.cfg.Processing.StaleAfter) * time.Second)
	return a.store.ReclaimStale(ctx, cutoff)
}

func (a *storeAccess) ClearAll(ctx context.Context) (int64, error) {
	return a.store.Clear(ctx)
}

func (a *storeAccess) ClearStatus(ctx context.Context, status string) (int64, error) {
	parsed, ok := queue.ParseStatus(status)
	if !ok {
		return 0, fmt.Errorf("unknown queue status %s", strconv.Quote(status))
	}
	return a.store.ClearStatus(ctx, parsed)
}

func (a *storeAccess) Health(ctx context.Context) (api.QueueHealth, error) {
	summary, err := a.store.Health(ctx)
	if err != nil {
		return api.QueueHealth{}, err
	}
	db, err := a.store.CheckHealth(ctx)
	if err != nil {
		return api.QueueHealth{}, err
	}
	return api.FromHealth(summary, db), nil
}
