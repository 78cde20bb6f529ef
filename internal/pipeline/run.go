package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docket/internal/logging"
	"docket/internal/queue"
)

// outcome captures how one selected entry settled. Exactly one of the three
// shapes holds: skipped (not counted), failed (err set), or processed.
type outcome struct {
	entryID  int64
	filename string
	cached   bool
	skipped  bool
	err      error
}

// run works the selected entries in sequential batches of at most concurrency
// entries. Every entry in a batch settles before the next batch starts, and
// one entry's failure never cancels its siblings. The job totals are
// committed in a single write at the end.
func (o *Orchestrator) run(ctx context.Context, handle *jobHandle, jobID string, entries []*queue.Entry, concurrency int) {
	defer func() {
		handle.cancel()
		o.mu.Lock()
		delete(o.jobs, jobID)
		o.mu.Unlock()
		close(handle.done)
	}()

	logger := logging.WithContext(ctx, o.logger)
	start := time.Now()

	var processed, errorsCount int
	var details []string
	unworked := 0

	for offset := 0; offset < len(entries); offset += concurrency {
		if ctx.Err() != nil {
			unworked = len(entries) - offset
			break
		}

		batch := entries[offset:min(offset+concurrency, len(entries))]
		outcomes := make([]outcome, len(batch))
		var wg sync.WaitGroup
		for i, entry := range batch {
			i, entry := i, entry
			wg.Add(1)
			go func() {
				defer wg.Done()
				outcomes[i] = o.processEntry(ctx, entry)
			}()
		}
		wg.Wait()

		for _, out := range outcomes {
			switch {
			case out.skipped:
			case out.err != nil:
				errorsCount++
				details = append(details, fmt.Sprintf("entry %d (%s): %v", out.entryID, out.filename, out.err))
			default:
				processed++
			}
		}
	}

	if unworked > 0 {
		details = append(details, fmt.Sprintf("run interrupted with %d entries unworked", unworked))
	}

	// The totals must land even when shutdown canceled the run context, so
	// the commit gets its own.
	commitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := o.store.CompleteJob(commitCtx, jobID, processed, errorsCount, details); err != nil {
		logger.Error("failed to commit job totals",
			logging.Error(err),
			logging.Int("processed", processed),
			logging.Int("errors", errorsCount),
		)
		return
	}

	logger.Info("processing job completed",
		logging.String(logging.FieldEventType, "job_complete"),
		logging.Int("processed", processed),
		logging.Int("errors", errorsCount),
		logging.Int("unworked", unworked),
		logging.Duration("job_duration", time.Since(start)),
	)
}
