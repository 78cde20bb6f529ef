// Package logstream unifies the two ways the CLI can watch daemon logs:
// structured events from the daemon API while it runs, and plain-text tailing
// of the current log file when it does not.
package logstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docket/internal/api"
	"docket/internal/logs"
)

var ErrFiltersRequireAPI = errors.New("log filters require API access")

// Filters contains optional predicates supported by API log streaming. The
// file fallback cannot apply them because raw log lines carry no structure.
type Filters struct {
	Component string
	EntryID   int64
	JobID     string
}

func (f Filters) empty() bool {
	return strings.TrimSpace(f.Component) == "" &&
		strings.TrimSpace(f.JobID) == "" &&
		f.EntryID == 0
}

// Options controls stream behavior.
type Options struct {
	Lines   int
	Follow  bool
	Filters Filters
}

// Stream emits log events from the daemon API when it is reachable, falling
// back to tailing the log file at logPath. It reports whether anything was
// emitted.
func Stream(
	ctx context.Context,
	apiClient *logs.StreamClient,
	logPath string,
	opts Options,
	onEvent func(api.LogEvent),
	onLine func(string),
) (bool, error) {
	printed, err := streamAPI(ctx, apiClient, opts, onEvent)
	if err == nil {
		return printed, nil
	}
	if !logs.IsAPIUnavailable(err) {
		return printed, err
	}
	if !opts.Filters.empty() {
		return false, fmt.Errorf("%w: %w", ErrFiltersRequireAPI, logs.ErrAPIUnavailable)
	}
	if strings.TrimSpace(logPath) == "" {
		return false, logs.ErrAPIUnavailable
	}
	return streamFile(ctx, logPath, opts, onLine)
}

func streamAPI(
	ctx context.Context,
	client *logs.StreamClient,
	opts Options,
	onEvent func(api.LogEvent),
) (bool, error) {
	query := logs.StreamQuery{
		Limit:     opts.Lines,
		Tail:      true,
		Component: opts.Filters.Component,
		EntryID:   opts.Filters.EntryID,
		JobID:     opts.Filters.JobID,
	}
	if query.Limit <= 0 {
		query.Limit = 200
	}

	printed := false
	for {
		resp, err := client.Fetch(ctx, query)
		if err != nil {
			return printed, err
		}
		for _, evt := range resp.Events {
			if onEvent != nil {
				onEvent(evt)
			}
			printed = true
		}
		if !opts.Follow {
			return printed, nil
		}
		query.Since = resp.Next
		query.Limit = 200
		query.Tail = false
		query.Follow = true
	}
}

func streamFile(ctx context.Context, path string, opts Options, onLine func(string)) (bool, error) {
	limit := opts.Lines
	if limit < 0 {
		limit = 0
	}
	// Offset -1 requests the last N lines; with no line budget start at the
	// beginning so follow mode replays nothing.
	offset := int64(-1)
	if limit == 0 {
		offset = 0
	}

	printed := false
	for {
		result, err := logs.Tail(ctx, path, logs.TailOptions{
			Offset: offset,
			Limit:  limit,
			Follow: opts.Follow,
			Wait:   time.Second,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return printed, nil
			}
			return printed, fmt.Errorf("tail logs: %w", err)
		}
		for _, line := range result.Lines {
			if onLine != nil {
				onLine(line)
			}
			printed = true
		}
		offset = result.Offset
		limit = 0
		if !opts.Follow {
			return printed, nil
		}
		select {
		case <-ctx.Done():
			return printed, nil
		default:
		}
	}
}
