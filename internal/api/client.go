package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrDaemonUnavailable marks connection-level failures talking to the daemon.
var ErrDaemonUnavailable = errors.New("daemon API unavailable")

var errNotFound = errors.New("not found")

// Client talks to the daemon's HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient builds a client for the daemon bound at bind, given as
// "host:port" or a full URL. Returns nil when bind is empty.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Healthy reports whether the daemon answers its health endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	if c == nil {
		return false
	}
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, nil) == nil
}

// Status fetches the daemon status snapshot.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var payload DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &payload)
	return payload, err
}

// Process asks the daemon to start a processing job.
func (c *Client) Process(ctx context.Context, req ProcessRequest) (ProcessAccepted, error) {
	var payload ProcessAccepted
	err := c.do(ctx, http.MethodPost, "/api/process", nil, req, &payload)
	return payload, err
}

// Job fetches one job. Returns nil when the daemon does not know the id.
func (c *Client) Job(ctx context.Context, id string) (*Job, error) {
	var payload Job
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, nil, &payload)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payload, nil
}

// Jobs lists recent jobs, newest first.
func (c *Client) Jobs(ctx context.Context, limit int) ([]Job, error) {
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var payload JobListResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs", values, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Jobs, nil
}

// Queue lists queue entries, optionally filtered by status.
func (c *Client) Queue(ctx context.Context, statuses []string) ([]Entry, error) {
	values := url.Values{}
	for _, status := range statuses {
		if trimmed := strings.TrimSpace(status); trimmed != "" {
			values.Add("status", trimmed)
		}
	}
	var payload QueueListResponse
	if err := c.do(ctx, http.MethodGet, "/api/queue", values, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Entries, nil
}

// QueueEntry fetches one queue entry. Returns nil when the id is unknown.
func (c *Client) QueueEntry(ctx context.Context, id int64) (*Entry, error) {
	var payload EntryResponse
	err := c.do(ctx, http.MethodGet, "/api/queue/"+strconv.FormatInt(id, 10), nil, nil, &payload)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payload.Entry, nil
}

// QueueStats fetches queue counts keyed by status.
// QueueHealth fetches queue counts plus database diagnostics.
func (c *Client) QueueHealth(ctx context.Context) (QueueHealth, error) {
	var payload QueueHealth
	err := c.do(ctx, http.MethodGet, "/api/queue/health", nil, nil, &payload)
	return payload, err
}

func (c *Client) QueueStats(ctx context.Context) (map[string]int, error) {
	var payload QueueStatsResponse
	if err := c.do(ctx, http.MethodGet, "/api/queue/stats", nil, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Counts, nil
}

// Enqueue adds a document to the queue.
func (c *Client) Enqueue(ctx context.Context, req EnqueueRequest) (Entry, error) {
	var payload EntryResponse
	err := c.do(ctx, http.MethodPost, "/api/queue/documents", nil, req, &payload)
	return payload.Entry, err
}

// RetryFailed requeues failed entries; an empty id list retries all of them.
func (c *Client) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	var payload ActionResponse
	err := c.do(ctx, http.MethodPost, "/api/queue/retry", nil, RetryRequest{IDs: ids}, &payload)
	return payload.Updated, err
}

// Reclaim requeues entries stuck in processing beyond the staleness window.
func (c *Client) Reclaim(ctx context.Context) (int64, error) {
	var payload ActionResponse
	err := c.do(ctx, http.MethodPost, "/api/queue/reclaim", nil, nil, &payload)
	return payload.Updated, err
}

// ClearQueue removes queue entries, narrowed to one status when non-empty.
func (c *Client) ClearQueue(ctx context.Context, status string) (int64, error) {
	values := url.Values{}
	if trimmed := strings.TrimSpace(status); trimmed != "" {
		values.Set("status", trimmed)
	}
	var payload ActionResponse
	err := c.do(ctx, http.MethodDelete, "/api/queue", values, nil, &payload)
	return payload.Updated, err
}

func (c *Client) do(ctx context.Context, method, path string, values url.Values, body, out any) error {
	if c == nil {
		return ErrDaemonUnavailable
	}

	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: values.Encode()})
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode >= 400 {
		var apiErr ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// IsUnavailable reports whether err is a connection-level failure, meaning the
// daemon is likely not running.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrDaemonUnavailable) || errors.As(err, &opErr)
}
