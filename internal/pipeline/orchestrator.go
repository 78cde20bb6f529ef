package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docket/internal/config"
	"docket/internal/conversion"
	"docket/internal/extraction"
	"docket/internal/index"
	"docket/internal/logging"
	"docket/internal/queue"
	"docket/internal/services"
	"docket/internal/services/completion"
)

// Converter turns a queue entry's source document into a staged canonical file.
type Converter interface {
	Convert(ctx context.Context, src conversion.Source) (conversion.Result, error)
}

// Extractor pulls text out of a staged document.
type Extractor interface {
	Extract(ctx context.Context, path, mediaType string) (extraction.Result, error)
}

// Summarizer produces a structured summary for extracted text. Implementations
// never fail outright; degraded results carry a placeholder instead.
type Summarizer interface {
	Summarize(ctx context.Context, req completion.SummaryRequest) completion.SummaryResult
}

// DocumentIndex is the processed-document store consulted before the
// summarizer is called and updated after it succeeds.
type DocumentIndex interface {
	Lookup(key string) (index.Record, bool, error)
	Put(key string, record index.Record) error
}

// Stages bundles the per-entry pipeline dependencies.
type Stages struct {
	Converter  Converter
	Extractor  Extractor
	Summarizer Summarizer
	Index      DocumentIndex
}

// Orchestrator runs batch document-processing jobs against the queue. Each job
// claims a slice of queued entries, works them in bounded concurrent batches,
// and commits its totals to the job record exactly once, when the run settles.
type Orchestrator struct {
	cfg    *config.Config
	store  *queue.Store
	stages Stages
	logger *slog.Logger

	entryTimeout time.Duration

	mu     sync.Mutex
	jobs   map[string]*jobHandle
	closed bool
}

type jobHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Option customizes orchestrator behavior.
type Option func(*Orchestrator)

// WithEntryTimeout overrides the per-entry wall-clock budget.
func WithEntryTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.entryTimeout = d
		}
	}
}

// New constructs an orchestrator around the queue store and stage
// implementations. A nil logger falls back to a no-op logger.
func New(cfg *config.Config, store *queue.Store, stages Stages, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	o := &Orchestrator{
		cfg:          cfg,
		store:        store,
		stages:       stages,
		logger:       logging.NewComponentLogger(logger, "pipeline"),
		entryTimeout: time.Duration(cfg.Processing.EntryTimeout) * time.Second,
		jobs:         make(map[string]*jobHandle),
	}
	if o.entryTimeout <= 0 {
		o.entryTimeout = time.Hour
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartRequest selects the work one processing job covers.
type StartRequest struct {
	ContractID  string
	Limit       int
	Concurrency int
	TestMode    bool
}

// StartResponse identifies the job now running in the background.
type StartResponse struct {
	JobID string
}

// Start selects queued entries, creates a job record, and kicks off the run
// goroutine. It returns as soon as the job exists; processing continues in the
// background and the caller polls Status for progress. An empty selection
// completes the job immediately with zero counts.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (StartResponse, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return StartResponse{}, errors.New("orchestrator is shut down")
	}

	limit, concurrency := o.runParameters(req)
	if req.TestMode {
		if err := o.resetForTestRun(ctx); err != nil {
			return StartResponse{}, err
		}
	}

	entries, err := o.store.SelectQueued(ctx, strings.TrimSpace(req.ContractID), limit)
	if err != nil {
		return StartResponse{}, fmt.Errorf("select queued entries: %w", err)
	}

	jobID := uuid.NewString()
	if _, err := o.store.CreateJob(ctx, jobID, queue.JobTypeDocumentProcessing); err != nil {
		return StartResponse{}, fmt.Errorf("create job: %w", err)
	}
	logger := logging.WithContext(services.WithJobID(ctx, jobID), o.logger)

	if len(entries) == 0 {
		if _, err := o.store.CompleteJob(ctx, jobID, 0, 0, nil); err != nil {
			return StartResponse{}, fmt.Errorf("complete empty job: %w", err)
		}
		logger.Info("no queued entries matched, job completed empty",
			logging.String(logging.FieldEventType, "job_complete"),
			logging.String("contract_filter", strings.TrimSpace(req.ContractID)),
		)
		return StartResponse{JobID: jobID}, nil
	}

	runCtx, cancel := context.WithCancel(services.WithJobID(context.Background(), jobID))
	handle := &jobHandle{cancel: cancel, done: make(chan struct{})}
	o.jobs[jobID] = handle
	go o.run(runCtx, handle, jobID, entries, concurrency)

	logger.Info("processing job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.Int("entries", len(entries)),
		logging.Int("concurrency", concurrency),
		logging.Bool("test_mode", req.TestMode),
	)
	return StartResponse{JobID: jobID}, nil
}

// runParameters resolves the effective selection limit and batch width from
// the request and configured defaults. Test mode caps both so a smoke run
// stays small regardless of what the caller asked for.
func (o *Orchestrator) runParameters(req StartRequest) (limit, concurrency int) {
	limit = req.Limit
	concurrency = req.Concurrency
	if concurrency <= 0 {
		concurrency = o.cfg.Processing.Concurrency
	}
	if hardCap := o.cfg.Processing.BatchHardCap; hardCap > 0 && concurrency > hardCap {
		concurrency = hardCap
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if req.TestMode {
		testLimit := o.cfg.Processing.TestModeLimit
		if testLimit <= 0 {
			testLimit = 5
		}
		if limit <= 0 || limit > testLimit {
			limit = testLimit
		}
		if tc := o.cfg.Processing.TestModeConcurrency; tc > 0 && concurrency > tc {
			concurrency = tc
		}
	}
	return limit, concurrency
}

// resetForTestRun wipes terminal entries and returns orphaned processing rows
// to queued so a test run starts from a clean slate. Queued entries survive;
// they are the work the run is about to do.
func (o *Orchestrator) resetForTestRun(ctx context.Context) error {
	if _, err := o.store.ClearStatus(ctx, queue.StatusCompleted); err != nil {
		return fmt.Errorf("reset completed entries: %w", err)
	}
	if _, err := o.store.ClearStatus(ctx, queue.StatusFailed); err != nil {
		return fmt.Errorf("reset failed entries: %w", err)
	}
	if _, err := o.store.ResetStuckProcessing(ctx); err != nil {
		return fmt.Errorf("reset processing entries: %w", err)
	}
	return nil
}

// JobStatus is the point-in-time view of one processing job.
type JobStatus struct {
	JobID            string
	JobType          string
	Status           queue.JobStatus
	Running          bool
	RecordsProcessed int
	ErrorsCount      int
	ErrorDetails     []string
	StartedAt        time.Time
	CompletedAt      *time.Time
}

// Status reports the stored counters for a job plus whether its run goroutine
// is still live. It never blocks on in-flight work.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (JobStatus, error) {
	job, err := o.store.JobByID(ctx, jobID)
	if err != nil {
		return JobStatus{}, fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return JobStatus{}, services.Wrap(services.ErrNotFound, "pipeline", "status", fmt.Sprintf("job %s not found", jobID), nil)
	}

	o.mu.Lock()
	_, running := o.jobs[jobID]
	o.mu.Unlock()

	return JobStatus{
		JobID:            job.ID,
		JobType:          job.JobType,
		Status:           job.Status,
		Running:          running,
		RecordsProcessed: job.RecordsProcessed,
		ErrorsCount:      job.ErrorsCount,
		ErrorDetails:     job.ErrorDetails,
		StartedAt:        job.StartedAt,
		CompletedAt:      job.CompletedAt,
	}, nil
}

// RunningJobs lists identifiers of jobs whose run goroutines have not settled.
func (o *Orchestrator) RunningJobs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.jobs))
	for id := range o.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WaitForJob blocks until the job's run goroutine settles or ctx ends. A job
// that already finished, or never existed, returns immediately.
func (o *Orchestrator) WaitForJob(ctx context.Context, jobID string) error {
	o.mu.Lock()
	handle, ok := o.jobs[jobID]
	o.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-handle.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels running jobs and waits for them to settle. Further Start
// calls are rejected.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	handles := make([]*jobHandle, 0, len(o.jobs))
	for _, handle := range o.jobs {
		handles = append(handles, handle)
	}
	o.mu.Unlock()

	for _, handle := range handles {
		handle.cancel()
	}
	for _, handle := range handles {
		<-handle.done
	}
}
