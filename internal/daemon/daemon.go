package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"docket/internal/config"
	"docket/internal/conversion"
	"docket/internal/deps"
	"docket/internal/index"
	"docket/internal/logging"
	"docket/internal/pipeline"
	"docket/internal/preflight"
	"docket/internal/queue"
)

// Daemon coordinates the background processing services and enforces
// single-instance execution through a filesystem lock.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *queue.Store
	orchestrator *pipeline.Orchestrator
	index        *index.Index
	logHub       *logging.StreamHub
	logArchive   *logging.EventArchive

	lockPath string
	lock     *flock.Flock
	apiSrv   *apiServer

	preflightResults []preflight.Result

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running          bool
	PID              int
	QueueDBPath      string
	LockFilePath     string
	Jobs             []pipeline.JobStatus
	QueueStats       map[queue.Status]int
	IndexedDocuments int
	Dependencies     []deps.Status
	Preflight        []preflight.Result
	Staging          preflight.SpaceProbe
}

// New constructs a daemon with initialized dependencies. The index, log hub,
// and log archive may be nil; the corresponding status and log surfaces
// degrade to empty responses.
func New(cfg *config.Config, store *queue.Store, orch *pipeline.Orchestrator, idx *index.Index, logger *slog.Logger, hub *logging.StreamHub, archive *logging.EventArchive) (*Daemon, error) {
	if cfg == nil || store == nil || orch == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, orchestrator, and logger")
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "docket.lock")
	d := &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		store:        store,
		orchestrator: orch,
		index:        idx,
		logHub:       hub,
		logArchive:   archive,
		lockPath:     lockPath,
		lock:         flock.New(lockPath),
	}
	apiSrv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.apiSrv = apiSrv
	return d, nil
}

// Start acquires the daemon lock and runs the readiness checks. Blocking
// check failures abort startup; advisory failures are logged and the daemon
// continues with the affected feature degraded.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another docket daemon instance is already running")
	}

	// Holding the lock means no job can be running, so any processing row is
	// an orphan from a previous crash.
	orphans, err := d.store.ResetStuckProcessing(ctx)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("reset orphaned entries: %w", err)
	}
	if orphans > 0 {
		d.logger.Info("requeued orphaned processing entries", logging.Int64("count", orphans))
	}

	results := preflight.RunAll(ctx, d.cfg)
	d.preflightResults = results
	for _, result := range results {
		if result.Passed {
			continue
		}
		if result.Advisory {
			d.logger.Warn("readiness check degraded",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.Bool(logging.FieldAlert, true),
			)
			continue
		}
		d.logger.Error("readiness check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
		)
	}
	if blockers := preflight.Blockers(results); len(blockers) > 0 {
		_ = d.lock.Unlock()
		names := make([]string, 0, len(blockers))
		for _, blocker := range blockers {
			names = append(names, blocker.Name)
		}
		return fmt.Errorf("readiness checks failed: %s", strings.Join(names, ", "))
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.apiSrv.start(d.ctx); err != nil {
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("docket daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("checks", len(results)),
	)
	return nil
}

// Stop shuts down the API server, drains running jobs, and releases the
// daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.apiSrv.stop()
	d.orchestrator.Close()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("docket daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Process starts a batch processing job over queued entries.
func (d *Daemon) Process(ctx context.Context, req pipeline.StartRequest) (pipeline.StartResponse, error) {
	return d.orchestrator.Start(ctx, req)
}

// JobStatus reports the current state of a processing job.
func (d *Daemon) JobStatus(ctx context.Context, jobID string) (pipeline.JobStatus, error) {
	return d.orchestrator.Status(ctx, jobID)
}

// Jobs returns recent job records, newest first.
func (d *Daemon) Jobs(ctx context.Context, limit int) ([]*queue.Job, error) {
	if d.store == nil {
		return nil, errors.New("queue store unavailable")
	}
	return d.store.ListJobs(ctx, limit)
}

// RunningJobIDs lists jobs whose run goroutines have not settled.
func (d *Daemon) RunningJobIDs() []string {
	return d.orchestrator.RunningJobs()
}

// ListQueue returns queue entries filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Entry, error) {
	if d.store == nil {
		return nil, errors.New("queue store unavailable")
	}
	return d.store.List(ctx, statuses...)
}

// Entry fetches a single queue entry; missing entries return (nil, nil).
func (d *Daemon) Entry(ctx context.Context, id int64) (*queue.Entry, error) {
	if d.store == nil {
		return nil, errors.New("queue store unavailable")
	}
	return d.store.ByID(ctx, id)
}

// QueueStats returns per-status entry counts.
func (d *Daemon) QueueStats(ctx context.Context) (map[queue.Status]int, error) {
	if d.store == nil {
		return nil, errors.New("queue store unavailable")
	}
	return d.store.Stats(ctx)
}

// ClearQueue removes all queue entries.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.Clear(ctx)
}

// ClearQueueStatus removes queue entries in a single status.
func (d *Daemon) ClearQueueStatus(ctx context.Context, status queue.Status) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.ClearStatus(ctx, status)
}

// RetryFailed requeues failed entries (optionally a subset by id).
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.RetryFailed(ctx, ids...)
}

// ReclaimStale requeues processing entries older than the configured stale
// cutoff. Orphaned rows appear after a crash mid-batch; reclaim is an
// operator action so a live job is never yanked by accident.
func (d *Daemon) ReclaimStale(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	cutoff := time.Now().Add(-time.Duration(d.cfg.Processing.StaleAfter) * time.Second)
	reclaimed, err := d.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		d.logger.Info("reclaimed stale processing entries", logging.Int64("count", reclaimed))
	}
	return reclaimed, nil
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	if d.store == nil {
		return queue.HealthSummary{}, errors.New("queue store unavailable")
	}
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	if d.store == nil {
		return queue.DatabaseHealth{}, errors.New("queue store unavailable")
	}
	return d.store.CheckHealth(ctx)
}

// AddDocument validates and enqueues a contract document. Local paths must
// point at an existing file with a supported extension. URLs must be http or
// https; extension-less URLs pass because the converter classifies those by
// content type at fetch time.
func (d *Daemon) AddDocument(ctx context.Context, req queue.AddRequest) (*queue.Entry, error) {
	if d.store == nil {
		return nil, errors.New("queue store unavailable")
	}
	contractID := strings.TrimSpace(req.ContractID)
	if contractID == "" {
		return nil, errors.New("contract id is required")
	}
	documentURL := strings.TrimSpace(req.DocumentURL)
	localPath := strings.TrimSpace(req.LocalPath)
	if documentURL == "" && localPath == "" {
		return nil, errors.New("document url or local path is required")
	}
	if documentURL != "" && localPath != "" {
		return nil, errors.New("document url and local path are mutually exclusive")
	}

	if localPath != "" {
		absPath, err := filepath.Abs(localPath)
		if err != nil {
			return nil, fmt.Errorf("resolve local path: %w", err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("stat local document: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("local path %q is a directory", absPath)
		}
		if ext := filepath.Ext(info.Name()); !conversion.SupportedExtension(ext) {
			return nil, fmt.Errorf("unsupported document extension %q", strings.ToLower(ext))
		}
		localPath = absPath
	}

	if documentURL != "" {
		parsed, err := url.Parse(documentURL)
		if err != nil {
			return nil, fmt.Errorf("parse document url: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return nil, fmt.Errorf("unsupported document url scheme %q", parsed.Scheme)
		}
		if ext := path.Ext(parsed.Path); ext != "" && !conversion.SupportedExtension(ext) {
			return nil, fmt.Errorf("unsupported document extension %q", strings.ToLower(ext))
		}
	}

	entry, err := d.store.Add(ctx, queue.AddRequest{
		ContractID:  contractID,
		DocumentURL: documentURL,
		LocalPath:   localPath,
		Filename:    strings.TrimSpace(req.Filename),
		MaxRetries:  d.cfg.Processing.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue document: %w", err)
	}
	d.logger.Info("document queued",
		logging.Int64(logging.FieldEntryID, entry.ID),
		logging.String(logging.FieldContractID, entry.ContractID),
		logging.String("filename", entry.Filename),
	)
	return entry, nil
}

// APIAddr returns the bound API listener address. It is empty when the API
// is disabled or the daemon is not running.
func (d *Daemon) APIAddr() string {
	if d.apiSrv == nil || d.apiSrv.listener == nil {
		return ""
	}
	return d.apiSrv.listener.Addr().String()
}

// LogStream exposes the in-memory log event hub, if one is attached.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// LogArchive exposes the on-disk log event archive, if one is attached.
func (d *Daemon) LogArchive() *logging.EventArchive {
	return d.logArchive
}

// PreflightResults returns the readiness check outcomes recorded at startup.
func (d *Daemon) PreflightResults() []preflight.Result {
	return d.preflightResults
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Preflight:    d.preflightResults,
		Staging:      preflight.ProbeSpace(d.cfg.Paths.StagingDir),
		Dependencies: deps.Check(d.cfg),
	}

	for _, jobID := range d.orchestrator.RunningJobs() {
		jobStatus, err := d.orchestrator.Status(ctx, jobID)
		if err != nil {
			d.logger.Warn("failed to load running job status",
				logging.String(logging.FieldJobID, jobID),
				logging.Error(err),
			)
			continue
		}
		status.Jobs = append(status.Jobs, jobStatus)
	}

	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("failed to load queue stats", logging.Error(err))
	} else {
		status.QueueStats = stats
	}

	if d.index != nil {
		count, err := d.index.Count()
		if err != nil {
			d.logger.Warn("failed to count indexed documents", logging.Error(err))
		} else {
			status.IndexedDocuments = count
		}
	}

	return status
}
