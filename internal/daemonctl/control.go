// Package daemonctl orchestrates the docket daemon process from the CLI:
// launching docketd, waiting for its API to come up, stopping it through
// signals, and assembling status snapshots with offline fallbacks when the
// daemon is not running.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"docket/internal/api"
	"docket/internal/config"
	"docket/internal/deps"
	"docket/internal/preflight"
	"docket/internal/queue"
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
	Diagnostic bool
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State    StartState
	Launched bool
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopRequested bool
	ForcedKill    bool
	PID           int
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// ErrDaemonNotRunning indicates no reachable daemon API and no live process.
var ErrDaemonNotRunning = errors.New("daemon not running")

// Launch starts a detached docketd process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	var args []string
	if cfgPath := strings.TrimSpace(opts.ConfigPath); cfgPath != "" {
		args = append(args, "--config", cfgPath)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}
	if opts.Diagnostic {
		args = append(args, "--diagnostic")
	}

	proc := exec.Command(executablePath, args...)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForHealthy polls the daemon API until it answers health checks.
func WaitForHealthy(ctx context.Context, client *api.Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if client != nil && client.Healthy(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("daemon failed to start: %w", ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
	return fmt.Errorf("daemon failed to start: health endpoint not reachable")
}

// EnsureStarted launches docketd when the API is unreachable and waits for it
// to become healthy.
func EnsureStarted(ctx context.Context, client *api.Client, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if client != nil && client.Healthy(ctx) {
		return StartResult{State: StartStateAlreadyRunning}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	if err := WaitForHealthy(ctx, client, waitTimeout); err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, Launched: true}, nil
}

// PIDFilePath returns the daemon pid file location for the configuration.
func PIDFilePath(cfg *config.Config) string {
	if cfg == nil || strings.TrimSpace(cfg.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(cfg.Paths.LogDir, "docket.pid")
}

// ReadPID parses the daemon pid file. A missing or malformed file yields zero
// with no error; only read failures are reported.
func ReadPID(path string) (int, error) {
	if strings.TrimSpace(path) == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read daemon pid file %q: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, nil
	}
	return pid, nil
}

// ProcessAlive reports whether a process with the given pid exists.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

// StopAndTerminate signals the daemon to stop and force-kills the process if
// it is still alive after gracePeriod. The pid comes from the pid file, with
// the status API as fallback when the file is missing.
func StopAndTerminate(ctx context.Context, client *api.Client, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	pidPath := PIDFilePath(cfg)
	pid, err := ReadPID(pidPath)
	if err != nil {
		return StopResult{}, err
	}
	if (pid == 0 || !ProcessAlive(pid)) && client != nil {
		if status, statusErr := client.Status(ctx); statusErr == nil && status.Running {
			pid = status.PID
		}
	}
	if pid <= 0 || !ProcessAlive(pid) {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to stop current process (pid %d)", pid)
	}

	result := StopResult{PID: pid}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return result, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	result.StopRequested = true

	if waitForExit(pid, gracePeriod) {
		return result, nil
	}

	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	result.ForcedKill = true
	// A clean exit removes the pid and lock files; a forced kill leaves them
	// behind for the next start to trip over.
	removeRuntimeFiles(cfg, pidPath)
	return result, nil
}

// Restart stops the daemon if running, then ensures it is started.
func Restart(ctx context.Context, client *api.Client, cfg *config.Config, executablePath string, opts LaunchOptions, stopGracePeriod, startWaitTimeout time.Duration) (RestartResult, error) {
	stopResult, stopErr := StopAndTerminate(ctx, client, cfg, stopGracePeriod)
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(ctx, client, executablePath, opts, startWaitTimeout)
	if err != nil {
		return RestartResult{}, err
	}

	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}

// StatusSnapshot bundles daemon status with locally computed report sections.
type StatusSnapshot struct {
	api.DaemonStatus
	SystemChecks      []api.StatusLine
	PathChecks        []api.StatusLine
	DependencySummary api.DependencySummary
}

// BuildStatusSnapshot collects daemon status and applies offline fallbacks
// for queue stats, staging space, and dependency availability.
func BuildStatusSnapshot(ctx context.Context, client *api.Client, cfg *config.Config) (StatusSnapshot, error) {
	if cfg == nil {
		return StatusSnapshot{}, errors.New("configuration not available")
	}

	var snapshot StatusSnapshot
	if client != nil {
		if resp, err := client.Status(ctx); err == nil {
			snapshot.DaemonStatus = resp
		}
	}

	if !snapshot.Running {
		queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		store, openErr := queue.Open(cfg)
		if openErr == nil {
			stats, statsErr := store.Stats(queryCtx)
			_ = store.Close()
			if statsErr == nil {
				merged := make(map[string]int, len(stats))
				for status, count := range stats {
					merged[string(status)] = count
				}
				snapshot.Pipeline.QueueStats = merged
			}
		}
		snapshot.Staging = api.FromSpaceProbe(preflight.ProbeSpace(cfg.Paths.StagingDir))
	}

	if len(snapshot.Dependencies) == 0 {
		snapshot.Dependencies = ResolveDependencies(cfg)
	}

	snapshot.SystemChecks = BuildSystemChecks(cfg, snapshot.Running, snapshot.Staging)
	snapshot.PathChecks = BuildPathChecks(cfg)
	snapshot.DependencySummary = BuildDependencySummary(snapshot.Dependencies)
	return snapshot, nil
}

// ResolveDependencies returns current dependency availability for status output.
func ResolveDependencies(cfg *config.Config) []api.DependencyStatus {
	if cfg == nil {
		return nil
	}
	checks := deps.Check(cfg)
	statuses := make([]api.DependencyStatus, 0, len(checks))
	for _, check := range checks {
		statuses = append(statuses, api.DependencyStatus{
			Name:        check.Name,
			Command:     check.Command,
			Description: check.Description,
			Optional:    check.Optional,
			Available:   check.Available,
			Detail:      check.Detail,
		})
	}
	return statuses
}

// BuildSystemChecks resolves status lines combining runtime state and config.
func BuildSystemChecks(cfg *config.Config, daemonRunning bool, staging api.StagingSpace) []api.StatusLine {
	lines := make([]api.StatusLine, 0, 3)
	if daemonRunning {
		lines = append(lines, api.StatusLine{Label: "Docket", Severity: "ok", Detail: "Running"})
	} else {
		lines = append(lines, api.StatusLine{Label: "Docket", Severity: "warn", Detail: "Not running (run `docket start`)"})
	}

	switch {
	case !staging.Known:
		lines = append(lines, api.StatusLine{Label: "Staging Space", Severity: "info", Detail: "Unknown"})
	case cfg.Processing.MinFreeSpaceMB > 0 && staging.FreeMB < uint64(cfg.Processing.MinFreeSpaceMB):
		lines = append(lines, api.StatusLine{
			Label:    "Staging Space",
			Severity: "warn",
			Detail:   fmt.Sprintf("%d MB free (minimum %d MB)", staging.FreeMB, cfg.Processing.MinFreeSpaceMB),
		})
	default:
		lines = append(lines, api.StatusLine{Label: "Staging Space", Severity: "ok", Detail: fmt.Sprintf("%d MB free", staging.FreeMB)})
	}

	if strings.TrimSpace(cfg.Completion.APIKey) != "" {
		lines = append(lines, api.StatusLine{Label: "Summaries", Severity: "ok", Detail: "Configured"})
	} else {
		lines = append(lines, api.StatusLine{Label: "Summaries", Severity: "warn", Detail: "API key missing (placeholder summaries only)"})
	}

	return lines
}

// BuildPathChecks resolves configured storage path readiness.
func BuildPathChecks(cfg *config.Config) []api.StatusLine {
	lines := make([]api.StatusLine, 0, 3)
	for _, dir := range []struct {
		label string
		path  string
	}{
		{label: "Staging", path: cfg.Paths.StagingDir},
		{label: "Index", path: cfg.Paths.IndexDir},
		{label: "Logs", path: cfg.Paths.LogDir},
	} {
		result := preflight.CheckDirectoryAccess(dir.label, dir.path)
		severity := "error"
		if result.Passed {
			severity = "ok"
		}
		lines = append(lines, api.StatusLine{
			Label:    dir.label,
			Severity: severity,
			Detail:   result.Detail,
		})
	}
	return lines
}

// BuildDependencySummary computes aggregate dependency readiness.
func BuildDependencySummary(statuses []api.DependencyStatus) api.DependencySummary {
	if len(statuses) == 0 {
		return api.DependencySummary{
			Severity: "info",
			Detail:   "No dependency checks configured",
		}
	}

	missingRequired := 0
	missingOptional := 0
	for _, dep := range statuses {
		if dep.Available {
			continue
		}
		if dep.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}

	missingCount := missingRequired + missingOptional
	available := len(statuses) - missingCount
	severity := "ok"
	if missingRequired > 0 {
		severity = "error"
	} else if missingOptional > 0 {
		severity = "warn"
	}
	detail := fmt.Sprintf("%d/%d available (missing: %d required, %d optional)", available, len(statuses), missingRequired, missingOptional)
	if missingCount == 0 {
		detail = fmt.Sprintf("%d/%d available", available, len(statuses))
	}

	return api.DependencySummary{
		Total:           len(statuses),
		Available:       available,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
		Severity:        severity,
		Detail:          detail,
	}
}

func waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !ProcessAlive(pid) {
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	return !ProcessAlive(pid)
}

func removeRuntimeFiles(cfg *config.Config, pidPath string) {
	if pidPath != "" {
		_ = os.Remove(pidPath)
	}
	if cfg != nil && strings.TrimSpace(cfg.Paths.LogDir) != "" {
		_ = os.Remove(filepath.Join(cfg.Paths.LogDir, "docket.lock"))
	}
}
