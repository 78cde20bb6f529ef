package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"docket/internal/config"
	"docket/internal/deps"
	"docket/internal/services/completion"
)

const completionCheckName = "Completion service"

// CheckCompletion verifies that the summarization API is reachable and the
// key is valid. It uses a 30-second timeout and a single attempt (no retries).
// Failures are advisory because the pipeline falls back to placeholder
// summaries when the service is down.
func CheckCompletion(ctx context.Context, cfg config.CompletionConfig) Result {
	const name = completionCheckName
	if cfg.APIKey == "" {
		return Result{Name: name, Advisory: true, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := completion.NewClient(completion.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Referer: cfg.Referer,
		Title:   cfg.Title,
	}, completion.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Advisory: true, Detail: summarizeCompletionError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the volume behind path has at least minMB megabytes
// available. A converter writing into a full staging volume fails every entry
// in confusing ways, so this is a blocking check.
func CheckFreeSpace(path string, minMB int) Result {
	const name = "Staging free space"
	_, free, err := statVolume(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	if minMB > 0 && free < uint64(minMB) {
		return Result{Name: name, Detail: fmt.Sprintf("%d MB free on %s, %d MB required", free, path, minMB)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d MB free on %s", free, path)}
}

// CheckTools reports on the external binaries the pipeline shells out to.
// Missing optional tools are advisory; the OCR fallback simply stays offline.
func CheckTools(cfg *config.Config) []Result {
	statuses := deps.Check(cfg)
	results := make([]Result, 0, len(statuses))
	for _, status := range statuses {
		result := Result{Name: status.Name, Passed: status.Available, Detail: status.Detail}
		if status.Available && result.Detail == "" {
			result.Detail = status.Command
		}
		if !status.Available && status.Optional {
			result.Advisory = true
		}
		results = append(results, result)
	}
	return results
}

// summarizeCompletionError produces a human-readable summary for completion health check failures.
func summarizeCompletionError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (completion API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (completion API unreachable)"
	}
	return err.Error()
}

func statVolume(path string) (totalMB, freeMB uint64, err error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	blockSize := uint64(stat.Bsize)
	return stat.Blocks * blockSize / (1 << 20), stat.Bavail * blockSize / (1 << 20), nil
}
