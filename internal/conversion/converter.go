package conversion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"docket/internal/fileutil"
	"docket/internal/logging"
	"docket/internal/respool"
	"docket/internal/services"
	"docket/internal/textutil"
)

type commandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// Source identifies one document to materialize into canonical form. URL and
// LocalPath are alternatives; Filename is the declared name used for
// extension inference and staging.
type Source struct {
	ContractID string
	URL        string
	LocalPath  string
	Filename   string
}

// Result describes the canonical document produced by Convert.
type Result struct {
	Path      string
	Converted bool
	MediaType string
}

// Media types reported to the extraction stage.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeText = "text/plain"
)

// transientMarkers are soffice diagnostics indicating the converter runtime
// failed to start rather than the document being unconvertible. These show up
// when the per-user profile directory is locked or missing.
var transientMarkers = []string{
	"User installation could not be completed",
	"Fatal Error: The application cannot be started",
	"Application Error",
	"javaldx",
}

// convertible lists source extensions routed through soffice.
var convertible = map[string]bool{
	".doc":  true,
	".docx": true,
	".rtf":  true,
	".odt":  true,
}

var contentTypeExt = map[string]string{
	"application/pdf":    ".pdf",
	"text/plain":         ".txt",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/rtf":                         ".rtf",
	"text/rtf":                                ".rtf",
	"application/vnd.oasis.opendocument.text": ".odt",
}

// Converter materializes queue entries as canonical PDF or text documents.
// Office formats are converted through soffice under a shared permit pool so
// only a bounded number of converter processes ever run at once.
type Converter struct {
	cfg    Config
	pool   *respool.Pool
	run    commandRunner
	client *http.Client
	sleep  func(time.Duration)
	logger *slog.Logger
}

// Option customizes a Converter.
type Option func(*Converter)

// WithCommandRunner injects a custom command runner (primarily for tests).
func WithCommandRunner(r commandRunner) Option {
	return func(c *Converter) {
		if r != nil {
			c.run = r
		}
	}
}

// WithHTTPClient overrides the download client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Converter) {
		if client != nil {
			c.client = client
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleep func(time.Duration)) Option {
	return func(c *Converter) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewConverter constructs a converter that draws soffice permits from pool.
func NewConverter(cfg Config, pool *respool.Pool, logger *slog.Logger, opts ...Option) *Converter {
	if logger == nil {
		logger = logging.NewNop()
	}
	cfg = cfg.withDefaults()
	c := &Converter{
		cfg:    cfg,
		pool:   pool,
		run:    runCommand,
		client: &http.Client{Timeout: cfg.DownloadTimeout},
		logger: logging.NewComponentLogger(logger, "conversion"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert materializes src locally and converts it to canonical form.
// PDFs and plain text pass through unconverted; office documents run through
// soffice. Unsupported types fail validation without touching the network.
func (c *Converter) Convert(ctx context.Context, src Source) (Result, error) {
	ext := sourceExtension(src)
	if ext != "" && !supportedExtension(ext) {
		return Result{}, services.Wrap(services.ErrValidation, "conversion", "classify",
			fmt.Sprintf("unsupported document type %q", ext), nil)
	}

	workDir := filepath.Join(c.cfg.StagingDir, "convert", uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("conversion: create work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			c.logger.Warn("failed to remove conversion work dir", "dir", workDir, "error", err)
		}
	}()

	input := src.LocalPath
	if input == "" {
		if strings.TrimSpace(src.URL) == "" {
			return Result{}, services.Wrap(services.ErrValidation, "conversion", "classify", "source has neither url nor local path", nil)
		}
		downloaded, contentType, err := c.fetch(ctx, src.URL, workDir, src.Filename)
		if err != nil {
			return Result{}, err
		}
		input = downloaded
		if ext == "" {
			ext = extensionForContentType(contentType)
			if ext == "" {
				return Result{}, services.Wrap(services.ErrValidation, "conversion", "classify",
					fmt.Sprintf("cannot determine document type (content-type %q)", contentType), nil)
			}
			if !supportedExtension(ext) {
				return Result{}, services.Wrap(services.ErrValidation, "conversion", "classify",
					fmt.Sprintf("unsupported document type %q", ext), nil)
			}
			renamed, err := ensureExtension(input, ext)
			if err != nil {
				return Result{}, err
			}
			input = renamed
		}
	} else {
		if _, err := os.Stat(input); err != nil {
			return Result{}, services.Wrap(services.ErrNotFound, "conversion", "materialize",
				fmt.Sprintf("local document %q", input), err)
		}
		if ext == "" {
			return Result{}, services.Wrap(services.ErrValidation, "conversion", "classify",
				fmt.Sprintf("cannot determine document type for %q", input), nil)
		}
	}

	switch {
	case ext == ".pdf":
		return c.stage(input, workDir, src, false, MediaTypePDF)
	case ext == ".txt":
		return c.stage(input, workDir, src, false, MediaTypeText)
	default:
		converted, err := c.convertWithRetry(ctx, input, workDir)
		if err != nil {
			return Result{}, err
		}
		return c.stage(converted, workDir, src, true, MediaTypePDF)
	}
}

// fetch streams a remote document into workDir. The size cap is enforced
// twice: a Content-Length precheck and a counting copy that rejects oversize
// bodies mid-stream.
func (c *Converter) fetch(ctx context.Context, rawURL, workDir, filename string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", services.Wrap(services.ErrValidation, "conversion", "download",
			fmt.Sprintf("build request for %q", rawURL), err)
	}
	req.Header.Set("Accept", "application/pdf,application/msword,application/octet-stream,*/*")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", services.Wrap(services.ErrTransient, "conversion", "download", "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return "", "", services.Wrap(services.ErrNotFound, "conversion", "download",
			fmt.Sprintf("document not available (%s)", resp.Status), nil)
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", "", services.Wrap(services.ErrTransient, "conversion", "download",
			fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(body))), nil)
	}

	if resp.ContentLength > c.cfg.MaxDownloadBytes {
		return "", "", services.Wrap(services.ErrValidation, "conversion", "download",
			fmt.Sprintf("document size %d exceeds limit %d", resp.ContentLength, c.cfg.MaxDownloadBytes), nil)
	}

	name := textutil.SanitizeFileName(filename)
	if name == "" {
		name = textutil.SanitizeFileName(filepath.Base(req.URL.Path))
	}
	if name == "" || name == "." || name == string(os.PathSeparator) {
		name = "document"
	}
	dest := filepath.Join(workDir, name)

	out, err := os.Create(dest)
	if err != nil {
		return "", "", fmt.Errorf("conversion: create download target: %w", err)
	}
	written, copyErr := io.Copy(out, io.LimitReader(resp.Body, c.cfg.MaxDownloadBytes+1))
	closeErr := out.Close()
	if copyErr != nil {
		_ = os.Remove(dest)
		return "", "", services.Wrap(services.ErrTransient, "conversion", "download", "stream body", copyErr)
	}
	if closeErr != nil {
		_ = os.Remove(dest)
		return "", "", fmt.Errorf("conversion: finish download: %w", closeErr)
	}
	if written > c.cfg.MaxDownloadBytes {
		_ = os.Remove(dest)
		return "", "", services.Wrap(services.ErrValidation, "conversion", "download",
			fmt.Sprintf("document exceeds size limit %d", c.cfg.MaxDownloadBytes), nil)
	}

	contentType := resp.Header.Get("Content-Type")
	c.logger.Debug("downloaded document", "url", rawURL, "bytes", written, "content_type", contentType)
	return dest, contentType, nil
}

// convertWithRetry runs soffice and validates the expected output on every
// attempt. Only runtime-startup diagnostics earn a retry; document-level
// failures propagate immediately. Each attempt takes its own pool permit,
// held for the process run only, so a conversion stuck in startup retries
// does not stall other conversions through its backoff sleeps.
func (c *Converter) convertWithRetry(ctx context.Context, input, workDir string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	expected := filepath.Join(workDir, stem+".pdf")
	args := []string{"--headless", "--convert-to", "pdf", "--outdir", workDir, input}

	var lastErr error
	for attempt := 1; ; attempt++ {
		release, err := c.pool.Acquire(ctx)
		if err != nil {
			return "", fmt.Errorf("conversion: acquire converter permit: %w", err)
		}

		// Drop any partial output from a previous attempt so validation only
		// ever sees this attempt's result.
		_ = os.Remove(expected)

		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.CommandTimeout)
		stdout, stderr, runErr := c.run(attemptCtx, c.cfg.SofficeBinary, args...)
		cancel()
		release()
		detail := commandDetail(stdout, stderr)

		if runErr == nil {
			validateErr := validateOutput(expected)
			if validateErr == nil {
				return expected, nil
			}
			lastErr = validateErr
		} else {
			lastErr = fmt.Errorf("soffice: %w", runErr)
		}

		if !transientOutput(string(stdout), string(stderr)) {
			return "", services.Wrap(services.ErrExternalTool, "conversion", "convert", detail, lastErr)
		}
		if attempt >= c.cfg.MaxRetries || ctx.Err() != nil {
			return "", services.Wrap(services.ErrExternalTool, "conversion", "convert",
				fmt.Sprintf("converter runtime failed after %d attempts: %s", attempt, detail), lastErr)
		}

		delay := c.retryDelay(attempt)
		c.logger.Warn("converter runtime failed to start, retrying",
			"attempt", attempt, "delay", delay.String(), "detail", detail)
		c.sleepFor(ctx, delay)
	}
}

func (c *Converter) retryDelay(attempt int) time.Duration {
	delay := c.cfg.RetryBaseDelay << attempt
	if delay > c.cfg.RetryMaxDelay {
		delay = c.cfg.RetryMaxDelay
	}
	return delay
}

func (c *Converter) sleepFor(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	if c.sleep != nil {
		c.sleep(delay)
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// stage moves a materialized document out of the work dir into the staging
// documents area. Paths outside the work dir (caller-owned local files) are
// returned untouched.
func (c *Converter) stage(path, workDir string, src Source, converted bool, mediaType string) (Result, error) {
	if !strings.HasPrefix(path, workDir+string(os.PathSeparator)) {
		return Result{Path: path, Converted: converted, MediaType: mediaType}, nil
	}
	name := textutil.SanitizeToken(src.ContractID) + "_" + textutil.SanitizeFileName(filepath.Base(path))
	dest := filepath.Join(c.cfg.StagingDir, "documents", name)
	if err := fileutil.MoveFile(path, dest); err != nil {
		return Result{}, fmt.Errorf("conversion: stage document: %w", err)
	}
	c.logger.Info("staged canonical document", "path", dest, "converted", converted)
	return Result{Path: dest, Converted: converted, MediaType: mediaType}, nil
}

// validateOutput confirms the converter produced a non-empty file at path.
func validateOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("converter produced no output at %q", path)
		}
		return fmt.Errorf("stat converter output: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("converter produced empty output at %q", path)
	}
	return nil
}

func transientOutput(streams ...string) bool {
	for _, stream := range streams {
		for _, marker := range transientMarkers {
			if strings.Contains(stream, marker) {
				return true
			}
		}
	}
	return false
}

func commandDetail(stdout, stderr []byte) string {
	if detail := strings.TrimSpace(string(stderr)); detail != "" {
		return detail
	}
	return strings.TrimSpace(string(stdout))
}

// sourceExtension infers the lowercase extension from the declared filename,
// then the local path, then the URL path with any query string stripped.
func sourceExtension(src Source) string {
	if ext := normalizeExt(src.Filename); ext != "" {
		return ext
	}
	if ext := normalizeExt(src.LocalPath); ext != "" {
		return ext
	}
	if src.URL != "" {
		if u, err := url.Parse(src.URL); err == nil {
			return normalizeExt(u.Path)
		}
	}
	return ""
}

func normalizeExt(name string) string {
	return strings.ToLower(strings.TrimSpace(filepath.Ext(name)))
}

func supportedExtension(ext string) bool {
	return ext == ".pdf" || ext == ".txt" || convertible[ext]
}

// SupportedExtension reports whether documents with the given file extension
// can be processed. Matching is case-insensitive and the leading dot is
// optional.
func SupportedExtension(ext string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(ext))
	if trimmed == "" {
		return false
	}
	if !strings.HasPrefix(trimmed, ".") {
		trimmed = "." + trimmed
	}
	return supportedExtension(trimmed)
}

func extensionForContentType(contentType string) string {
	mediaType := contentType
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	return contentTypeExt[strings.ToLower(strings.TrimSpace(mediaType))]
}

// ensureExtension renames path so it carries ext, leaving it alone when the
// extension already matches.
func ensureExtension(path, ext string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ext) {
		return path, nil
	}
	renamed := path + ext
	if err := os.Rename(path, renamed); err != nil {
		return "", fmt.Errorf("conversion: apply detected extension: %w", err)
	}
	return renamed, nil
}

// runCommand is the default command runner. Both output streams are buffered
// so transient-marker matching can inspect them.
func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
