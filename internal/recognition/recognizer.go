package recognition

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"docket/internal/logging"
	"docket/internal/services"
)

type commandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// Page holds the recognition outcome for a single rasterized page.
type Page struct {
	Number int
	Text   string
	OK     bool
}

// Recognizer turns scanned documents into text by rasterizing each page and
// running tesseract over the images with bounded parallelism.
type Recognizer struct {
	cfg    Config
	run    commandRunner
	logger *slog.Logger
}

// Option customizes a Recognizer.
type Option func(*Recognizer)

// WithCommandRunner injects a custom command runner (primarily for tests).
func WithCommandRunner(r commandRunner) Option {
	return func(rec *Recognizer) {
		if r != nil {
			rec.run = r
		}
	}
}

// NewRecognizer constructs a recognizer with defaults filled in for any unset
// config fields.
func NewRecognizer(cfg Config, logger *slog.Logger, opts ...Option) *Recognizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	rec := &Recognizer{
		cfg:    cfg.withDefaults(),
		run:    runCommand,
		logger: logging.NewComponentLogger(logger, "recognition"),
	}
	for _, opt := range opts {
		opt(rec)
	}
	return rec
}

// pageBreak separates page texts in the assembled output.
const pageBreak = "\n\f\n"

// Recognize rasterizes the PDF at pdfPath into one image per page and OCRs
// the pages concurrently. Failed pages are skipped; the assembled text keeps
// the surviving pages in page order. An error is returned only when no page
// yields text.
func (r *Recognizer) Recognize(ctx context.Context, pdfPath string) (string, error) {
	if strings.TrimSpace(pdfPath) == "" {
		return "", services.Wrap(services.ErrValidation, "recognition", "rasterize", "document path required", nil)
	}

	tmpDir, err := os.MkdirTemp("", "docket-ocr-*")
	if err != nil {
		return "", fmt.Errorf("recognition: create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.logger.Warn("failed to remove recognition temp dir", "dir", tmpDir, "error", err)
		}
	}()

	images, err := r.rasterize(ctx, pdfPath, tmpDir)
	if err != nil {
		return "", err
	}
	r.logger.Info("rasterized document", "path", pdfPath, "pages", len(images), "dpi", r.cfg.DPI)

	pages, err := r.recognizePages(ctx, images)
	if err != nil {
		return "", err
	}
	return assemble(pages), nil
}

// rasterize renders one PNG per page and returns the image paths in page
// order. pdftoppm zero-pads page numbers, so a lexical sort is positional.
func (r *Recognizer) rasterize(ctx context.Context, pdfPath, tmpDir string) ([]string, error) {
	prefix := filepath.Join(tmpDir, "page")
	args := []string{"-r", strconv.Itoa(r.cfg.DPI), "-png", pdfPath, prefix}
	if _, stderr, err := r.run(ctx, r.cfg.PdftoppmBinary, args...); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "recognition", "rasterize", strings.TrimSpace(string(stderr)), err)
	}

	images, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("recognition: glob rendered pages: %w", err)
	}
	sort.Strings(images)
	if len(images) == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "recognition", "rasterize", "no pages rendered", nil)
	}
	return images, nil
}

// recognizePages runs tesseract over the images through a worker pool sized
// min(MaxWorkers, page count). Every page settles: a failed page records
// OK:false without cancelling its siblings.
func (r *Recognizer) recognizePages(ctx context.Context, images []string) ([]Page, error) {
	workers := r.cfg.MaxWorkers
	if len(images) < workers {
		workers = len(images)
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("recognition: create worker pool: %w", err)
	}
	defer pool.Release()

	results := make(chan Page, len(images))
	var wg sync.WaitGroup
	for i, image := range images {
		image := image
		number := i + 1
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			results <- r.recognizePage(ctx, number, image)
		})
		if submitErr != nil {
			wg.Done()
			results <- Page{Number: number}
			r.logger.Warn("failed to submit recognition job", "page", number, "error", submitErr)
		}
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	sampler := logging.NewProgressSampler(10)
	pages := make([]Page, 0, len(images))
	recognized := 0
	for page := range results {
		pages = append(pages, page)
		if page.OK {
			recognized++
		}
		percent := float64(len(pages)) / float64(len(images)) * 100
		if sampler.ShouldLog(percent, "ocr", "") {
			r.logger.Info("ocr progress", "completed", len(pages), "pages", len(images), "recognized", recognized)
		}
	}

	if recognized == 0 {
		return nil, services.Wrap(services.ErrExternalTool, "recognition", "ocr", "no pages recognized", nil)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

// recognizePage OCRs a single page image. Exit errors and empty output get a
// small retry allowance; tesseract occasionally drops a page under memory
// pressure and succeeds on the next attempt.
func (r *Recognizer) recognizePage(ctx context.Context, number int, image string) Page {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.PageAttempts; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		pageCtx, cancel := context.WithTimeout(ctx, r.cfg.PageTimeout)
		stdout, stderr, err := r.run(pageCtx, r.cfg.TesseractBinary, image, "stdout", "-l", r.cfg.Language)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(string(stderr)))
			r.logger.Debug("page recognition attempt failed", "page", number, "attempt", attempt, "error", lastErr)
			continue
		}
		text := strings.TrimRight(string(stdout), " \t\n")
		if strings.TrimSpace(text) == "" {
			lastErr = fmt.Errorf("tesseract: empty output")
			r.logger.Debug("page recognition produced no text", "page", number, "attempt", attempt)
			continue
		}
		return Page{Number: number, Text: text, OK: true}
	}
	r.logger.Warn("page recognition failed", "page", number, "attempts", r.cfg.PageAttempts, "error", lastErr)
	return Page{Number: number}
}

// assemble joins recognized page texts in page order with form-feed page
// markers. Pages must already be sorted by number.
func assemble(pages []Page) string {
	var b strings.Builder
	for _, page := range pages {
		if !page.OK || page.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(pageBreak)
		}
		b.WriteString(page.Text)
	}
	return b.String()
}

// runCommand is the default command runner. Both output streams are buffered
// so callers can parse stdout and surface stderr diagnostics.
func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
