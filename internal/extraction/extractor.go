package extraction

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"docket/internal/conversion"
	"docket/internal/logging"
	"docket/internal/services"
)

type commandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// Recognizer is the OCR fallback consulted for scanned documents.
type Recognizer interface {
	Recognize(ctx context.Context, pdfPath string) (string, error)
}

// Config captures runtime settings for text extraction.
type Config struct {
	// PdftotextBinary is the extractor binary name or absolute path.
	PdftotextBinary string
	// MinCharsPerPage is the scanned-document heuristic: direct extraction
	// below this density falls back to OCR.
	MinCharsPerPage int
	// MaxTextBytes caps plain-text file reads.
	MaxTextBytes int64
	// CommandTimeout bounds a single pdftotext invocation.
	CommandTimeout time.Duration
}

// Extraction defaults.
const (
	PdftotextCommand = "pdftotext"

	DefaultMinCharsPerPage = 32
	DefaultMaxTextBytes    = 50 << 20
	DefaultCommandTimeout  = 1 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.PdftotextBinary == "" {
		c.PdftotextBinary = PdftotextCommand
	}
	if c.MinCharsPerPage <= 0 {
		c.MinCharsPerPage = DefaultMinCharsPerPage
	}
	if c.MaxTextBytes <= 0 {
		c.MaxTextBytes = DefaultMaxTextBytes
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	return c
}

// Result carries extracted text and its provenance.
type Result struct {
	Text   string
	Pages  int
	Method string
}

// Extraction methods recorded in Result.Method.
const (
	MethodTextFile = "text-file"
	MethodPDFText  = "pdf-text"
	MethodPDFOCR   = "pdf-ocr"
)

// Extractor pulls text out of canonical documents, falling back to OCR when
// a PDF looks scanned.
type Extractor struct {
	cfg        Config
	run        commandRunner
	recognizer Recognizer
	logger     *slog.Logger
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithCommandRunner injects a custom command runner (primarily for tests).
func WithCommandRunner(r commandRunner) Option {
	return func(e *Extractor) {
		if r != nil {
			e.run = r
		}
	}
}

// NewExtractor constructs an extractor. The recognizer may be nil, in which
// case scanned documents fail instead of falling back to OCR.
func NewExtractor(cfg Config, recognizer Recognizer, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Extractor{
		cfg:        cfg.withDefaults(),
		run:        runCommand,
		recognizer: recognizer,
		logger:     logging.NewComponentLogger(logger, "extraction"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the cleaned text of the document at path. Plain text is
// read directly; PDFs go through pdftotext with an OCR fallback when the
// per-page character density marks the document as scanned.
func (e *Extractor) Extract(ctx context.Context, path, mediaType string) (Result, error) {
	if mediaType == conversion.MediaTypeText || normalizeExt(path) == ".txt" {
		return e.extractTextFile(path)
	}
	return e.extractPDF(ctx, path)
}

func (e *Extractor) extractTextFile(path string) (Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Result{}, services.Wrap(services.ErrNotFound, "extraction", "read", fmt.Sprintf("text file %q", path), err)
	}
	if info.Size() > e.cfg.MaxTextBytes {
		return Result{}, services.Wrap(services.ErrValidation, "extraction", "read",
			fmt.Sprintf("text file size %d exceeds limit %d", info.Size(), e.cfg.MaxTextBytes), nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("extraction: read text file: %w", err)
	}
	text := Clean(string(data))
	if text == "" {
		return Result{}, services.Wrap(services.ErrValidation, "extraction", "read", "no extractable text", nil)
	}
	return Result{Text: text, Pages: 1, Method: MethodTextFile}, nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string) (Result, error) {
	direct, pages, directErr := e.pdfToText(ctx, path)
	if directErr != nil {
		e.logger.Warn("direct text extraction failed, falling back to ocr", "path", path, "error", directErr)
		direct, pages = "", 0
	}
	direct = Clean(direct)

	if directErr == nil && !e.looksScanned(direct, pages) {
		return Result{Text: direct, Pages: pages, Method: MethodPDFText}, nil
	}

	recognized, ocrErr := e.recognize(ctx, path)
	if ocrErr != nil {
		if direct != "" {
			e.logger.Warn("ocr fallback failed, keeping direct text", "path", path, "error", ocrErr)
			return Result{Text: direct, Pages: pages, Method: MethodPDFText}, nil
		}
		if directErr != nil {
			return Result{}, services.Wrap(services.ErrExternalTool, "extraction", "pdftotext",
				fmt.Sprintf("direct extraction failed (%v) and ocr fallback failed", directErr), ocrErr)
		}
		return Result{}, ocrErr
	}
	recognized = Clean(recognized)

	// Prefer whichever path recovered more text. Scanned documents often
	// carry a thin text layer (headers, watermarks) that pdftotext finds;
	// the recognized text is the actual content.
	if len(recognized) > len(direct) {
		return Result{Text: recognized, Pages: 1 + strings.Count(recognized, "\f"), Method: MethodPDFOCR}, nil
	}
	if direct == "" {
		return Result{}, services.Wrap(services.ErrValidation, "extraction", "assemble", "no extractable text", nil)
	}
	return Result{Text: direct, Pages: pages, Method: MethodPDFText}, nil
}

// pdfToText runs pdftotext and reports the text plus the page count derived
// from form-feed separators.
func (e *Extractor) pdfToText(ctx context.Context, path string) (string, int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CommandTimeout)
	defer cancel()

	stdout, stderr, err := e.run(ctx, e.cfg.PdftotextBinary, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", 0, fmt.Errorf("pdftotext: %w: %s", err, strings.TrimSpace(string(stderr)))
	}
	text := string(stdout)
	return text, 1 + strings.Count(text, "\f"), nil
}

func (e *Extractor) recognize(ctx context.Context, path string) (string, error) {
	if e.recognizer == nil {
		return "", services.Wrap(services.ErrConfiguration, "extraction", "ocr", "no recognizer configured", nil)
	}
	return e.recognizer.Recognize(ctx, path)
}

// looksScanned reports whether the per-page character density is below the
// configured threshold.
func (e *Extractor) looksScanned(text string, pages int) bool {
	if pages < 1 {
		return true
	}
	return len(text)/pages < e.cfg.MinCharsPerPage
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Clean normalizes extracted text. Invalid UTF-8 sequences and control
// characters other than newline, form feed, and tab are dropped, trailing
// whitespace is trimmed from each line, and runs of blank lines collapse to
// a single blank line.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ToValidUTF8(text, "")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\f' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	cleaned := blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(cleaned)
}

func normalizeExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// runCommand is the default command runner.
func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
