package recognition

import "time"

// Config captures runtime settings for OCR recognition.
type Config struct {
	// PdftoppmBinary is the rasterizer binary name or absolute path.
	PdftoppmBinary string
	// TesseractBinary is the recognition binary name or absolute path.
	TesseractBinary string
	// Language is the tesseract language pack (e.g. "eng").
	Language string
	// DPI is the rasterization resolution for scanned documents.
	DPI int
	// MaxWorkers caps concurrent page recognitions; the effective pool size
	// is min(MaxWorkers, page count).
	MaxWorkers int
	// PageAttempts is the per-page retry allowance for transient failures.
	PageAttempts int
	// PageTimeout bounds a single tesseract invocation.
	PageTimeout time.Duration
}

// Recognition defaults.
const (
	PdftoppmCommand  = "pdftoppm"
	TesseractCommand = "tesseract"

	DefaultLanguage     = "eng"
	DefaultDPI          = 300
	DefaultMaxWorkers   = 4
	DefaultPageAttempts = 2
	DefaultPageTimeout  = 2 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.PdftoppmBinary == "" {
		c.PdftoppmBinary = PdftoppmCommand
	}
	if c.TesseractBinary == "" {
		c.TesseractBinary = TesseractCommand
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.DPI <= 0 {
		c.DPI = DefaultDPI
	}
	if c.MaxWorkers < 1 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.PageAttempts < 1 {
		c.PageAttempts = DefaultPageAttempts
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = DefaultPageTimeout
	}
	return c
}
