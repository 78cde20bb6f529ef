package conversion

import "time"

// Config captures runtime settings for document conversion.
type Config struct {
	// SofficeBinary is the LibreOffice binary name or absolute path.
	SofficeBinary string
	// StagingDir is the staging root; work dirs and canonical documents are
	// created beneath it.
	StagingDir string
	// MaxRetries is the total attempt allowance when the converter runtime
	// fails to start.
	MaxRetries int
	// RetryBaseDelay seeds the backoff between converter attempts.
	RetryBaseDelay time.Duration
	// RetryMaxDelay caps the backoff between converter attempts.
	RetryMaxDelay time.Duration
	// MaxDownloadBytes caps remote document size. Both the Content-Length
	// header and the streamed byte count are enforced.
	MaxDownloadBytes int64
	// DownloadTimeout bounds a single remote fetch.
	DownloadTimeout time.Duration
	// CommandTimeout bounds a single soffice attempt.
	CommandTimeout time.Duration
}

// Conversion defaults.
const (
	SofficeCommand = "soffice"

	DefaultMaxRetries       = 3
	DefaultRetryBaseDelay   = 1 * time.Second
	DefaultRetryMaxDelay    = 10 * time.Second
	DefaultMaxDownloadBytes = 100 << 20
	DefaultDownloadTimeout  = 2 * time.Minute
	DefaultCommandTimeout   = 5 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.SofficeBinary == "" {
		c.SofficeBinary = SofficeCommand
	}
	if c.MaxRetries < 1 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = DefaultRetryMaxDelay
	}
	if c.MaxDownloadBytes <= 0 {
		c.MaxDownloadBytes = DefaultMaxDownloadBytes
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = DefaultDownloadTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	return c
}
