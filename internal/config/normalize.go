package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProcessing()
	c.normalizeConversion()
	c.normalizeRecognition()
	c.normalizeExtraction()
	c.normalizeCompletion()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.DatabasePath, err = expandPath(c.Paths.DatabasePath); err != nil {
		return fmt.Errorf("paths.database_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.IndexDir) == "" {
		c.Paths.IndexDir = defaultIndexDir
	}
	if c.Paths.IndexDir, err = expandPath(c.Paths.IndexDir); err != nil {
		return fmt.Errorf("paths.index_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeProcessing() {
	if c.Processing.Concurrency <= 0 {
		c.Processing.Concurrency = defaultConcurrency
	}
	if c.Processing.BatchHardCap <= 0 {
		c.Processing.BatchHardCap = defaultBatchHardCap
	}
	if c.Processing.EntryTimeout <= 0 {
		c.Processing.EntryTimeout = defaultEntryTimeout
	}
	if c.Processing.MaxRetries <= 0 {
		c.Processing.MaxRetries = defaultMaxRetries
	}
	if c.Processing.TestModeLimit <= 0 {
		c.Processing.TestModeLimit = defaultTestModeLimit
	}
	if c.Processing.TestModeConcurrency <= 0 {
		c.Processing.TestModeConcurrency = defaultTestModeConcurrency
	}
	if c.Processing.MaxDownloadMB <= 0 {
		c.Processing.MaxDownloadMB = defaultMaxDownloadMB
	}
	if c.Processing.MinFreeSpaceMB < 0 {
		c.Processing.MinFreeSpaceMB = defaultMinFreeSpaceMB
	}
	if c.Processing.StaleAfter <= 0 {
		c.Processing.StaleAfter = defaultStaleAfter
	}
}

func (c *Config) normalizeConversion() {
	c.Conversion.SofficeBinary = strings.TrimSpace(c.Conversion.SofficeBinary)
	if c.Conversion.SofficeBinary == "" {
		c.Conversion.SofficeBinary = defaultSofficeBinary
	}
	if c.Conversion.PoolSize <= 0 {
		c.Conversion.PoolSize = defaultConvertPoolSize
	}
	if c.Conversion.MaxRetries < 0 {
		c.Conversion.MaxRetries = defaultConvertMaxRetries
	}
	if c.Conversion.RetryBaseDelay <= 0 {
		c.Conversion.RetryBaseDelay = defaultConvertBaseDelay
	}
	if c.Conversion.RetryMaxDelay <= 0 {
		c.Conversion.RetryMaxDelay = defaultConvertMaxDelay
	}
	if c.Conversion.TimeoutSeconds <= 0 {
		c.Conversion.TimeoutSeconds = defaultConvertTimeout
	}
	if c.Conversion.DownloadTimeout <= 0 {
		c.Conversion.DownloadTimeout = defaultDownloadTimeout
	}
}

func (c *Config) normalizeRecognition() {
	c.Recognition.PdftoppmBinary = strings.TrimSpace(c.Recognition.PdftoppmBinary)
	if c.Recognition.PdftoppmBinary == "" {
		c.Recognition.PdftoppmBinary = defaultPdftoppmBinary
	}
	c.Recognition.TesseractBinary = strings.TrimSpace(c.Recognition.TesseractBinary)
	if c.Recognition.TesseractBinary == "" {
		c.Recognition.TesseractBinary = defaultTesseractBinary
	}
	c.Recognition.Language = strings.TrimSpace(c.Recognition.Language)
	if c.Recognition.Language == "" {
		c.Recognition.Language = defaultRecognitionLanguage
	}
	if c.Recognition.DPI <= 0 {
		c.Recognition.DPI = defaultRecognitionDPI
	}
	if c.Recognition.MaxWorkers <= 0 {
		c.Recognition.MaxWorkers = defaultRecognitionWorkers
	}
	if c.Recognition.PageRetries < 0 {
		c.Recognition.PageRetries = defaultPageRetries
	}
	if c.Recognition.TimeoutSeconds <= 0 {
		c.Recognition.TimeoutSeconds = defaultRecognitionTimeout
	}
}

func (c *Config) normalizeExtraction() {
	c.Extraction.PdftotextBinary = strings.TrimSpace(c.Extraction.PdftotextBinary)
	if c.Extraction.PdftotextBinary == "" {
		c.Extraction.PdftotextBinary = defaultPdftotextBinary
	}
	if c.Extraction.MinCharsPerPage <= 0 {
		c.Extraction.MinCharsPerPage = defaultMinCharsPerPage
	}
	if c.Extraction.TimeoutSeconds <= 0 {
		c.Extraction.TimeoutSeconds = defaultExtractionTimeout
	}
}

func (c *Config) normalizeCompletion() {
	c.Completion.APIKey = strings.TrimSpace(c.Completion.APIKey)
	if c.Completion.APIKey == "" {
		if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.Completion.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("DOCKET_COMPLETION_API_KEY"); ok {
			c.Completion.APIKey = strings.TrimSpace(value)
		}
	}
	c.Completion.BaseURL = strings.TrimSpace(c.Completion.BaseURL)
	if c.Completion.BaseURL == "" {
		c.Completion.BaseURL = defaultCompletionBaseURL
	}
	c.Completion.Model = strings.TrimSpace(c.Completion.Model)
	if c.Completion.Model == "" {
		c.Completion.Model = defaultCompletionModel
	}
	c.Completion.Referer = strings.TrimSpace(c.Completion.Referer)
	if c.Completion.Referer == "" {
		c.Completion.Referer = defaultCompletionReferer
	}
	c.Completion.Title = strings.TrimSpace(c.Completion.Title)
	if c.Completion.Title == "" {
		c.Completion.Title = defaultCompletionTitle
	}
	if c.Completion.TimeoutSeconds <= 0 {
		c.Completion.TimeoutSeconds = defaultCompletionTimeout
	}
	if c.Completion.MaxRetries < 0 {
		c.Completion.MaxRetries = defaultCompletionRetries
	}
	if c.Completion.BackoffCeiling <= 0 {
		c.Completion.BackoffCeiling = defaultBackoffCeiling
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "auto":
		c.Logging.Format = "auto"
	case "console", "json":
	default:
		c.Logging.Format = "auto"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
