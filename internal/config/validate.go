package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateConversion(); err != nil {
		return err
	}
	if err := c.validateRecognition(); err != nil {
		return err
	}
	if err := c.validateCompletion(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.DatabasePath) == "" {
		return errors.New("paths.database_path must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q is not a host:port address: %w", c.Paths.APIBind, err)
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if err := ensurePositiveMap(map[string]int{
		"processing.concurrency":           c.Processing.Concurrency,
		"processing.batch_hard_cap":        c.Processing.BatchHardCap,
		"processing.entry_timeout_seconds": c.Processing.EntryTimeout,
		"processing.max_retries":           c.Processing.MaxRetries,
		"processing.test_mode_limit":       c.Processing.TestModeLimit,
		"processing.max_download_mb":       c.Processing.MaxDownloadMB,
		"processing.stale_after_seconds":   c.Processing.StaleAfter,
	}); err != nil {
		return err
	}
	if c.Processing.Concurrency > c.Processing.BatchHardCap {
		return errors.New("processing.concurrency must not exceed processing.batch_hard_cap")
	}
	if c.Processing.TestModeConcurrency > c.Processing.BatchHardCap {
		return errors.New("processing.test_mode_concurrency must not exceed processing.batch_hard_cap")
	}
	return nil
}

func (c *Config) validateConversion() error {
	if strings.TrimSpace(c.Conversion.SofficeBinary) == "" {
		return errors.New("conversion.soffice_binary must be set")
	}
	if err := ensurePositiveMap(map[string]int{
		"conversion.pool_size":                c.Conversion.PoolSize,
		"conversion.retry_base_delay_seconds": c.Conversion.RetryBaseDelay,
		"conversion.retry_max_delay_seconds":  c.Conversion.RetryMaxDelay,
		"conversion.timeout_seconds":          c.Conversion.TimeoutSeconds,
		"conversion.download_timeout_seconds": c.Conversion.DownloadTimeout,
	}); err != nil {
		return err
	}
	if c.Conversion.RetryBaseDelay > c.Conversion.RetryMaxDelay {
		return errors.New("conversion.retry_base_delay_seconds must not exceed conversion.retry_max_delay_seconds")
	}
	return nil
}

func (c *Config) validateRecognition() error {
	if strings.TrimSpace(c.Recognition.PdftoppmBinary) == "" {
		return errors.New("recognition.pdftoppm_binary must be set")
	}
	if strings.TrimSpace(c.Recognition.TesseractBinary) == "" {
		return errors.New("recognition.tesseract_binary must be set")
	}
	return ensurePositiveMap(map[string]int{
		"recognition.dpi":             c.Recognition.DPI,
		"recognition.max_workers":     c.Recognition.MaxWorkers,
		"recognition.timeout_seconds": c.Recognition.TimeoutSeconds,
	})
}

func (c *Config) validateCompletion() error {
	if strings.TrimSpace(c.Completion.BaseURL) == "" {
		return errors.New("completion.base_url must be set")
	}
	if strings.TrimSpace(c.Completion.Model) == "" {
		return errors.New("completion.model must be set")
	}
	if c.Completion.BackoffCeiling <= 0 {
		return errors.New("completion.backoff_ceiling_seconds must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
