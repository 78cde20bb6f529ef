package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, database, and bind address configuration.
type Paths struct {
	StagingDir   string `toml:"staging_dir"`
	DatabasePath string `toml:"database_path"`
	IndexDir     string `toml:"index_dir"`
	LogDir       string `toml:"log_dir"`
	APIBind      string `toml:"api_bind"`
}

// Processing contains batch orchestration settings.
type Processing struct {
	Concurrency         int `toml:"concurrency"`
	BatchHardCap        int `toml:"batch_hard_cap"`
	EntryTimeout        int `toml:"entry_timeout_seconds"`
	MaxRetries          int `toml:"max_retries"`
	TestModeLimit       int `toml:"test_mode_limit"`
	TestModeConcurrency int `toml:"test_mode_concurrency"`
	MaxDownloadMB       int `toml:"max_download_mb"`
	MinFreeSpaceMB      int `toml:"min_free_space_mb"`
	StaleAfter          int `toml:"stale_after_seconds"`
}

// Conversion contains settings for the external document converter.
type Conversion struct {
	SofficeBinary   string `toml:"soffice_binary"`
	PoolSize        int    `toml:"pool_size"`
	MaxRetries      int    `toml:"max_retries"`
	RetryBaseDelay  int    `toml:"retry_base_delay_seconds"`
	RetryMaxDelay   int    `toml:"retry_max_delay_seconds"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	DownloadTimeout int    `toml:"download_timeout_seconds"`
}

// Recognition contains settings for the OCR worker pool.
type Recognition struct {
	PdftoppmBinary  string `toml:"pdftoppm_binary"`
	TesseractBinary string `toml:"tesseract_binary"`
	Language        string `toml:"language"`
	DPI             int    `toml:"dpi"`
	MaxWorkers      int    `toml:"max_workers"`
	PageRetries     int    `toml:"page_retries"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// Extraction contains settings for direct text extraction.
type Extraction struct {
	PdftotextBinary string `toml:"pdftotext_binary"`
	MinCharsPerPage int    `toml:"min_chars_per_page"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// Completion contains connection settings for the summarization service.
type Completion struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxRetries     int    `toml:"max_retries"`
	BackoffCeiling int    `toml:"backoff_ceiling_seconds"`
}

// API contains HTTP API settings.
type API struct {
	Token string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Docket.
//
// Configuration sections by subsystem:
//   - Paths: staging/index/log directories, queue database, API bind address
//   - Processing: batch sizes, per-entry timeout, retry budget, test mode caps
//   - Conversion: LibreOffice invocation, converter pool size, transient retries
//   - Recognition: pdftoppm/tesseract settings and OCR pool size
//   - Extraction: pdftotext settings and the scanned-document heuristic
//   - Completion: summarization service connection and retry policy
//   - API: HTTP API auth token
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Processing  Processing  `toml:"processing"`
	Conversion  Conversion  `toml:"conversion"`
	Recognition Recognition `toml:"recognition"`
	Extraction  Extraction  `toml:"extraction"`
	Completion  Completion  `toml:"completion"`
	API         API         `toml:"api"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/docket/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/docket/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("docket.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.StagingDir,
		c.Paths.IndexDir,
		c.Paths.LogDir,
		filepath.Dir(c.Paths.DatabasePath),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// CompletionConfig contains the connection settings handed to the completion client.
type CompletionConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetCompletion returns the summarization service connection settings.
func (c *Config) GetCompletion() CompletionConfig {
	return CompletionConfig{
		APIKey:         strings.TrimSpace(c.Completion.APIKey),
		BaseURL:        strings.TrimSpace(c.Completion.BaseURL),
		Model:          strings.TrimSpace(c.Completion.Model),
		Referer:        strings.TrimSpace(c.Completion.Referer),
		Title:          strings.TrimSpace(c.Completion.Title),
		TimeoutSeconds: c.Completion.TimeoutSeconds,
	}
}
