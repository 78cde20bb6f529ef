package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"docket/internal/config"
)

func TestLoadDefaultConfigUsesEnvCompletionKeyAndExpandsPaths(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "docket", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Paths.DatabasePath != filepath.Join(tempHome, ".local", "share", "docket", "docket.db") {
		t.Fatalf("unexpected database path: %q", cfg.Paths.DatabasePath)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7433" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Completion.APIKey != "test-key" {
		t.Fatalf("expected completion key from env, got %q", cfg.Completion.APIKey)
	}
	if cfg.Completion.BaseURL != config.Default().Completion.BaseURL {
		t.Fatalf("unexpected completion base url: %q", cfg.Completion.BaseURL)
	}
	if cfg.Processing.Concurrency != config.Default().Processing.Concurrency {
		t.Fatalf("unexpected concurrency: %d", cfg.Processing.Concurrency)
	}
	if cfg.Conversion.PoolSize != 1 {
		t.Fatalf("expected converter pool size 1 by default, got %d", cfg.Conversion.PoolSize)
	}
	if cfg.Recognition.Language != "eng" {
		t.Fatalf("expected recognition language eng, got %q", cfg.Recognition.Language)
	}
	if cfg.Logging.Format != "auto" {
		t.Fatalf("expected auto log format, got %q", cfg.Logging.Format)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.IndexDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "docket.toml")

	type payload struct {
		Processing struct {
			Concurrency   int `toml:"concurrency"`
			TestModeLimit int `toml:"test_mode_limit"`
		} `toml:"processing"`
		Completion struct {
			APIKey string `toml:"api_key"`
			Model  string `toml:"model"`
		} `toml:"completion"`
		Recognition struct {
			Language string `toml:"language"`
		} `toml:"recognition"`
	}
	custom := payload{}
	custom.Processing.Concurrency = 2
	custom.Processing.TestModeLimit = 3
	custom.Completion.APIKey = "abc123"
	custom.Completion.Model = "example/model"
	custom.Recognition.Language = "hun"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Processing.Concurrency != 2 {
		t.Fatalf("expected concurrency 2, got %d", cfg.Processing.Concurrency)
	}
	if cfg.Processing.TestModeLimit != 3 {
		t.Fatalf("expected test mode limit 3, got %d", cfg.Processing.TestModeLimit)
	}
	if cfg.Completion.APIKey != "abc123" {
		t.Fatalf("expected completion key from file, got %q", cfg.Completion.APIKey)
	}
	if cfg.Completion.Model != "example/model" {
		t.Fatalf("expected model override, got %q", cfg.Completion.Model)
	}
	if cfg.Recognition.Language != "hun" {
		t.Fatalf("expected recognition language override, got %q", cfg.Recognition.Language)
	}
	if cfg.Processing.BatchHardCap != config.Default().Processing.BatchHardCap {
		t.Fatalf("expected default batch hard cap, got %d", cfg.Processing.BatchHardCap)
	}
}

func TestEnvVarDoesNotOverrideConfigFileKey(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "docket.toml")

	type payload struct {
		Completion struct {
			APIKey string `toml:"api_key"`
		} `toml:"completion"`
	}
	custom := payload{}
	custom.Completion.APIKey = "file-key"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	t.Setenv("OPENROUTER_API_KEY", "env-key")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Completion.APIKey != "file-key" {
		t.Fatalf("expected file key to win, got %q", cfg.Completion.APIKey)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[completion]") {
		t.Fatalf("sample config missing completion section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Conversion.PoolSize != 1 {
		t.Fatalf("expected sample converter pool size 1, got %d", cfg.Conversion.PoolSize)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Processing.EntryTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive entry timeout")
	}

	cfg = config.Default()
	cfg.Processing.Concurrency = cfg.Processing.BatchHardCap + 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when concurrency exceeds hard cap")
	}

	cfg = config.Default()
	cfg.Conversion.RetryBaseDelay = 20
	cfg.Conversion.RetryMaxDelay = 5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when base delay exceeds max delay")
	}

	cfg = config.Default()
	cfg.Paths.APIBind = "not-a-bind"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for malformed bind address")
	}

	cfg = config.Default()
	cfg.Completion.Model = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty completion model")
	}
}
