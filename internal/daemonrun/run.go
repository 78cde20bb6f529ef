package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"docket/internal/config"
	"docket/internal/conversion"
	"docket/internal/daemon"
	"docket/internal/extraction"
	"docket/internal/index"
	"docket/internal/logging"
	"docket/internal/pipeline"
	"docket/internal/queue"
	"docket/internal/recognition"
	"docket/internal/respool"
	"docket/internal/services/completion"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Diagnostic  bool
}

// Run starts the docket daemon runtime loop. It owns the process-level
// concerns (signals, log files, the pid file) and wires the queue store,
// document index, and pipeline stages into the daemon, then blocks until the
// process is told to stop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("docket-%s.log", runID))
	eventsPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("docket-%s.events", runID))
	logHub := logging.NewStreamHub(4096)
	eventArchive, archiveErr := logging.NewEventArchive(eventsPath)
	if archiveErr != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to initialize log archive: %v\n", archiveErr)
	} else if eventArchive != nil {
		logHub.AddSink(eventArchive)
	}

	var debugLogPath string
	if opts.Diagnostic {
		debugDir := filepath.Join(cfg.Paths.LogDir, "debug")
		if err := os.MkdirAll(debugDir, 0o755); err != nil {
			return fmt.Errorf("create debug log directory: %w", err)
		}
		debugLogPath = filepath.Join(debugDir, fmt.Sprintf("docket-%s.log", runID))
	}

	logger, err := logging.New(logging.Options{
		Level:            opts.LogLevel,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
		Hub:              logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if opts.Diagnostic {
		debugLogger, debugErr := logging.New(logging.Options{
			Level:            "debug",
			Format:           "json",
			OutputPaths:      []string{debugLogPath},
			ErrorOutputPaths: []string{debugLogPath},
			Development:      true,
		})
		if debugErr != nil {
			fmt.Fprintf(os.Stderr, "warn: unable to initialize debug logger: %v\n", debugErr)
		} else {
			logger = logging.TeeLogger(logger, debugLogger.Handler())
			if err := ensureCurrentLogPointer(filepath.Join(cfg.Paths.LogDir, "debug"), debugLogPath); err != nil {
				fmt.Fprintf(os.Stderr, "warn: unable to update debug/docket.log link: %v\n", err)
			}
		}
		logger.Info("diagnostic mode enabled",
			logging.String(logging.FieldEventType, "diagnostic_mode_enabled"),
			logging.String("debug_log_path", debugLogPath),
		)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update docket.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "docket-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "docket-*.events", Exclude: []string{eventsPath}},
		logging.RetentionTarget{Dir: filepath.Join(cfg.Paths.LogDir, "debug"), Pattern: "docket-*.log", Exclude: []string{debugLogPath}},
	)
	pidPath := filepath.Join(cfg.Paths.LogDir, "docket.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	docIndex, err := index.Open(cfg.Paths.IndexDir, false, logger)
	if err != nil {
		logger.Error("open document index", logging.Error(err))
		return err
	}
	defer docIndex.Close()

	stages, err := buildStages(cfg, docIndex, logger)
	if err != nil {
		return err
	}
	orchestrator := pipeline.New(cfg, store, stages, logger)

	d, err := daemon.New(cfg, store, orchestrator, docIndex, logger, logHub, eventArchive)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	// Unlike a degraded stage, a failed Start leaves nothing behind to talk
	// to: the API server only exists inside a started daemon. Exit instead of
	// lingering as an unreachable process.
	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("docket daemon shutting down")
	return nil
}

// buildStages constructs the per-entry pipeline stages from configuration.
// The converter pool is sized here and shared by every job the daemon runs.
func buildStages(cfg *config.Config, docIndex *index.Index, logger *slog.Logger) (pipeline.Stages, error) {
	pool, err := respool.New(cfg.Conversion.PoolSize)
	if err != nil {
		return pipeline.Stages{}, fmt.Errorf("create converter pool: %w", err)
	}

	converter := conversion.NewConverter(conversion.Config{
		SofficeBinary:    cfg.Conversion.SofficeBinary,
		StagingDir:       cfg.Paths.StagingDir,
		MaxRetries:       cfg.Conversion.MaxRetries,
		RetryBaseDelay:   time.Duration(cfg.Conversion.RetryBaseDelay) * time.Second,
		RetryMaxDelay:    time.Duration(cfg.Conversion.RetryMaxDelay) * time.Second,
		MaxDownloadBytes: int64(cfg.Processing.MaxDownloadMB) << 20,
		DownloadTimeout:  time.Duration(cfg.Conversion.DownloadTimeout) * time.Second,
		CommandTimeout:   time.Duration(cfg.Conversion.TimeoutSeconds) * time.Second,
	}, pool, logger)

	recognizer := recognition.NewRecognizer(recognition.Config{
		PdftoppmBinary:  cfg.Recognition.PdftoppmBinary,
		TesseractBinary: cfg.Recognition.TesseractBinary,
		Language:        cfg.Recognition.Language,
		DPI:             cfg.Recognition.DPI,
		MaxWorkers:      cfg.Recognition.MaxWorkers,
		PageAttempts:    cfg.Recognition.PageRetries,
		PageTimeout:     time.Duration(cfg.Recognition.TimeoutSeconds) * time.Second,
	}, logger)

	extractor := extraction.NewExtractor(extraction.Config{
		PdftotextBinary: cfg.Extraction.PdftotextBinary,
		MinCharsPerPage: cfg.Extraction.MinCharsPerPage,
		CommandTimeout:  time.Duration(cfg.Extraction.TimeoutSeconds) * time.Second,
	}, recognizer, logger)

	summarizer := completion.NewClient(completion.Config{
		APIKey:         cfg.Completion.APIKey,
		BaseURL:        cfg.Completion.BaseURL,
		Model:          cfg.Completion.Model,
		Referer:        cfg.Completion.Referer,
		Title:          cfg.Completion.Title,
		TimeoutSeconds: cfg.Completion.TimeoutSeconds,
	},
		completion.WithRetryMaxAttempts(cfg.Completion.MaxRetries),
		completion.WithBackoffCeiling(time.Duration(cfg.Completion.BackoffCeiling)*time.Second),
	)

	return pipeline.Stages{
		Converter:  converter,
		Extractor:  extractor,
		Summarizer: summarizer,
		Index:      docIndex,
	}, nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "docket.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	soffice := cfg.Conversion.SofficeBinary
	pdftotext := cfg.Extraction.PdftotextBinary
	pdftoppm := cfg.Recognition.PdftoppmBinary
	tesseract := cfg.Recognition.TesseractBinary
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("completion_key_present", strings.TrimSpace(cfg.Completion.APIKey) != ""),
		logging.Bool("soffice_available", binaryAvailable(soffice)),
		logging.String("soffice_binary", soffice),
		logging.Bool("pdftotext_available", binaryAvailable(pdftotext)),
		logging.String("pdftotext_binary", pdftotext),
		logging.Bool("pdftoppm_available", binaryAvailable(pdftoppm)),
		logging.String("pdftoppm_binary", pdftoppm),
		logging.Bool("tesseract_available", binaryAvailable(tesseract)),
		logging.String("tesseract_binary", tesseract),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
