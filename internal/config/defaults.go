package config

const (
	defaultStagingDir          = "~/.local/share/docket/staging"
	defaultDatabasePath        = "~/.local/share/docket/docket.db"
	defaultIndexDir            = "~/.local/share/docket/index"
	defaultLogDir              = "~/.local/share/docket/logs"
	defaultAPIBind             = "127.0.0.1:7433"
	defaultLogFormat           = "auto"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 14
	defaultConcurrency         = 4
	defaultBatchHardCap        = 10
	defaultEntryTimeout        = 3600
	defaultMaxRetries          = 3
	defaultTestModeLimit       = 5
	defaultTestModeConcurrency = 2
	defaultMaxDownloadMB       = 100
	defaultMinFreeSpaceMB      = 512
	defaultStaleAfter          = 300
	defaultSofficeBinary       = "soffice"
	defaultConvertPoolSize     = 1
	defaultConvertMaxRetries   = 3
	defaultConvertBaseDelay    = 1
	defaultConvertMaxDelay     = 10
	defaultConvertTimeout      = 300
	defaultDownloadTimeout     = 120
	defaultPdftoppmBinary      = "pdftoppm"
	defaultTesseractBinary     = "tesseract"
	defaultRecognitionLanguage = "eng"
	defaultRecognitionDPI      = 300
	defaultRecognitionWorkers  = 4
	defaultPageRetries         = 2
	defaultRecognitionTimeout  = 120
	defaultPdftotextBinary     = "pdftotext"
	defaultMinCharsPerPage     = 32
	defaultExtractionTimeout   = 60
	defaultCompletionBaseURL   = "https://openrouter.ai/api/v1"
	defaultCompletionModel     = "google/gemini-3-flash-preview"
	defaultCompletionReferer   = "https://github.com/docket/docket"
	defaultCompletionTitle     = "Docket Document Summarizer"
	defaultCompletionTimeout   = 120
	defaultCompletionRetries   = 3
	defaultBackoffCeiling      = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:   defaultStagingDir,
			DatabasePath: defaultDatabasePath,
			IndexDir:     defaultIndexDir,
			LogDir:       defaultLogDir,
			APIBind:      defaultAPIBind,
		},
		Processing: Processing{
			Concurrency:         defaultConcurrency,
			BatchHardCap:        defaultBatchHardCap,
			EntryTimeout:        defaultEntryTimeout,
			MaxRetries:          defaultMaxRetries,
			TestModeLimit:       defaultTestModeLimit,
			TestModeConcurrency: defaultTestModeConcurrency,
			MaxDownloadMB:       defaultMaxDownloadMB,
			MinFreeSpaceMB:      defaultMinFreeSpaceMB,
			StaleAfter:          defaultStaleAfter,
		},
		Conversion: Conversion{
			SofficeBinary:   defaultSofficeBinary,
			PoolSize:        defaultConvertPoolSize,
			MaxRetries:      defaultConvertMaxRetries,
			RetryBaseDelay:  defaultConvertBaseDelay,
			RetryMaxDelay:   defaultConvertMaxDelay,
			TimeoutSeconds:  defaultConvertTimeout,
			DownloadTimeout: defaultDownloadTimeout,
		},
		Recognition: Recognition{
			PdftoppmBinary:  defaultPdftoppmBinary,
			TesseractBinary: defaultTesseractBinary,
			Language:        defaultRecognitionLanguage,
			DPI:             defaultRecognitionDPI,
			MaxWorkers:      defaultRecognitionWorkers,
			PageRetries:     defaultPageRetries,
			TimeoutSeconds:  defaultRecognitionTimeout,
		},
		Extraction: Extraction{
			PdftotextBinary: defaultPdftotextBinary,
			MinCharsPerPage: defaultMinCharsPerPage,
			TimeoutSeconds:  defaultExtractionTimeout,
		},
		Completion: Completion{
			BaseURL:        defaultCompletionBaseURL,
			Model:          defaultCompletionModel,
			Referer:        defaultCompletionReferer,
			Title:          defaultCompletionTitle,
			TimeoutSeconds: defaultCompletionTimeout,
			MaxRetries:     defaultCompletionRetries,
			BackoffCeiling: defaultBackoffCeiling,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
