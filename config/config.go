// Package config holds the environment-variable driven configuration
// structs for both binaries, parsed with caarlos0/env the same way the
// teacher parses its own RaspiAgentConfig.
package config

// ServerConfig is cmd/transcribeserver's configuration.
type ServerConfig struct {
	ServerAddr string `env:"SERVER_ADDR" envDefault:"0.0.0.0:8090"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	PoolCapacity int `env:"POOL_CAPACITY" envDefault:"4"`

	UploadsDir string `env:"UPLOADS_DIR" envDefault:"./data/uploads"`
	WorkDir    string `env:"WORK_DIR" envDefault:"./data/work"`
	ResultsDir string `env:"RESULTS_DIR" envDefault:"./data/results"`

	DefaultModel   string `env:"DEFAULT_MODEL" envDefault:"small"`
	AllowedModels  string `env:"ALLOWED_MODELS" envDefault:"tiny,base,small,medium,large"`
	MaxBundleBytes int64  `env:"MAX_BUNDLE_BYTES" envDefault:"536870912"`
	RetentionHours int    `env:"RETENTION_HOURS" envDefault:"24"`

	WhisperBin     string `env:"WHISPER_BIN" envDefault:"whisper"`
	BundlePassword string `env:"BUNDLE_PASSWORD,required"`
}

// ClientConfig is cmd/transcribeclient's configuration.
type ClientConfig struct {
	ServerURL string `env:"SERVER_URL,required"`
	ScanDir   string `env:"SCAN_DIR,required"`
	OutputDir string `env:"OUTPUT_DIR" envDefault:""`

	BundlePassword string `env:"BUNDLE_PASSWORD,required"`
	DefaultModel   string `env:"DEFAULT_MODEL" envDefault:"small"`

	FFmpegBin string `env:"FFMPEG_BIN" envDefault:"ffmpeg"`

	PollPendingInterval    string `env:"POLL_PENDING_INTERVAL" envDefault:"15s"`
	PollProcessingInterval string `env:"POLL_PROCESSING_INTERVAL" envDefault:"5s"`
	PollFastInterval       string `env:"POLL_FAST_INTERVAL" envDefault:"2s"`
	AdmissionBackoff       string `env:"ADMISSION_BACKOFF" envDefault:"5s"`

	KeepScratch bool   `env:"KEEP_SCRATCH" envDefault:"false"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// MaxWaiters bounds the number of concurrently in-flight polling
	// goroutines (SPEC_FULL.md §4.8); 0 means unbounded.
	MaxWaiters int64 `env:"CLIENT_MAX_WAITERS" envDefault:"0"`
}
