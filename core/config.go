package core

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"preview_engine/logging"
)

// Render backends selectable with PREVIEW_BACKEND.
const (
	BackendInProcess = "inprocess"
	BackendProcess   = "process"
)

// Config holds all configuration values
type Config struct {
	// Previews
	ManifestDir   string `yaml:"manifest_dir"`
	CacheCapacity int    `yaml:"cache_capacity"`

	// Execution backend
	Backend                   string `yaml:"backend"`
	WorkerExecutable          string `yaml:"worker_executable"`
	WorkerStartTimeoutSeconds int    `yaml:"worker_start_timeout"`

	// Storage
	DataDir              string `yaml:"data_dir"`
	HistoryRetentionDays int    `yaml:"history_retention_days"`

	// HTTP server
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	AccessTokenHash string `yaml:"access_token_hash"`

	// Logging
	LogFile  string                   `yaml:"log_file"`
	LogLevel string                   `yaml:"log_level"`
	LogFiles logging.FileWriterConfig `yaml:"log_rotation"`

	// Lifecycle
	ShutdownTimeoutSeconds int  `yaml:"shutdown_timeout"`
	DevMode                bool `yaml:"dev_mode"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		ManifestDir:               "./previews",
		CacheCapacity:             64,
		Backend:                   BackendInProcess,
		WorkerStartTimeoutSeconds: 5,
		DataDir:                   "./data",
		HistoryRetentionDays:      7,
		Host:                      "localhost",
		Port:                      3070,
		LogFile:                   "preview_engine.log",
		ShutdownTimeoutSeconds:    30,
	}
}

// LoadConfig loads configuration from the process environment.
//
// Sources, lowest precedence first:
//  1. DefaultConfig
//  2. The YAML file named by PREVIEW_CONFIG_FILE, if set
//  3. PREVIEW_* environment variables (and DEV_MODE)
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(os.LookupEnv)
}

// LoadConfigFrom is LoadConfig reading variables through lookup.
func LoadConfigFrom(lookup LookupFunc) (*Config, error) {
	env := NewEnv(lookup)
	cfg := DefaultConfig()

	// Step 1: Optional YAML file supplies defaults
	if path := env.String("PREVIEW_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	// Step 2: Environment overrides
	cfg.ManifestDir = env.String("PREVIEW_MANIFEST_DIR", cfg.ManifestDir)
	cfg.CacheCapacity = env.Int("PREVIEW_CACHE_CAPACITY", cfg.CacheCapacity)
	cfg.Backend = env.String("PREVIEW_BACKEND", cfg.Backend)
	cfg.WorkerExecutable = env.String("PREVIEW_WORKER_EXECUTABLE", cfg.WorkerExecutable)
	cfg.WorkerStartTimeoutSeconds = env.Int("PREVIEW_WORKER_START_TIMEOUT", cfg.WorkerStartTimeoutSeconds)
	cfg.DataDir = env.String("PREVIEW_DATA_DIR", cfg.DataDir)
	cfg.HistoryRetentionDays = env.Int("PREVIEW_HISTORY_RETENTION_DAYS", cfg.HistoryRetentionDays)
	cfg.Host = env.String("PREVIEW_HOST", cfg.Host)
	cfg.Port = env.Int("PREVIEW_PORT", cfg.Port)
	cfg.AccessTokenHash = env.String("PREVIEW_ACCESS_TOKEN_HASH", cfg.AccessTokenHash)
	cfg.LogFile = env.String("PREVIEW_LOG_FILE", cfg.LogFile)
	cfg.LogLevel = env.String("PREVIEW_LOG_LEVEL", cfg.LogLevel)
	cfg.ShutdownTimeoutSeconds = env.Int("PREVIEW_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeoutSeconds)
	cfg.DevMode = env.Bool("DEV_MODE", cfg.DevMode)
	if err := env.Err(); err != nil {
		return nil, err
	}

	// Step 3: Validate the merged result
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ErrConfigFile(path, err.Error())
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return ErrConfigFile(path, err.Error())
	}
	return nil
}

// Validate checks ranges and formats. It does not touch the filesystem; see
// core/validation for startup checks.
func (c *Config) Validate() error {
	if c.ManifestDir == "" {
		return ErrMissingConfig("PREVIEW_MANIFEST_DIR")
	}
	if c.DataDir == "" {
		return ErrMissingConfig("PREVIEW_DATA_DIR")
	}
	if c.CacheCapacity < 1 {
		return ErrInvalidValue("PREVIEW_CACHE_CAPACITY", strconv.Itoa(c.CacheCapacity), "must be at least 1")
	}
	if c.Backend != BackendInProcess && c.Backend != BackendProcess {
		return ErrInvalidValue("PREVIEW_BACKEND", c.Backend,
			fmt.Sprintf("must be %q or %q", BackendInProcess, BackendProcess))
	}
	if c.WorkerStartTimeoutSeconds < 1 {
		return ErrInvalidValue("PREVIEW_WORKER_START_TIMEOUT", strconv.Itoa(c.WorkerStartTimeoutSeconds), "must be at least 1 second")
	}
	if c.HistoryRetentionDays < 0 {
		return ErrInvalidValue("PREVIEW_HISTORY_RETENTION_DAYS", strconv.Itoa(c.HistoryRetentionDays), "must not be negative")
	}
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidValue("PREVIEW_PORT", strconv.Itoa(c.Port), "must be between 1 and 65535")
	}
	if c.ShutdownTimeoutSeconds < 1 {
		return ErrInvalidValue("PREVIEW_SHUTDOWN_TIMEOUT", strconv.Itoa(c.ShutdownTimeoutSeconds), "must be at least 1 second")
	}
	if c.LogLevel != "" {
		if _, ok := logging.ParseLogLevel(c.LogLevel, zapcore.InfoLevel); !ok {
			return ErrInvalidValue("PREVIEW_LOG_LEVEL", c.LogLevel, "must be debug, info, warn, error or dpanic")
		}
	}
	if c.AccessTokenHash != "" {
		if _, err := bcrypt.Cost([]byte(c.AccessTokenHash)); err != nil {
			return ErrInvalidTokenHash(err.Error())
		}
	}
	return nil
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// WorkerStartTimeout returns the worker socket wait as a duration.
func (c *Config) WorkerStartTimeout() time.Duration {
	return time.Duration(c.WorkerStartTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown budget as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// HistoryRetention returns how long render history rows are kept. Zero
// disables pruning.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}

// HistoryDBPath returns the SQLite file holding render history.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// AuthEnabled reports whether API requests need a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.AccessTokenHash != ""
}

// LoggerOptions converts the logging settings for logging.NewLogger. A
// relative log file is placed in the data directory.
func (c *Config) LoggerOptions() logging.Options {
	opts := logging.Options{
		Development: c.DevMode,
		File:        c.LogFiles,
	}
	if c.LogFile != "" {
		opts.FilePath = c.LogFile
		if !filepath.IsAbs(c.LogFile) {
			opts.FilePath = filepath.Join(c.DataDir, c.LogFile)
		}
	}
	if c.LogLevel != "" {
		def := zapcore.InfoLevel
		if c.DevMode {
			def = zapcore.DebugLevel
		}
		level, _ := logging.ParseLogLevel(c.LogLevel, def)
		opts.Level = &level
	}
	return opts
}
