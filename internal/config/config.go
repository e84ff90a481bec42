// Package config provides centralized configuration management for the trades archiver.
// Configuration is assembled from defaults, an optional JSON or YAML file and environment
// variables, then validated as a whole so every problem is reported at once.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// AppConfig represents the complete application configuration
type AppConfig struct {
	// Application metadata
	AppName    string `json:"app_name" yaml:"app_name" env:"APP_NAME"`
	Version    string `json:"version" yaml:"version" env:"VERSION"`
	ConfigPath string `json:"-" yaml:"-"`

	Exchange  ExchangeConfig  `json:"exchange" yaml:"exchange"`
	Archive   ArchiveConfig   `json:"archive" yaml:"archive"`
	Upload    UploadConfig    `json:"upload" yaml:"upload"`
	Ledger    LedgerConfig    `json:"ledger" yaml:"ledger"`
	Scheduler SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Events    EventsConfig    `json:"events" yaml:"events"`
	Metrics   MetricsConfig   `json:"metrics" yaml:"metrics"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// ExchangeConfig configures the trade source
type ExchangeConfig struct {
	BaseURL   string `json:"base_url" yaml:"base_url" env:"EXCHANGE_BASE_URL"`    // REST API root, e.g. https://api.mercadobitcoin.net/api/v4
	Symbol    string `json:"symbol" yaml:"symbol" env:"EXCHANGE_SYMBOL"`          // Market symbol, e.g. BTC-BRL
	Timeout   string `json:"timeout" yaml:"timeout" env:"HTTP_TIMEOUT"`           // HTTP request timeout
	UserAgent string `json:"user_agent" yaml:"user_agent" env:"HTTP_USER_AGENT"` // User-Agent header sent to the exchange
}

// ArchiveConfig configures local CSV persistence
type ArchiveConfig struct {
	Directory  string `json:"directory" yaml:"directory" env:"ARCHIVE_DIR"`
	FilePrefix string `json:"file_prefix" yaml:"file_prefix" env:"ARCHIVE_FILE_PREFIX"`
	Timezone   string `json:"timezone" yaml:"timezone" env:"ARCHIVE_TIMEZONE"` // Zone used to pick the file date
}

// UploadConfig configures the destination bucket
type UploadConfig struct {
	Bucket          string `json:"bucket" yaml:"bucket" env:"S3_BUCKET"`
	Folder          string `json:"folder" yaml:"folder" env:"S3_FOLDER"`
	Region          string `json:"region" yaml:"region" env:"AWS_REGION"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	Endpoint        string `json:"endpoint" yaml:"endpoint" env:"S3_ENDPOINT"`                     // Optional S3-compatible endpoint
	UsePathStyle    bool   `json:"use_path_style" yaml:"use_path_style" env:"S3_USE_PATH_STYLE"` // Required by most S3-compatible stores
}

// LedgerConfig configures the run history store
type LedgerConfig struct {
	Type string `json:"type" yaml:"type" env:"LEDGER_TYPE"` // "duckdb", "sqlite", "memory", "none"
	Path string `json:"path" yaml:"path" env:"LEDGER_PATH"`
}

// SchedulerConfig configures the in-process cron loop
type SchedulerConfig struct {
	Cron       string `json:"cron" yaml:"cron" env:"SCHEDULE_CRON"` // Six-field cron expression (with seconds)
	Timezone   string `json:"timezone" yaml:"timezone" env:"SCHEDULE_TIMEZONE"`
	RunOnStart bool   `json:"run_on_start" yaml:"run_on_start" env:"RUN_ON_START"`
	RunTimeout string `json:"run_timeout" yaml:"run_timeout" env:"RUN_TIMEOUT"`
}

// EventsConfig configures archive-completed notifications
type EventsConfig struct {
	Enabled      bool     `json:"enabled" yaml:"enabled" env:"EVENTS_ENABLED"`
	Brokers      []string `json:"brokers" yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	Topic        string   `json:"topic" yaml:"topic" env:"KAFKA_TOPIC"`
	WriteTimeout string   `json:"write_timeout" yaml:"write_timeout" env:"KAFKA_WRITE_TIMEOUT"`
}

// MetricsConfig configures the metrics and health endpoint served by the schedule command
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Addr    string `json:"addr" yaml:"addr" env:"METRICS_ADDR"` // Listen address, e.g. :9090
	Path    string `json:"path" yaml:"path" env:"METRICS_PATH"`
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level         string            `json:"level" yaml:"level" env:"LOG_LEVEL"`                   // Log level: debug, info, warn, error
	Format        string            `json:"format" yaml:"format" env:"LOG_FORMAT"`                // Log format: json, text
	Output        string            `json:"output" yaml:"output" env:"LOG_OUTPUT"`                // Output: stdout, stderr, file
	FilePath      string            `json:"file_path" yaml:"file_path" env:"LOG_FILE_PATH"`       // Log file path
	MaxSize       int               `json:"max_size" yaml:"max_size" env:"LOG_MAX_SIZE"`          // Maximum log file size in MB
	MaxBackups    int               `json:"max_backups" yaml:"max_backups" env:"LOG_MAX_BACKUPS"` // Maximum log file backups
	MaxAge        int               `json:"max_age" yaml:"max_age" env:"LOG_MAX_AGE"`             // Maximum log file age in days
	Compress      bool              `json:"compress" yaml:"compress" env:"LOG_COMPRESS"`          // Compress old log files
	ContextFields map[string]string `json:"context_fields" yaml:"context_fields"`                 // Additional context fields
}

// ConfigManager handles configuration loading and validation
type ConfigManager struct {
	config     *AppConfig
	configPath string
	logger     *slog.Logger
	overrides  []func(*AppConfig)
}

// NewConfigManager creates a new configuration manager
func NewConfigManager(configPath string, logger *slog.Logger) *ConfigManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &ConfigManager{
		configPath: configPath,
		logger:     logger,
	}
}

// WithOverride registers fn to adjust the loaded configuration before it is validated.
// Command-line flags use it so their values go through the same checks as the file.
func (cm *ConfigManager) WithOverride(fn func(*AppConfig)) *ConfigManager {
	if fn != nil {
		cm.overrides = append(cm.overrides, fn)
	}
	return cm
}

// LoadConfig loads configuration from multiple sources with priority order:
// 1. Overrides registered with WithOverride (highest priority)
// 2. Environment variables
// 3. Configuration file
// 4. Default values (lowest priority)
func (cm *ConfigManager) LoadConfig(ctx context.Context) (*AppConfig, error) {
	config := DefaultConfig()

	if cm.configPath != "" {
		if err := cm.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := cm.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	config.ConfigPath = cm.configPath

	for _, override := range cm.overrides {
		override(config)
	}

	if err := cm.validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cm.config = config
	cm.logger.Debug("configuration loaded",
		"config_path", cm.configPath,
		"symbol", config.Exchange.Symbol,
		"bucket", config.Upload.Bucket,
		"ledger_type", config.Ledger.Type,
		"log_level", config.Logging.Level)

	return config, nil
}

// loadFromFile loads configuration from a JSON or YAML file, chosen by extension
func (cm *ConfigManager) loadFromFile(config *AppConfig) error {
	if _, err := os.Stat(cm.configPath); os.IsNotExist(err) {
		cm.logger.Debug("config file does not exist, using defaults", "path", cm.configPath)
		return nil
	}

	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cm.configPath, err)
	}

	switch strings.ToLower(filepath.Ext(cm.configPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", cm.configPath, err)
	}

	cm.logger.Debug("loaded configuration from file", "path", cm.configPath)
	return nil
}

// loadFromEnv overrides fields whose env tag names a variable present in the environment
func (cm *ConfigManager) loadFromEnv(config *AppConfig) error {
	if err := env.Parse(config); err != nil {
		return err
	}

	cm.logger.Debug("loaded configuration from environment variables")
	return nil
}

// validateConfig validates the configuration for consistency and required fields.
// Credentials are deliberately not checked here; missing ones surface from the uploader.
func (cm *ConfigManager) validateConfig(config *AppConfig) error {
	var errors []string

	// Exchange
	if config.Exchange.BaseURL == "" {
		errors = append(errors, "exchange.base_url is required")
	} else if u, err := url.Parse(config.Exchange.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, "exchange.base_url must be an absolute http(s) URL")
	}
	if strings.TrimSpace(config.Exchange.Symbol) == "" {
		errors = append(errors, "exchange.symbol is required")
	}
	if _, err := time.ParseDuration(config.Exchange.Timeout); err != nil {
		errors = append(errors, fmt.Sprintf("exchange.timeout is not a valid duration: %v", err))
	}

	// Archive
	if strings.TrimSpace(config.Archive.Directory) == "" {
		errors = append(errors, "archive.directory is required")
	}
	if config.Archive.FilePrefix == "" {
		errors = append(errors, "archive.file_prefix is required")
	} else if strings.ContainsAny(config.Archive.FilePrefix, `/\`) {
		errors = append(errors, "archive.file_prefix must not contain path separators")
	}
	if _, err := time.LoadLocation(config.Archive.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("archive.timezone is not a valid location: %v", err))
	}

	// Upload
	if config.Upload.Bucket == "" {
		errors = append(errors, "upload.bucket is required")
	}
	if config.Upload.Region == "" {
		errors = append(errors, "upload.region is required")
	}
	if config.Upload.Endpoint != "" {
		if u, err := url.Parse(config.Upload.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, "upload.endpoint must be an absolute URL")
		}
	}

	// Ledger
	switch config.Ledger.Type {
	case "duckdb", "sqlite":
		if config.Ledger.Path == "" {
			errors = append(errors, fmt.Sprintf("ledger.path is required for %s ledger", config.Ledger.Type))
		}
	case "memory", "none":
	default:
		errors = append(errors, "ledger.type must be one of: duckdb, sqlite, memory, none")
	}

	// Scheduler
	if config.Scheduler.Cron == "" {
		errors = append(errors, "scheduler.cron is required")
	}
	if _, err := time.LoadLocation(config.Scheduler.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("scheduler.timezone is not a valid location: %v", err))
	}
	if config.Scheduler.RunTimeout != "" {
		if _, err := time.ParseDuration(config.Scheduler.RunTimeout); err != nil {
			errors = append(errors, fmt.Sprintf("scheduler.run_timeout is not a valid duration: %v", err))
		}
	}

	// Events
	if config.Events.Enabled {
		if len(config.Events.Brokers) == 0 {
			errors = append(errors, "events.brokers is required when events are enabled")
		}
		if config.Events.Topic == "" {
			errors = append(errors, "events.topic is required when events are enabled")
		}
		if _, err := time.ParseDuration(config.Events.WriteTimeout); err != nil {
			errors = append(errors, fmt.Sprintf("events.write_timeout is not a valid duration: %v", err))
		}
	}

	// Metrics
	if config.Metrics.Enabled {
		if config.Metrics.Addr == "" {
			errors = append(errors, "metrics.addr is required when metrics are enabled")
		}
		if !strings.HasPrefix(config.Metrics.Path, "/") || config.Metrics.Path == "/health" {
			errors = append(errors, "metrics.path must start with / and must not be /health")
		}
	}

	// Logging
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[config.Logging.Level] {
		errors = append(errors, "logging.level must be one of: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[config.Logging.Format] {
		errors = append(errors, "logging.format must be one of: json, text")
	}

	if config.Logging.Output == "file" && config.Logging.FilePath == "" {
		errors = append(errors, "logging.file_path is required when output is file")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *AppConfig {
	return cm.config
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		AppName: "trades-archiver",
		Version: "1.0.0",
		Exchange: ExchangeConfig{
			BaseURL:   "https://api.mercadobitcoin.net/api/v4",
			Symbol:    "BTC-BRL",
			Timeout:   "30s",
			UserAgent: "go-trades-archiver/1.0",
		},
		Archive: ArchiveConfig{
			Directory:  "./data/trades",
			FilePrefix: "api_trades",
			Timezone:   "Local", // the host's calendar date
		},
		Upload: UploadConfig{
			Bucket: "mercadobitcoin-api",
			Folder: "trades",
			Region: "us-east-1",
		},
		Ledger: LedgerConfig{
			Type: "duckdb",
			Path: "./data/ledger.duckdb",
		},
		Scheduler: SchedulerConfig{
			Cron:       "0 0 * * * *", // hourly, on the hour
			Timezone:   "UTC",
			RunOnStart: false,
			RunTimeout: "5m",
		},
		Events: EventsConfig{
			Enabled:      false,
			Brokers:      []string{"localhost:9092"},
			Topic:        "archive.events",
			WriteTimeout: "10s",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stderr",
			FilePath:   "",
			MaxSize:    100, // 100MB
			MaxBackups: 5,
			MaxAge:     30, // 30 days
			Compress:   true,
			ContextFields: map[string]string{
				"service": "trades-archiver",
			},
		},
	}
}

// HTTPTimeout returns the parsed exchange timeout, falling back to 30s
func (c *AppConfig) HTTPTimeout() time.Duration {
	d, err := time.ParseDuration(c.Exchange.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ArchiveLocation returns the zone used to date archive files
func (c *AppConfig) ArchiveLocation() *time.Location {
	loc, err := time.LoadLocation(c.Archive.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// String returns a string representation of the configuration (excluding sensitive data)
func (c *AppConfig) String() string {
	sanitized := *c
	if sanitized.Upload.AccessKeyID != "" {
		sanitized.Upload.AccessKeyID = "[REDACTED]"
	}
	if sanitized.Upload.SecretAccessKey != "" {
		sanitized.Upload.SecretAccessKey = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(&sanitized, "", "  ")
	return string(data)
}
