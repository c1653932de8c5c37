// Package config loads the service configuration for streamlyticsd:
// a YAML file with environment-variable overrides, validated once at
// startup.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/streamlytics/errors"
)

// Environment override variables
const (
	EnvNATSURL           = "STREAMLYTICS_NATS_URL"
	EnvMetricsAddr       = "STREAMLYTICS_METRICS_ADDR"
	EnvLogLevel          = "STREAMLYTICS_LOG_LEVEL"
	EnvManagementChannel = "STREAMLYTICS_MANAGEMENT_CHANNEL"
	EnvPipelineBucket    = "STREAMLYTICS_PIPELINE_BUCKET"
)

// Config is the validated service configuration
type Config struct {
	NATS       NATSConfig       `yaml:"nats"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
	Management ManagementConfig `yaml:"management"`
	Pipelines  PipelinesConfig  `yaml:"pipelines"`
}

// NATSConfig configures the broker connection
type NATSConfig struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// ManagementConfig configures the shared control channel
type ManagementConfig struct {
	Channel string `yaml:"channel"`
}

// PipelinesConfig configures definition persistence and startup
type PipelinesConfig struct {
	Bucket string   `yaml:"bucket"`
	Files  []string `yaml:"files"` // JSON definitions started at boot
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		NATS:       NATSConfig{URL: "nats://127.0.0.1:4222", Name: "streamlytics"},
		Metrics:    MetricsConfig{Addr: ":9090", Path: "/metrics"},
		Logging:    LoggingConfig{Level: "info"},
		Management: ManagementConfig{Channel: "analytics.management"},
		Pipelines:  PipelinesConfig{Bucket: "streamlytics-pipelines"},
	}
}

// Load reads path (optional, "" = defaults only), applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapInvalid(err, "config", "Load", "read config file")
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "config", "Load", "parse config file")
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvNATSURL); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		c.Metrics.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvManagementChannel); v != "" {
		c.Management.Channel = v
	}
	if v := os.Getenv(EnvPipelineBucket); v != "" {
		c.Pipelines.Bucket = v
	}
}

// Validate checks the configuration is complete and coherent
func (c *Config) Validate() error {
	if strings.TrimSpace(c.NATS.URL) == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: nats.url is blank", errors.ErrMissingConfig), "config", "Validate", "check nats url")
	}
	if strings.TrimSpace(c.Management.Channel) == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: management.channel is blank", errors.ErrMissingConfig), "config", "Validate", "check management channel")
	}
	if strings.TrimSpace(c.Pipelines.Bucket) == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: pipelines.bucket is blank", errors.ErrMissingConfig), "config", "Validate", "check pipeline bucket")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel converts the configured level to a slog.Level
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, errors.WrapInvalid(fmt.Errorf("%w: unknown level %q", errors.ErrInvalidConfig, c.Logging.Level), "config", "SlogLevel", "parse log level")
	}
}
