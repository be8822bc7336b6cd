package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/guided-traffic/http-body-tracer/internal/bodytrace"
)

// TLSConfig holds TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`      // Enable/disable monitoring
	BindAddress string `mapstructure:"bind_address"` // Address to bind monitoring server (default: :9090)
	MetricsPath string `mapstructure:"metrics_path"` // Path for metrics endpoint (default: /metrics)
}

// TraceConfig holds request body tracing configuration
type TraceConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Buffer request bodies so they can be traced after the handler has read them.
	// Without buffering only form parameters can be traced.
	BufferBodies bool `mapstructure:"buffer_bodies"`

	// Character encoding used to decode raw bodies (default: UTF-8)
	Encoding string `mapstructure:"encoding"`

	// Bodies longer than this many characters are truncated in the log; 0 = unlimited
	MaxLoggedChars int `mapstructure:"max_logged_chars"`
}

// Config holds the application configuration
type Config struct {
	// Server configuration
	BindAddress       string    `mapstructure:"bind_address"`
	LogLevel          string    `mapstructure:"log_level"`
	LogFormat         string    `mapstructure:"log_format"` // "text" (default) or "json"
	LogHealthRequests bool      `mapstructure:"log_health_requests"`
	ShutdownTimeout   int       `mapstructure:"shutdown_timeout"` // Graceful shutdown timeout in seconds
	TLS               TLSConfig `mapstructure:"tls"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`

	// Body tracing configuration
	Trace TraceConfig `mapstructure:"trace"`
}

// InitConfig initializes the configuration system
func InitConfig(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			os.Exit(1)
		}

		// Search config in home directory with name ".http-body-tracer" (without extension)
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".http-body-tracer")
	}

	bindEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// Load loads the configuration from viper
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// bindEnv maps environment variables onto config keys, e.g. HBT_TRACE_ENCODING -> trace.encoding
func bindEnv() {
	viper.SetEnvPrefix("HBT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("bind_address", "0.0.0.0:8080")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("log_health_requests", false)
	viper.SetDefault("shutdown_timeout", 30)

	// TLS defaults
	viper.SetDefault("tls.enabled", false)
	viper.SetDefault("tls.cert_file", "")
	viper.SetDefault("tls.key_file", "")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", false)
	viper.SetDefault("monitoring.bind_address", ":9090")
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Trace defaults
	viper.SetDefault("trace.enabled", true)
	viper.SetDefault("trace.buffer_bodies", true)
	viper.SetDefault("trace.encoding", "UTF-8")
	viper.SetDefault("trace.max_logged_chars", 4096)
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.BindAddress == "" {
		return fmt.Errorf("bind_address is required")
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", cfg.LogLevel, err)
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be 'text' or 'json', got %q", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %d", cfg.ShutdownTimeout)
	}

	// Validate TLS configuration
	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			return fmt.Errorf("tls.cert_file is required when TLS is enabled")
		}
		if cfg.TLS.KeyFile == "" {
			return fmt.Errorf("tls.key_file is required when TLS is enabled")
		}

		if _, err := os.Stat(cfg.TLS.CertFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS certificate file does not exist: %s", cfg.TLS.CertFile)
		}
		if _, err := os.Stat(cfg.TLS.KeyFile); os.IsNotExist(err) {
			return fmt.Errorf("TLS key file does not exist: %s", cfg.TLS.KeyFile)
		}
	}

	if cfg.Monitoring.Enabled {
		if cfg.Monitoring.BindAddress == "" {
			return fmt.Errorf("monitoring.bind_address is required when monitoring is enabled")
		}
		if !strings.HasPrefix(cfg.Monitoring.MetricsPath, "/") {
			return fmt.Errorf("monitoring.metrics_path must start with '/', got %q", cfg.Monitoring.MetricsPath)
		}
	}

	return validateTrace(&cfg.Trace)
}

func validateTrace(trace *TraceConfig) error {
	if trace.Encoding == "" {
		return fmt.Errorf("trace.encoding is required")
	}
	if _, err := bodytrace.LookupEncoding(trace.Encoding); err != nil {
		return fmt.Errorf("trace.encoding %q is not a supported character encoding", trace.Encoding)
	}
	if trace.MaxLoggedChars < 0 {
		return fmt.Errorf("trace.max_logged_chars must not be negative, got %d", trace.MaxLoggedChars)
	}
	return nil
}
