// Package config provides configuration management for voicesplit using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 9001
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxUploadBytes  = 32 * 1024 * 1024
	defaultMaxBufferBytes  = 4 * 1024 * 1024
	defaultKeepBytes       = 256 * 1024
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Session SessionConfig `mapstructure:"session"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// MaxUploadBytes caps the body of one-shot split requests.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// SessionConfig controls the rolling buffer of streaming sessions.
type SessionConfig struct {
	// MaxBufferBytes triggers an automatic split once the buffer grows past it.
	// Zero disables automatic splits.
	MaxBufferBytes   int  `mapstructure:"max_buffer_bytes"`
	KeepBytes        int  `mapstructure:"keep_bytes"`
	AdjustTimestamps bool `mapstructure:"adjust_timestamps"`
	FlushQueue       int  `mapstructure:"flush_queue"`
}

// Read prepares v with defaults, the config file and environment variables,
// then reads the file. Environment variables take precedence over file values.
// They are prefixed with VOICESPLIT_ and use underscores for nesting.
// Example: VOICESPLIT_SERVER_PORT=9001. A missing default config file is not
// an error.
func Read(v *viper.Viper, configPath string) error {
	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/voicesplit")
		v.AddConfigPath("$HOME/.voicesplit")
	}

	v.SetEnvPrefix("VOICESPLIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	return nil
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.max_upload_bytes", defaultMaxUploadBytes)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", "")

	v.SetDefault("session.max_buffer_bytes", defaultMaxBufferBytes)
	v.SetDefault("session.keep_bytes", defaultKeepBytes)
	v.SetDefault("session.adjust_timestamps", true)
	v.SetDefault("session.flush_queue", 4)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}
	if c.Server.MaxUploadBytes < 1 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Session.MaxBufferBytes < 0 || c.Session.KeepBytes < 0 {
		return fmt.Errorf("session sizes must not be negative")
	}
	if c.Session.MaxBufferBytes > 0 && c.Session.KeepBytes >= c.Session.MaxBufferBytes {
		return fmt.Errorf("session.keep_bytes must be smaller than session.max_buffer_bytes")
	}
	if c.Session.FlushQueue < 1 {
		return fmt.Errorf("session.flush_queue must be at least 1")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
