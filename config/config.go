package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds front end configuration
type ServerConfig struct {
	Transport      string `mapstructure:"transport"`
	HTTPPort       int    `mapstructure:"http_port"`
	OpsAddr        string `mapstructure:"ops_addr"`
	MaxOutputChars int    `mapstructure:"max_output_chars"`
}

// SandboxConfig holds sandbox configuration.
// Network isolation and auto-remove are not configurable.
type SandboxConfig struct {
	Backend           string `mapstructure:"backend"`
	Host              string `mapstructure:"host"`
	Image             string `mapstructure:"image"`
	RunTimeoutSec     int    `mapstructure:"run_timeout_sec"`
	CleanupTimeoutSec int    `mapstructure:"cleanup_timeout_sec"`
	LanguagesFile     string `mapstructure:"languages_file"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// Supported sandbox backends
const (
	BackendDocker = "docker"
	BackendPodman = "podman"
)

var validLevels = map[string]bool{
	"debug":  true,
	"info":   true,
	"warn":   true,
	"error":  true,
	"dpanic": true,
	"panic":  true,
	"fatal":  true,
}

// EnvPrefix prefixes environment overrides, e.g. RUNBOX_SANDBOX_IMAGE
const EnvPrefix = "RUNBOX"

// New loads and validates the application configuration from config.yaml
// in the working directory or ./config
func New() (*Config, error) {
	return Load("")
}

// Load reads configuration from configFile, or searches the default
// locations when configFile is empty
func Load(configFile string) (*Config, error) {
	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.ops_addr", ":9090")
	v.SetDefault("server.max_output_chars", 1900)

	v.SetDefault("sandbox.backend", BackendDocker)
	v.SetDefault("sandbox.host", "")
	v.SetDefault("sandbox.image", "ds-code-user-code")
	v.SetDefault("sandbox.run_timeout_sec", 30)
	v.SetDefault("sandbox.cleanup_timeout_sec", 10)
	v.SetDefault("sandbox.languages_file", "")

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.Transport == "http" && (c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535) {
		return fmt.Errorf("invalid server.http_port: %d", c.Server.HTTPPort)
	}

	if c.Server.MaxOutputChars <= 0 {
		return fmt.Errorf("server.max_output_chars must be positive, got: %d", c.Server.MaxOutputChars)
	}

	if c.Sandbox.Backend != BackendDocker && c.Sandbox.Backend != BackendPodman {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if c.Sandbox.Image == "" {
		return errors.New("sandbox.image must not be empty")
	}

	if c.Sandbox.RunTimeoutSec <= 0 {
		return fmt.Errorf("sandbox.run_timeout_sec must be positive, got: %d", c.Sandbox.RunTimeoutSec)
	}

	if c.Sandbox.CleanupTimeoutSec <= 0 {
		return fmt.Errorf("sandbox.cleanup_timeout_sec must be positive, got: %d", c.Sandbox.CleanupTimeoutSec)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

// GetRunTimeout returns the per-request deadline front ends apply
func (c *Config) GetRunTimeout() time.Duration {
	return time.Duration(c.Sandbox.RunTimeoutSec) * time.Second
}

// GetCleanupTimeout returns the bound on the explicit sandbox delete
func (c *Config) GetCleanupTimeout() time.Duration {
	return time.Duration(c.Sandbox.CleanupTimeoutSec) * time.Second
}
