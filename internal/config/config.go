package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Config is the service configuration loaded from airsane.yaml, AIRSANE_*
// environment variables and command-line flags.
type Config struct {
	Device     string       `mapstructure:"device" yaml:"device" json:"device"`
	Name       string       `mapstructure:"name" yaml:"name" json:"name"`
	LogLevel   string       `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat  string       `mapstructure:"log_format" yaml:"log_format" json:"log_format"`
	ListenPort int          `mapstructure:"listen_port" yaml:"listen_port" json:"listen_port"`
	DataDir    string       `mapstructure:"data_dir" yaml:"data_dir" json:"data_dir"`
	LocalOnly  bool         `mapstructure:"local_only" yaml:"local_only" json:"local_only"`
	Button     ButtonConfig `mapstructure:"button" yaml:"button" json:"button"`
}

// ButtonConfig controls polling of the scanner's hardware button.
type ButtonConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Option   string        `mapstructure:"option" yaml:"option" json:"option"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		LogLevel:   "info",
		LogFormat:  "text",
		ListenPort: 8080,
		LocalOnly:  true,
		Button: ButtonConfig{
			Option:   "scan",
			Interval: 500 * time.Millisecond,
		},
	}
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if !slices.Contains(validLogFormats, c.LogFormat) {
		return fmt.Errorf("invalid log format: %s (must be one of: %s)", c.LogFormat, strings.Join(validLogFormats, ", "))
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid listen port: %d (must be between 1 and 65535)", c.ListenPort)
	}
	if c.Button.Enabled && c.Button.Interval <= 0 {
		return fmt.Errorf("invalid button interval: %s", c.Button.Interval)
	}
	return nil
}
