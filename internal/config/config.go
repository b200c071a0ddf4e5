package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// DeviceAddress is the puck's BLE address (a MAC on Linux, a
	// CoreBluetooth UUID on macOS). Empty means scan for the first puck.
	DeviceAddress string `yaml:"device_address"`

	ScanTimeoutSeconds  int `yaml:"scan_timeout_seconds"`
	HandshakeTimeoutMS  int `yaml:"handshake_timeout_ms"` // per handshake step
	ReconnectMaxSeconds int `yaml:"reconnect_max_seconds"`

	LogLevel string `yaml:"log_level"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "z407ctl")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		ScanTimeoutSeconds:  10,
		HandshakeTimeoutMS:  2000,
		ReconnectMaxSeconds: 30,
		LogLevel:            "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.ScanTimeoutSeconds <= 0 {
		return fmt.Errorf("scan_timeout_seconds must be > 0")
	}
	if c.HandshakeTimeoutMS <= 0 {
		return fmt.Errorf("handshake_timeout_ms must be > 0")
	}
	if c.ReconnectMaxSeconds <= 0 {
		return fmt.Errorf("reconnect_max_seconds must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ScanTimeout returns the scan window as a duration.
func (c *Config) ScanTimeout() time.Duration {
	return time.Duration(c.ScanTimeoutSeconds) * time.Second
}

// HandshakeTimeout returns the per-step handshake window as a duration.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutMS) * time.Millisecond
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
