// Package config provides configuration management for Minewatch.
//
// Config file locations (priority order):
//  1. $MINEWATCH_CONFIG
//  2. ./minewatch.yaml
//  3. $XDG_CONFIG_HOME/minewatch/config.yaml
//  4. ~/.config/minewatch/config.yaml
//  5. /etc/minewatch/config.yaml
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Polling   PollingConfig   `yaml:"polling"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	Retention RetentionConfig `yaml:"retention"`
}

// ServerConfig describes the HTTP listener
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// DatabaseConfig describes where telemetry is stored
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PollingConfig sets the two loop cadences
type PollingConfig struct {
	PoolInterval   Duration `yaml:"pool_interval"`
	DeviceInterval Duration `yaml:"device_interval"`
}

// ScannerConfig tunes network discovery
type ScannerConfig struct {
	Network      string   `yaml:"network"` // CIDR; empty = autodetect local /24
	ProbeTimeout Duration `yaml:"probe_timeout"`
	BatchSize    int      `yaml:"batch_size"`
	Nmap         *bool    `yaml:"nmap,omitempty"` // nil = use nmap when installed
}

// RetentionConfig controls history pruning
type RetentionConfig struct {
	Days int `yaml:"days"` // 0 = keep forever
}

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./minewatch.db"
	}
	if c.Polling.PoolInterval <= 0 {
		c.Polling.PoolInterval = Duration(60 * time.Second)
	}
	if c.Polling.DeviceInterval <= 0 {
		c.Polling.DeviceInterval = Duration(30 * time.Second)
	}
	if c.Scanner.ProbeTimeout <= 0 {
		c.Scanner.ProbeTimeout = Duration(time.Second)
	}
	if c.Scanner.BatchSize <= 0 {
		c.Scanner.BatchSize = 20
	}
}

// NmapEnabled reports whether discovery may shell out to nmap.
func (c *Config) NmapEnabled() bool {
	return c.Scanner.Nmap == nil || *c.Scanner.Nmap
}

// Duration wraps time.Duration for human-readable YAML ("30s", "2m")
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
