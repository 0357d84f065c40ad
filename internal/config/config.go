// Package config loads tasksync settings from a config file and TASKSYNC_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// TASKSYNC_SERVER_BASE_URL.
const EnvPrefix = "TASKSYNC"

// Config represents the full tasksync configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server" toml:"server"`
	Store     StoreConfig     `mapstructure:"store" toml:"store"`
	Monitor   MonitorConfig   `mapstructure:"monitor" toml:"monitor"`
	Dashboard DashboardConfig `mapstructure:"dashboard" toml:"dashboard"`
	Log       LogConfig       `mapstructure:"log" toml:"log"`
}

// ServerConfig locates the remote task service
type ServerConfig struct {
	BaseURL    string `mapstructure:"base_url" toml:"base_url"`
	HealthPath string `mapstructure:"health_path" toml:"health_path"`
}

// StoreConfig locates the local SQLite state
type StoreConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// MonitorConfig configures connectivity detection
type MonitorConfig struct {
	// PollInterval is a Go duration string such as "5s"
	PollInterval string `mapstructure:"poll_interval" toml:"poll_interval"`

	// OfflineFile forces offline mode while it exists
	OfflineFile string `mapstructure:"offline_file" toml:"offline_file"`
}

// DashboardConfig configures the WebSocket dashboard
type DashboardConfig struct {
	Port int `mapstructure:"port" toml:"port"`
}

// LogConfig configures the rotating log file. An empty File logs to
// stderr only.
type LogConfig struct {
	File       string `mapstructure:"file" toml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days"`
}

// Dir returns the per-user tasksync directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tasksync"
	}
	return filepath.Join(home, ".tasksync")
}

// DefaultPath returns the config file looked up when no path is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.toml")
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	dir := Dir()
	return &Config{
		Server: ServerConfig{
			BaseURL:    "http://localhost:3000",
			HealthPath: "/health",
		},
		Store: StoreConfig{
			Path: filepath.Join(dir, "tasksync.db"),
		},
		Monitor: MonitorConfig{
			PollInterval: "5s",
			OfflineFile:  filepath.Join(dir, "offline"),
		},
		Dashboard: DashboardConfig{
			Port: 7777,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load builds the configuration from defaults, then the config file, then
// the environment. An empty path reads DefaultPath if it exists; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	defaults := DefaultConfig()

	v := viper.New()
	setDefaults(v, defaults)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		if _, err := os.Stat(DefaultPath()); err == nil {
			path = DefaultPath()
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.base_url", d.Server.BaseURL)
	v.SetDefault("server.health_path", d.Server.HealthPath)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("monitor.poll_interval", d.Monitor.PollInterval)
	v.SetDefault("monitor.offline_file", d.Monitor.OfflineFile)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}

// Validate checks values that would otherwise fail later at startup.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid server.base_url %q", c.Server.BaseURL)
	}
	if c.Store.Path == "" {
		return errors.New("store.path must not be empty")
	}
	if _, err := c.PollInterval(); err != nil {
		return err
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("invalid dashboard.port %d", c.Dashboard.Port)
	}
	return nil
}

// PollInterval parses Monitor.PollInterval.
func (c *Config) PollInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Monitor.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid monitor.poll_interval %q: %w", c.Monitor.PollInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("monitor.poll_interval must be positive (got %s)", d)
	}
	return d, nil
}

// WriteDefault writes the default configuration as TOML. An existing file
// is left alone and reported as an error.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString("# tasksync configuration\n# Every key can be overridden with TASKSYNC_<SECTION>_<KEY>.\n\n"); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(DefaultConfig()); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
