// The application's root configuration.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
)

// Config is the root configuration structure for the entire application.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger"`
	Server  ServerConfig  `mapstructure:"server"`
	Browser BrowserConfig `mapstructure:"browser"`
	Network NetworkConfig `mapstructure:"network"`
	Archive ArchiveConfig `mapstructure:"archive"`
}

// ColorConfig defines the color settings for different log levels.
// These are used for console output to make logs more readable.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" json:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" json:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" json:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" json:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" json:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" json:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" json:"fatal" yaml:"fatal"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" json:"level" yaml:"level"`
	Format      string      `mapstructure:"format" json:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" json:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" json:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" json:"colors" yaml:"colors"`
}

// ServerConfig identifies the MCP server to connecting clients.
type ServerConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// ProxyConfig holds the optional upstream proxy for browser traffic.
type ProxyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// BrowserConfig holds settings for the headless browser.
type BrowserConfig struct {
	Headless        bool        `mapstructure:"headless"`
	IgnoreTLSErrors bool        `mapstructure:"ignore_tls_errors"`
	ExecPath        string      `mapstructure:"exec_path"`
	Proxy           ProxyConfig `mapstructure:"proxy"`
}

// NetworkConfig holds settings for navigation and traffic capture.
type NetworkConfig struct {
	NavigationTimeout     time.Duration `mapstructure:"navigation_timeout"`
	DefaultWaitTime       time.Duration `mapstructure:"default_wait_time"`
	MaxWaitTime           time.Duration `mapstructure:"max_wait_time"`
	CaptureResponseBodies bool          `mapstructure:"capture_response_bodies"`
	MaxBodySize           int           `mapstructure:"max_body_size"`
	MaxCapturedRequests   int           `mapstructure:"max_captured_requests"`
}

// ArchiveConfig holds settings for the optional PostgreSQL capture archive.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// SetDefaults registers defaults so the server can run with no config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "specter-mcp")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	v.SetDefault("server.name", "specter-mcp")
	v.SetDefault("server.version", "0.1.0")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)

	v.SetDefault("network.navigation_timeout", 30*time.Second)
	v.SetDefault("network.default_wait_time", 3*time.Second)
	v.SetDefault("network.max_wait_time", 30*time.Second)
	v.SetDefault("network.capture_response_bodies", true)
	v.SetDefault("network.max_body_size", 1<<20)
	v.SetDefault("network.max_captured_requests", 1000)

	v.SetDefault("archive.enabled", false)
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	switch c.Logger.Level {
	case "debug", "info", "warn", "error", "dpanic", "panic", "fatal", "":
	default:
		return fmt.Errorf("invalid logger level: %q", c.Logger.Level)
	}
	if c.Network.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be positive, got %s", c.Network.NavigationTimeout)
	}
	if c.Network.DefaultWaitTime < 0 {
		return fmt.Errorf("network.default_wait_time must not be negative, got %s", c.Network.DefaultWaitTime)
	}
	if c.Network.MaxWaitTime < c.Network.DefaultWaitTime {
		return fmt.Errorf("network.max_wait_time (%s) must be at least the default wait time (%s)",
			c.Network.MaxWaitTime, c.Network.DefaultWaitTime)
	}
	if c.Network.MaxCapturedRequests <= 0 {
		return fmt.Errorf("network.max_captured_requests must be positive, got %d", c.Network.MaxCapturedRequests)
	}
	if c.Archive.Enabled && c.Archive.URL == "" {
		return fmt.Errorf("archive.enabled requires archive.url")
	}
	if c.Browser.Proxy.Enabled && c.Browser.Proxy.Address == "" {
		return fmt.Errorf("browser.proxy.enabled requires browser.proxy.address")
	}
	return nil
}

// Load initializes the configuration singleton from Viper.
func Load(v *viper.Viper) error {
	var loadErr error
	once.Do(func() {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			loadErr = fmt.Errorf("error unmarshaling config: %w", err)
			return
		}
		instance = &cfg
	})
	return loadErr
}

// Set replaces the configuration instance directly. Intended for tests and
// for the root command after validation.
func Set(cfg *Config) {
	instance = cfg
}

// Get returns the loaded configuration instance.
func Get() *Config {
	if instance == nil {
		panic("Configuration not initialized. Call config.Load() in the root command.")
	}
	return instance
}
