// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Row source kinds.
const (
	RowSourceBundles = "bundles"
	RowSourceSQL     = "sql"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Network   NetworkConfig   `mapstructure:"network" yaml:"network"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline" yaml:"pipeline"`
	RowSource RowSourceConfig `mapstructure:"rowsource" yaml:"rowsource"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

// ServerConfig configures the HTTP entry points.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ListenAddr joins host and port.
func (s ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BrowserConfig holds settings for the shared headless browser process.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	ExecutablePath  string   `mapstructure:"executable_path" yaml:"executable_path"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string `mapstructure:"args" yaml:"args"`
	UserAgent       string   `mapstructure:"user_agent" yaml:"user_agent"`
}

// NetworkConfig tunes page navigation and outbound HTTP.
type NetworkConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// ViewportConfig is a device-metrics override.
type ViewportConfig struct {
	Width             int64   `mapstructure:"width" yaml:"width"`
	Height            int64   `mapstructure:"height" yaml:"height"`
	DeviceScaleFactor float64 `mapstructure:"device_scale_factor" yaml:"device_scale_factor"`
	Mobile            bool    `mapstructure:"mobile" yaml:"mobile"`
}

// PipelineConfig drives batch extraction.
type PipelineConfig struct {
	BatchQuota         int            `mapstructure:"batch_quota" yaml:"batch_quota"`
	TargetSelectors    []string       `mapstructure:"target_selectors" yaml:"target_selectors"`
	CaptureConcurrency int            `mapstructure:"capture_concurrency" yaml:"capture_concurrency"`
	ClipPadding        float64        `mapstructure:"clip_padding" yaml:"clip_padding"`
	JPEGQuality        int64          `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
	MobileViewport     ViewportConfig `mapstructure:"mobile_viewport" yaml:"mobile_viewport"`
}

// BundlesConfig configures the RUM bundles HTTP row source.
type BundlesConfig struct {
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	DomainKey   string  `mapstructure:"domainkey" yaml:"-"`
	RateLimit   float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst       int     `mapstructure:"burst" yaml:"burst"`
	Concurrency int     `mapstructure:"concurrency" yaml:"concurrency"`
}

// SQLSourceConfig configures the named-parameter SQL row source.
type SQLSourceConfig struct {
	URL       string `mapstructure:"url" yaml:"-"`
	QueryName string `mapstructure:"query_name" yaml:"query_name"`
}

// RowSourceConfig selects and configures where session rows come from.
type RowSourceConfig struct {
	Kind    string          `mapstructure:"kind" yaml:"kind"`
	Bundles BundlesConfig   `mapstructure:"bundles" yaml:"bundles"`
	SQL     SQLSourceConfig `mapstructure:"sql" yaml:"sql"`
}

// StoreConfig selects the session snapshot backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	URL     string `mapstructure:"url" yaml:"-"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "bbox-cli")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Server --
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_body_bytes", 20<<20)
	v.SetDefault("server.shutdown_timeout", "10s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.navigation_timeout", "128s")

	// -- Pipeline --
	v.SetDefault("pipeline.batch_quota", 5)
	v.SetDefault("pipeline.target_selectors", []string{"form", "button", ".form", ".button"})
	v.SetDefault("pipeline.capture_concurrency", 5)
	v.SetDefault("pipeline.clip_padding", 20)
	v.SetDefault("pipeline.jpeg_quality", 80)
	v.SetDefault("pipeline.mobile_viewport.width", 375)
	v.SetDefault("pipeline.mobile_viewport.height", 812)
	v.SetDefault("pipeline.mobile_viewport.device_scale_factor", 1.0)
	v.SetDefault("pipeline.mobile_viewport.mobile", true)

	// -- Row Source --
	v.SetDefault("rowsource.kind", RowSourceBundles)
	v.SetDefault("rowsource.bundles.base_url", "https://bundles.aem.page/bundles")
	v.SetDefault("rowsource.bundles.rate_limit", 10.0)
	v.SetDefault("rowsource.bundles.burst", 5)
	v.SetDefault("rowsource.bundles.concurrency", 4)
	v.SetDefault("rowsource.sql.query_name", "rows_by_checkpoint")

	// -- Store --
	v.SetDefault("store.backend", StoreMemory)
	v.SetDefault("store.path", "~/.bbox-cli/sessions.db")
}

// BindEnv wires the environment variables the service has always honored
// alongside the prefixed ones.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix("BBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "BBOX_SERVER_PORT", "PORT")
	_ = v.BindEnv("browser.executable_path", "BBOX_BROWSER_EXECUTABLE_PATH", "CHROME_BIN")
	_ = v.BindEnv("rowsource.bundles.domainkey", "BBOX_ROWSOURCE_BUNDLES_DOMAINKEY", "DOMAINKEY")
	_ = v.BindEnv("rowsource.sql.url", "BBOX_ROWSOURCE_SQL_URL")
	_ = v.BindEnv("store.url", "BBOX_STORE_URL", "DATABASE_URL")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Store.Path != "" {
		expanded, err := homedir.Expand(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to expand store.path: %w", err)
		}
		cfg.Store.Path = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Network.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be a positive duration")
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline configuration invalid: %w", err)
	}
	if err := c.RowSource.Validate(); err != nil {
		return fmt.Errorf("rowsource configuration invalid: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the pipeline settings.
func (p *PipelineConfig) Validate() error {
	if p.BatchQuota <= 0 {
		return fmt.Errorf("batch_quota must be a positive integer")
	}
	if p.CaptureConcurrency <= 0 {
		return fmt.Errorf("capture_concurrency must be a positive integer")
	}
	if p.ClipPadding < 0 {
		return fmt.Errorf("clip_padding must not be negative")
	}
	if len(p.TargetSelectors) == 0 {
		return fmt.Errorf("at least one target selector is required")
	}
	if p.MobileViewport.Width <= 0 || p.MobileViewport.Height <= 0 {
		return fmt.Errorf("mobile_viewport dimensions must be positive")
	}
	return nil
}

// Validate checks the row source settings.
func (r *RowSourceConfig) Validate() error {
	switch r.Kind {
	case RowSourceBundles:
		if r.Bundles.BaseURL == "" {
			return fmt.Errorf("bundles.base_url is required")
		}
		if r.Bundles.RateLimit <= 0 {
			return fmt.Errorf("bundles.rate_limit must be positive")
		}
		if r.Bundles.Concurrency <= 0 {
			return fmt.Errorf("bundles.concurrency must be a positive integer")
		}
	case RowSourceSQL:
		if r.SQL.URL == "" {
			return fmt.Errorf("sql.url is required when kind is %q", RowSourceSQL)
		}
	default:
		return fmt.Errorf("unknown kind %q", r.Kind)
	}
	return nil
}

// Validate checks the store settings.
func (s *StoreConfig) Validate() error {
	switch s.Backend {
	case StoreMemory:
	case StorePostgres:
		if s.URL == "" {
			return fmt.Errorf("url is required for the postgres backend")
		}
	case StoreSQLite:
		if s.Path == "" {
			return fmt.Errorf("path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}
	return nil
}
