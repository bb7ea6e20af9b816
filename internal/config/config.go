// Package config loads the application configuration from keel.yaml and
// KEEL_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/keel-api/keel/internal/query"
)

// Config is the full application configuration
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// APIConfig holds the JSON:API behavior knobs
type APIConfig struct {
	// PageSize is the default page size when page[size] is omitted
	PageSize int `mapstructure:"page_size"`

	// MaxPageSize is the upper bound on page[size]
	MaxPageSize int `mapstructure:"max_page_size"`

	// MaxIncludeDepth caps relationship traversal depth in include paths
	MaxIncludeDepth int `mapstructure:"max_include_depth"`

	// AllowDisablePagination accepts page[size]=0 to return everything
	AllowDisablePagination bool `mapstructure:"allow_disable_pagination"`

	// CatchExceptions renders unexpected errors as JSON:API error
	// documents instead of letting them propagate
	CatchExceptions bool `mapstructure:"catch_exceptions"`

	// AtomicPath is the mount point of the atomic operations endpoint
	AtomicPath string `mapstructure:"atomic_path"`

	// ResourceFile is the YAML resource declaration file loaded at startup
	ResourceFile string `mapstructure:"resource_file"`
}

// ServerConfig holds the HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Address returns the listen address
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds the connection settings
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CacheConfig holds the optional count cache settings. An empty RedisAddr
// selects the in-memory cache; Enabled false disables caching entirely.
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	RedisAddr string        `mapstructure:"redis_addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// LoggingConfig selects the zap configuration
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level"`
	// Development switches to the human-readable development encoder
	Development bool `mapstructure:"development"`
}

// Load reads keel.yaml (searched in the working directory) plus KEEL_*
// environment overrides
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom reads the configuration from the given directory
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("api.page_size", 25)
	v.SetDefault("api.max_page_size", 100)
	v.SetDefault("api.max_include_depth", 3)
	v.SetDefault("api.allow_disable_pagination", false)
	v.SetDefault("api.catch_exceptions", true)
	v.SetDefault("api.atomic_path", "/operations")
	v.SetDefault("api.resource_file", "resources.yaml")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", 30*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetConfigName("keel")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)

	v.SetEnvPrefix("KEEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Limits returns the subset the query parser validates against
func (c *Config) Limits() query.Limits {
	return query.Limits{
		PageSize:               c.API.PageSize,
		MaxPageSize:            c.API.MaxPageSize,
		MaxIncludeDepth:        c.API.MaxIncludeDepth,
		AllowDisablePagination: c.API.AllowDisablePagination,
	}
}

func validateConfig(c *Config) error {
	if c.API.PageSize < 1 {
		return fmt.Errorf("api.page_size must be at least 1, got %d", c.API.PageSize)
	}
	if c.API.MaxPageSize < c.API.PageSize {
		return fmt.Errorf("api.max_page_size (%d) must not be below api.page_size (%d)",
			c.API.MaxPageSize, c.API.PageSize)
	}
	if c.API.MaxIncludeDepth < 1 {
		return fmt.Errorf("api.max_include_depth must be at least 1, got %d", c.API.MaxIncludeDepth)
	}
	if !strings.HasPrefix(c.API.AtomicPath, "/") {
		return fmt.Errorf("api.atomic_path must start with /, got %q", c.API.AtomicPath)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}
