// Package config loads photofeed configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/photofeed/pkg/client"
	"github.com/Sternrassler/photofeed/pkg/feed"
	"github.com/Sternrassler/photofeed/pkg/logging"
	"github.com/Sternrassler/photofeed/pkg/pagination"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PHOTOFEED_API_ACCESS_KEY.
const EnvPrefix = "PHOTOFEED"

// Config holds all application configuration
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// APIConfig holds photo API access configuration
type APIConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	AccessKey   string        `mapstructure:"access_key"`
	Version     string        `mapstructure:"version"` // sent as Accept-Version
	UserAgent   string        `mapstructure:"user_agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"` // 1 disables retries
}

// FeedConfig holds feed paging configuration
type FeedConfig struct {
	Resource             string        `mapstructure:"resource"`
	OrderBy              string        `mapstructure:"order_by"`
	PageSize             int           `mapstructure:"page_size"`
	LookAheadMargin      int           `mapstructure:"look_ahead_margin"`
	InitialCountEstimate int           `mapstructure:"initial_count_estimate"`
	PhotoSize            string        `mapstructure:"photo_size"`
	MaxConcurrency       int           `mapstructure:"max_concurrency"`
	FetchTimeout         time.Duration `mapstructure:"fetch_timeout"`
	CountFromStats       bool          `mapstructure:"count_from_stats"`
}

// RedisConfig holds the optional shared cache configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig holds the in-memory response cache configuration
type CacheConfig struct {
	MemoryEntries int `mapstructure:"memory_entries"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// MetricsConfig holds the metrics endpoint configuration
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the endpoint
}

// Default returns the default configuration
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:     "https://api.unsplash.com",
			Version:     "v1",
			UserAgent:   "photofeed/1.0",
			Timeout:     15 * time.Second,
			MaxAttempts: 1,
		},
		Feed: FeedConfig{
			Resource:             client.PhotosPath,
			OrderBy:              string(client.SortLatest),
			PageSize:             25,
			LookAheadMargin:      10,
			InitialCountEstimate: 200,
			PhotoSize:            string(client.SizeSmall),
			MaxConcurrency:       4,
			FetchTimeout:         15 * time.Second,
			CountFromStats:       true,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Cache: CacheConfig{
			MemoryEntries: 256,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
	}
}

// setDefaults registers every key so environment overrides apply to it.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.access_key", cfg.API.AccessKey)
	v.SetDefault("api.version", cfg.API.Version)
	v.SetDefault("api.user_agent", cfg.API.UserAgent)
	v.SetDefault("api.timeout", cfg.API.Timeout)
	v.SetDefault("api.max_attempts", cfg.API.MaxAttempts)

	v.SetDefault("feed.resource", cfg.Feed.Resource)
	v.SetDefault("feed.order_by", cfg.Feed.OrderBy)
	v.SetDefault("feed.page_size", cfg.Feed.PageSize)
	v.SetDefault("feed.look_ahead_margin", cfg.Feed.LookAheadMargin)
	v.SetDefault("feed.initial_count_estimate", cfg.Feed.InitialCountEstimate)
	v.SetDefault("feed.photo_size", cfg.Feed.PhotoSize)
	v.SetDefault("feed.max_concurrency", cfg.Feed.MaxConcurrency)
	v.SetDefault("feed.fetch_timeout", cfg.Feed.FetchTimeout)
	v.SetDefault("feed.count_from_stats", cfg.Feed.CountFromStats)

	v.SetDefault("redis.enabled", cfg.Redis.Enabled)
	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)

	v.SetDefault("cache.memory_entries", cfg.Cache.MemoryEntries)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)

	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
}

// searchPaths returns the config files tried when no path is given.
func searchPaths() []string {
	paths := []string{"photofeed.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "photofeed", "config.yaml"))
	}
	return paths
}

// Load reads configuration from path, or from the first existing default
// location when path is empty, then applies environment overrides. A missing
// default file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		for _, candidate := range searchPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error

	if c.API.AccessKey == "" {
		errs = append(errs, fmt.Errorf("api.access_key: %w", client.ErrMissingAccessKey))
	}
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.API.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("api.max_attempts must be >= 1 (got %d)", c.API.MaxAttempts))
	}
	if c.Feed.Resource == "" {
		errs = append(errs, errors.New("feed.resource is required"))
	}
	if c.Feed.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("feed.page_size must be positive (got %d)", c.Feed.PageSize))
	}
	if err := c.PaginationConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("feed: %w", err))
	}
	if !client.Sort(c.Feed.OrderBy).Valid() {
		errs = append(errs, fmt.Errorf("feed.order_by: unknown order %q", c.Feed.OrderBy))
	}
	if !client.Size(c.Feed.PhotoSize).Valid() {
		errs = append(errs, fmt.Errorf("feed.photo_size: unknown size %q", c.Feed.PhotoSize))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	return errors.Join(errs...)
}

// ClientConfig returns the photo API client configuration. The Redis client
// is wired by the caller.
func (c Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.API.AccessKey)
	cfg.BaseURL = c.API.BaseURL
	cfg.AcceptVersion = c.API.Version
	cfg.UserAgent = c.API.UserAgent
	cfg.Timeout = c.API.Timeout
	cfg.MemoryCacheSize = c.Cache.MemoryEntries
	cfg.Retry.MaxAttempts = c.API.MaxAttempts
	cfg.DefaultOrder = client.Sort(c.Feed.OrderBy)
	return cfg
}

// PaginationConfig returns the coordinator configuration.
func (c Config) PaginationConfig() pagination.Config {
	return pagination.Config{
		PageSize:             c.Feed.PageSize,
		LookAheadMargin:      c.Feed.LookAheadMargin,
		InitialCountEstimate: c.Feed.InitialCountEstimate,
		MaxConcurrency:       c.Feed.MaxConcurrency,
		Timeout:              c.Feed.FetchTimeout,
	}
}

// SessionConfig returns the feed session configuration.
func (c Config) SessionConfig() feed.Config {
	return feed.Config{
		Resource:   c.Feed.Resource,
		Pagination: c.PaginationConfig(),
	}
}

// LoggerConfig returns the logger configuration.
func (c Config) LoggerConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Logging.Level)
	cfg.Pretty = c.Logging.Pretty
	return cfg
}
