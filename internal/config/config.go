// Package config handles application configuration
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// Config represents the application configuration
type Config struct {
	Warpcast     WarpcastConfig   `yaml:"warpcast"`
	OpenRank     OpenRankConfig   `yaml:"openrank"`
	Cache        CacheConfig      `yaml:"cache"`
	Retry        RetryConfig      `yaml:"retry"`
	Pagination   PaginationConfig `yaml:"pagination"`
	Membership   MembershipConfig `yaml:"membership"`
	Analytics    AnalyticsConfig  `yaml:"analytics"`
	Server       ServerConfig     `yaml:"server"`
	Logging      LoggingConfig    `yaml:"logging"`
	OutputFormat string           `yaml:"output_format"`
}

// WarpcastConfig holds Warpcast API settings
type WarpcastConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"` // Per-request timeout (e.g., "30s")
}

// OpenRankConfig holds OpenRank API settings
type OpenRankConfig struct {
	BaseURL string `yaml:"base_url"`
}

// CacheConfig holds channel cache settings
type CacheConfig struct {
	TTL     string      `yaml:"ttl"`     // e.g., "5m", "30s"
	Backend string      `yaml:"backend"` // memory or redis
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds redis connection settings for the shared cache
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RetryConfig holds the rate-limit retry policy
type RetryConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	BaseDelay   string `yaml:"base_delay"`
}

// PaginationConfig bounds cursor pagination
type PaginationConfig struct {
	MaxPages int `yaml:"max_pages"`
}

// MembershipConfig holds membership fan-out settings
type MembershipConfig struct {
	Concurrency      *int   `yaml:"concurrency"` // 0 means unbounded
	BreakerThreshold int    `yaml:"breaker_threshold"`
	BreakerCooldown  string `yaml:"breaker_cooldown"`
}

// AnalyticsConfig holds analytics settings
type AnalyticsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// WatchConfig reloads cache.ttl and logging.verbose when this file changes
	WatchConfig bool `yaml:"watch_config"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			TTL:     "5m",
			Backend: "memory",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   "1s",
		},
		Analytics: AnalyticsConfig{
			Enabled: true,
		},
		OutputFormat: "text",
	}
}

// Load loads configuration from the specified path, or the default XDG path if empty.
// If the config file doesn't exist, it creates one from the sample.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML bytes and applies defaults for unset fields
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}

	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "text"
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Analytics.Path != "" {
		cfg.Analytics.Path = ExpandPath(cfg.Analytics.Path)
	}

	return cfg, nil
}

// save writes the sample configuration to the specified path
func (c *Config) save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The sample carries all documentation and comments
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.OutputFormat != "text" && c.OutputFormat != "json" {
		return fmt.Errorf("invalid output_format: %q (must be 'text' or 'json')", c.OutputFormat)
	}

	switch c.Cache.Backend {
	case "", "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required when cache.backend is 'redis'")
		}
	default:
		return fmt.Errorf("unknown cache.backend: %q (must be 'memory' or 'redis')", c.Cache.Backend)
	}

	durations := map[string]string{
		"cache.ttl":                   c.Cache.TTL,
		"retry.base_delay":            c.Retry.BaseDelay,
		"warpcast.timeout":            c.Warpcast.Timeout,
		"membership.breaker_cooldown": c.Membership.BreakerCooldown,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %q", key, value)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", key, value)
		}
	}

	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must not be negative, got %d", c.Retry.MaxAttempts)
	}
	if c.Pagination.MaxPages < 0 {
		return fmt.Errorf("pagination.max_pages must not be negative, got %d", c.Pagination.MaxPages)
	}
	if c.Membership.Concurrency != nil && *c.Membership.Concurrency < 0 {
		return fmt.Errorf("membership.concurrency must not be negative, got %d", *c.Membership.Concurrency)
	}

	return nil
}

// ApplyFlags applies CLI flag overrides to the configuration
func (c *Config) ApplyFlags(verbose bool, outputFormat string) {
	if verbose {
		c.Logging.Verbose = true
	}
	if outputFormat != "" {
		c.OutputFormat = outputFormat
	}
}

// GetCacheTTLDuration returns the cache TTL as a time.Duration.
// Returns 5 minutes as default if not configured or if parsing fails.
func (c *Config) GetCacheTTLDuration() time.Duration {
	return parseDurationOr(c.Cache.TTL, 5*time.Minute)
}

// IsRedisCache returns true if the cache is shared through redis
func (c *Config) IsRedisCache() bool {
	return c.Cache.Backend == "redis"
}

// GetMaxAttempts returns the retry attempt ceiling.
// Returns 3 if not configured.
func (c *Config) GetMaxAttempts() int {
	if c.Retry.MaxAttempts <= 0 {
		return 3
	}
	return c.Retry.MaxAttempts
}

// GetBaseDelay returns the linear backoff unit.
// Returns 1 second if not configured or if parsing fails.
func (c *Config) GetBaseDelay() time.Duration {
	return parseDurationOr(c.Retry.BaseDelay, time.Second)
}

// GetWarpcastTimeout returns the per-request timeout.
// Returns 30 seconds if not configured or if parsing fails.
func (c *Config) GetWarpcastTimeout() time.Duration {
	return parseDurationOr(c.Warpcast.Timeout, 30*time.Second)
}

// GetMaxPages returns the pagination page ceiling.
// Returns 100 if not configured.
func (c *Config) GetMaxPages() int {
	if c.Pagination.MaxPages <= 0 {
		return 100
	}
	return c.Pagination.MaxPages
}

// GetMembershipConcurrency returns the fan-out bound.
// Returns 8 if not configured; an explicit 0 means unbounded.
func (c *Config) GetMembershipConcurrency() int {
	if c.Membership.Concurrency == nil {
		return 8
	}
	return *c.Membership.Concurrency
}

// GetBreakerThreshold returns the consecutive failures that open the membership breaker.
// Returns 5 if not configured.
func (c *Config) GetBreakerThreshold() int {
	if c.Membership.BreakerThreshold <= 0 {
		return 5
	}
	return c.Membership.BreakerThreshold
}

// GetBreakerCooldown returns how long the membership breaker stays open.
// Returns 30 seconds if not configured or if parsing fails.
func (c *Config) GetBreakerCooldown() time.Duration {
	return parseDurationOr(c.Membership.BreakerCooldown, 30*time.Second)
}

// IsAnalyticsEnabled returns true if analytics is enabled in config
func (c *Config) IsAnalyticsEnabled() bool {
	return c.Analytics.Enabled
}

// GetAnalyticsPath returns the analytics database path.
// Defaults to analytics.db in the XDG data directory.
func (c *Config) GetAnalyticsPath() string {
	if c.Analytics.Path == "" {
		return filepath.Join(GetDataDir(), "analytics.db")
	}
	return c.Analytics.Path
}

// GetAnalyticsRetentionDays returns the analytics retention period in days.
// Returns 365 (default) if not configured.
func (c *Config) GetAnalyticsRetentionDays() int {
	if c.Analytics.RetentionDays <= 0 {
		return 365
	}
	return c.Analytics.RetentionDays
}

// GetServerAddr returns the listen address for serve.
// Returns ":8080" if not configured.
func (c *Config) GetServerAddr() string {
	if c.Server.Addr == "" {
		return ":8080"
	}
	return c.Server.Addr
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// getXDGDir returns a directory path following XDG spec.
// envVar is the XDG environment variable (e.g., "XDG_CONFIG_HOME").
// fallbackPath is the relative path from home (e.g., ".config").
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, "fidchannels")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallbackPath, "fidchannels")
	}
	return filepath.Join(home, fallbackPath, "fidchannels")
}

// GetConfigDir returns the configuration directory following XDG spec
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the data directory following XDG spec
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}
