// Package config provides configuration management for the finance dashboard.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v3"

	"github.com/eddiefleurent/finance_dashboard/internal/cache"
	"github.com/eddiefleurent/finance_dashboard/internal/provider"
	"github.com/eddiefleurent/finance_dashboard/internal/strikes"
)

// Defaults applied when a field is unset.
const (
	defaultProviderName = "polygon"
	defaultCacheBackend = "redis"
	defaultRedisAddr    = "localhost:6379"
	defaultPort         = 8080
	defaultConcurrency  = 4
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
	defaultLogMaxSizeMB = 50
	defaultLogBackups   = 3
	defaultLogMaxAge    = 28
)

// Config represents the complete application configuration.
type Config struct {
	Provider  ProviderConfig  `yaml:"provider"`
	Cache     CacheConfig     `yaml:"cache"`
	Strikes   StrikesConfig   `yaml:"strikes"`
	Server    ServerConfig    `yaml:"server"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Logging   LoggingConfig   `yaml:"logging"`

	// Warnings collects recoverable problems (e.g. a strike range replaced by its default).
	Warnings []error `yaml:"-"`
}

// ProviderConfig defines market-data API settings.
type ProviderConfig struct {
	Name           string               `yaml:"name"` // polygon | mock
	APIKey         string               `yaml:"api_key"`
	BaseURL        string               `yaml:"base_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig enables the optional provider breaker.
type CircuitBreakerConfig struct {
	Enabled                         bool `yaml:"enabled"`
	provider.CircuitBreakerSettings `yaml:",inline"`
}

// CacheConfig selects and configures the cache backend.
type CacheConfig struct {
	Backend  string `yaml:"backend"` // redis | memory
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StrikesConfig holds strike-range filtering settings.
// Zero ranges mean "use the default".
type StrikesConfig struct {
	EnableFiltering *bool   `yaml:"enable_filtering"`
	ShortTermRange  float64 `yaml:"short_term_range"`
	MediumTermRange float64 `yaml:"medium_term_range"`
	LongTermRange   float64 `yaml:"long_term_range"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// DashboardConfig tunes the dashboard orchestrator.
type DashboardConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// LoggingConfig defines log level, format and optional rotating file output.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug | info | warn | error
	Format     string `yaml:"format"` // text | json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ValidationError describes a malformed configuration value.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s=%q: %s", e.Field, e.Value, e.Reason)
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads .env (if present), the YAML file at configPath, and environment
// overrides, then validates the result. A missing config file is not an error.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}

	var config Config
	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	switch {
	case err == nil:
		// Expand environment variables
		expanded := os.ExpandEnv(string(data))
		dec := yaml.NewDecoder(strings.NewReader(expanded))
		dec.KnownFields(true)
		// io.EOF means an empty document
		if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// defaults + environment only
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config.ApplyEnv(os.LookupEnv)

	// Validate config
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// ApplyEnv applies the documented environment overrides using lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("POLYGON_API_KEY"); ok && v != "" {
		c.Provider.APIKey = v
	}
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		c.Cache.Addr = v
	}
	if v, ok := lookup("REDIS_PASSWORD"); ok {
		c.Cache.Password = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v, ok := lookup("ENABLE_STRIKE_FILTERING"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.warn(&ValidationError{Field: "ENABLE_STRIKE_FILTERING", Value: v, Reason: "not a boolean; keeping previous value"})
		} else {
			c.Strikes.EnableFiltering = &b
		}
	}

	rangeVars := []struct {
		name string
		dst  *float64
	}{
		{"SHORT_TERM_STRIKE_RANGE", &c.Strikes.ShortTermRange},
		{"MEDIUM_TERM_STRIKE_RANGE", &c.Strikes.MediumTermRange},
		{"LONG_TERM_STRIKE_RANGE", &c.Strikes.LongTermRange},
	}
	for _, rv := range rangeVars {
		v, ok := lookup(rv.name)
		if !ok || v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			c.warn(&ValidationError{Field: rv.name, Value: v, Reason: "not a number; ignored"})
			continue
		}
		*rv.dst = f
	}
}

// Validate applies defaults and checks that all configuration values are valid.
// Out-of-range strike percentages are replaced by defaults and recorded in Warnings.
func (c *Config) Validate() error {
	c.applyDefaults()
	c.normalizeStrikeRanges()

	switch c.Provider.Name {
	case "polygon":
		if c.Provider.APIKey == "" {
			return fmt.Errorf("provider.api_key is required for the polygon provider")
		}
	case "mock":
	default:
		return fmt.Errorf("provider.name must be 'polygon' or 'mock'")
	}
	if c.Provider.Timeout < 0 {
		return fmt.Errorf("provider.timeout must be >= 0")
	}
	if cb := c.Provider.CircuitBreaker; cb.Enabled {
		if cb.FailureRatio <= 0 || cb.FailureRatio > 1 {
			return fmt.Errorf("provider.circuit_breaker.failure_ratio must be in (0,1]")
		}
	}

	switch c.Cache.Backend {
	case "redis":
		if c.Cache.Addr == "" {
			return fmt.Errorf("cache.addr is required for the redis backend")
		}
	case "memory":
	default:
		return fmt.Errorf("cache.backend must be 'redis' or 'memory'")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Dashboard.Concurrency <= 0 {
		return fmt.Errorf("dashboard.concurrency must be > 0")
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level invalid: %w", err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json'")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Provider.Name == "" {
		c.Provider.Name = defaultProviderName
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = provider.DefaultTimeout
	}
	if cb := &c.Provider.CircuitBreaker; cb.Enabled && cb.MaxRequests == 0 && cb.FailureRatio == 0 {
		cb.CircuitBreakerSettings = provider.DefaultCircuitBreakerSettings
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = defaultCacheBackend
	}
	if c.Cache.Backend == "redis" && c.Cache.Addr == "" {
		c.Cache.Addr = defaultRedisAddr
	}
	if c.Strikes.EnableFiltering == nil {
		enabled := true
		c.Strikes.EnableFiltering = &enabled
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Dashboard.Concurrency == 0 {
		c.Dashboard.Concurrency = defaultConcurrency
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = defaultLogBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = defaultLogMaxAge
	}
}

// normalizeStrikeRanges substitutes defaults for unset or out-of-range values.
func (c *Config) normalizeStrikeRanges() {
	fields := []struct {
		name string
		dst  *float64
		def  float64
	}{
		{"strikes.short_term_range", &c.Strikes.ShortTermRange, strikes.DefaultShortTermRange},
		{"strikes.medium_term_range", &c.Strikes.MediumTermRange, strikes.DefaultMediumTermRange},
		{"strikes.long_term_range", &c.Strikes.LongTermRange, strikes.DefaultLongTermRange},
	}
	for _, f := range fields {
		if *f.dst == 0 {
			*f.dst = f.def
			continue
		}
		if !strikes.ValidRange(*f.dst) {
			c.warn(&ValidationError{
				Field:  f.name,
				Value:  strconv.FormatFloat(*f.dst, 'f', -1, 64),
				Reason: fmt.Sprintf("must be within [%.2f, %.2f]; using default %.2f", strikes.MinRange, strikes.MaxRange, f.def),
			})
			*f.dst = f.def
		}
	}
}

func (c *Config) warn(err error) {
	c.Warnings = append(c.Warnings, err)
}

// LogWarnings writes each recorded warning at WARN level.
func (c *Config) LogWarnings(logger logrus.FieldLogger) {
	for _, w := range c.Warnings {
		logger.WithField("component", "config").Warn(w.Error())
	}
}

// StrikeFilteringEnabled reports the global strike-filtering toggle.
func (c *Config) StrikeFilteringEnabled() bool {
	return c.Strikes.EnableFiltering == nil || *c.Strikes.EnableFiltering
}

// StrikeCalculator builds the strike-range calculator from validated settings.
func (c *Config) StrikeCalculator() *strikes.Calculator {
	return strikes.NewCalculator(c.StrikeFilteringEnabled(), strikes.Ranges{
		ShortTerm:  c.Strikes.ShortTermRange,
		MediumTerm: c.Strikes.MediumTermRange,
		LongTerm:   c.Strikes.LongTermRange,
	})
}

// Redis returns the Redis connection settings.
func (c *Config) Redis() cache.RedisConfig {
	return cache.RedisConfig{Addr: c.Cache.Addr, Password: c.Cache.Password, DB: c.Cache.DB}
}

// ListenAddr returns the HTTP listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
