package config

import (
	"fmt"
	"net/url"
	"time"
)

const (
	DefaultBaseURL          = "http://localhost:8080/engine/v2"
	DefaultRequestTimeout   = 60 * time.Second
	DefaultPageSize         = 100
	MaxPageSize             = 10000
	DefaultFetchConcurrency = 4
	DefaultCacheSize        = 1024
	DefaultCacheTTL         = 10 * time.Minute
)

// Config holds all configuration for the client
type Config struct {
	// BaseURL is the Engine API root, e.g. http://localhost:8080/engine/v2
	BaseURL string `yaml:"base_url"`

	// RequestTimeout bounds each request except data uploads
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// LogLevel is the logging level (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// PageSize is the take used when walking result collections
	PageSize int `yaml:"page_size"`

	// FetchConcurrency bounds parallel single-bucket lookups
	FetchConcurrency int `yaml:"fetch_concurrency"`

	BucketCache BucketCacheConfig `yaml:"bucket_cache"`

	Tracing TracingConfig `yaml:"tracing"`
}

// BucketCacheConfig controls the single-bucket lookup cache
type BucketCacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
}

// TracingConfig controls OpenTelemetry export
type TracingConfig struct {
	// Enabled indicates whether OpenTelemetry tracing is enabled
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC endpoint for trace export
	Endpoint string `yaml:"endpoint"`

	// TLSCAPath is the path to the CA certificate for TLS verification
	TLSCAPath string `yaml:"tls_ca_path"`

	// TLSInsecure skips TLS verification
	TLSInsecure bool `yaml:"tls_insecure"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		BaseURL:          DefaultBaseURL,
		RequestTimeout:   DefaultRequestTimeout,
		LogLevel:         "info",
		PageSize:         DefaultPageSize,
		FetchConcurrency: DefaultFetchConcurrency,
		BucketCache: BucketCacheConfig{
			Size: DefaultCacheSize,
			TTL:  DefaultCacheTTL,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return NewConfigError("base_url must not be empty")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return NewConfigError(fmt.Sprintf("base_url %q must be an absolute http(s) URL", c.BaseURL))
	}

	if c.RequestTimeout <= 0 {
		return NewConfigError("request_timeout must be positive")
	}

	if c.PageSize < 1 || c.PageSize > MaxPageSize {
		return NewConfigError(fmt.Sprintf("page_size must be between 1 and %d", MaxPageSize))
	}

	if c.FetchConcurrency < 1 {
		return NewConfigError("fetch_concurrency must be at least 1")
	}

	if c.BucketCache.Enabled && c.BucketCache.Size < 1 {
		return NewConfigError("bucket_cache.size must be at least 1 when cache is enabled")
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return NewConfigError("tracing.endpoint must be set when tracing is enabled")
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

// Error returns the error message
func (e *ConfigError) Error() string {
	return e.message
}
