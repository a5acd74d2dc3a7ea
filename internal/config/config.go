package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the ragdex service configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Search     SearchConfig     `yaml:"search"`
	Cache      CacheConfig      `yaml:"cache"`
	Resilience ResilienceConfig `yaml:"resilience"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// AuthConfig holds API authentication settings. An empty key list disables
// authentication.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds shared key-value store settings. The store is
// optional: without it the cache and rate limiter run local-only.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds collection persistence settings.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// GenerationConfig holds generation backend settings.
type GenerationConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// SearchConfig holds similarity search tuning.
type SearchConfig struct {
	ParallelThreshold int  `yaml:"parallel_threshold"` // document count above which batched search kicks in
	BatchSize         int  `yaml:"batch_size"`
	ANNEnabled        bool `yaml:"ann_enabled"`
	ANNMinDocuments   int  `yaml:"ann_min_documents"`
	HNSWM             int  `yaml:"hnsw_m"`
	HNSWEFSearch      int  `yaml:"hnsw_ef_search"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	LocalMaxEntries int `yaml:"local_max_entries"`
	RemoteTTLSec    int `yaml:"remote_ttl_sec"` // 0 = no expiry
}

// ResilienceConfig holds circuit breaker, queue, and retry settings.
type ResilienceConfig struct {
	BreakerErrorThresholdPct int `yaml:"breaker_error_threshold_pct"`
	BreakerResetTimeoutSec   int `yaml:"breaker_reset_timeout_sec"`
	BreakerCallTimeoutSec    int `yaml:"breaker_call_timeout_sec"`
	BreakerMinCalls          int `yaml:"breaker_min_calls"`
	QueueMaxConcurrent       int `yaml:"queue_max_concurrent"`
	RetryMaxRetries          int `yaml:"retry_max_retries"`
	RetryBaseDelayMs         int `yaml:"retry_base_delay_ms"`
}

// RateLimitConfig holds per-client rate limit settings.
type RateLimitConfig struct {
	WindowMs    int `yaml:"window_ms"`
	MaxRequests int `yaml:"max_requests"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Search.ParallelThreshold <= 0 {
		c.Search.ParallelThreshold = 1000
	}
	if c.Search.BatchSize <= 0 {
		c.Search.BatchSize = 250
	}
	if c.Search.ANNMinDocuments <= 0 {
		c.Search.ANNMinDocuments = 5000
	}
	if c.Search.HNSWM <= 0 {
		c.Search.HNSWM = 16
	}
	if c.Search.HNSWEFSearch <= 0 {
		c.Search.HNSWEFSearch = 64
	}
	if c.Cache.LocalMaxEntries <= 0 {
		c.Cache.LocalMaxEntries = 1000
	}
	if c.Resilience.BreakerErrorThresholdPct <= 0 {
		c.Resilience.BreakerErrorThresholdPct = 50
	}
	if c.Resilience.BreakerResetTimeoutSec <= 0 {
		c.Resilience.BreakerResetTimeoutSec = 30
	}
	if c.Resilience.BreakerCallTimeoutSec <= 0 {
		c.Resilience.BreakerCallTimeoutSec = 30
	}
	if c.Resilience.BreakerMinCalls <= 0 {
		c.Resilience.BreakerMinCalls = 5
	}
	if c.Resilience.QueueMaxConcurrent <= 0 {
		c.Resilience.QueueMaxConcurrent = 5
	}
	if c.Resilience.RetryMaxRetries <= 0 {
		c.Resilience.RetryMaxRetries = 3
	}
	if c.Resilience.RetryBaseDelayMs <= 0 {
		c.Resilience.RetryBaseDelayMs = 1000
	}
	if c.RateLimit.WindowMs <= 0 {
		c.RateLimit.WindowMs = 60000
	}
	if c.RateLimit.MaxRequests <= 0 {
		c.RateLimit.MaxRequests = 100
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Search.BatchSize > c.Search.ParallelThreshold {
		return fmt.Errorf("search.batch_size (%d) must not exceed search.parallel_threshold (%d)",
			c.Search.BatchSize, c.Search.ParallelThreshold)
	}
	if c.Resilience.BreakerErrorThresholdPct > 100 {
		return fmt.Errorf("resilience.breaker_error_threshold_pct must be at most 100, got %d",
			c.Resilience.BreakerErrorThresholdPct)
	}
	return nil
}

// RetryBaseDelay returns the retry base delay as a duration.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.Resilience.RetryBaseDelayMs) * time.Millisecond
}

// RateLimitWindow returns the rate limit window as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowMs) * time.Millisecond
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
