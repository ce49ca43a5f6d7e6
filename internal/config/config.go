package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pathology-bites/slidedex/internal/domain"
	"github.com/pathology-bites/slidedex/internal/domain/detail"
)

// Storage drivers.
const (
	StorageR2   = "r2"
	StorageFile = "file"
)

// Cache drivers.
const (
	CacheValkey = "valkey"
	CacheRedis  = "redis"
)

// Config holds the slidedex configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Cache     CacheConfig     `yaml:"cache"`
	HTTPCache HTTPCacheConfig `yaml:"http_cache"`
	Detail    DetailConfig    `yaml:"detail"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port             int `yaml:"port"`
	ReadTimeoutSec   int `yaml:"read_timeout_sec"`
	WriteTimeoutSec  int `yaml:"write_timeout_sec"`
	ShutdownSec      int `yaml:"shutdown_timeout_sec"`
	CompressionLevel int `yaml:"compression_level"`
}

// StorageConfig selects and configures the object store holding the dataset blob.
type StorageConfig struct {
	Driver          string  `yaml:"driver"` // r2, file (default: r2)
	AccountID       string  `yaml:"account_id"`
	AccessKeyID     string  `yaml:"access_key_id"`
	SecretAccessKey string  `yaml:"secret_access_key"`
	Endpoint        string  `yaml:"endpoint"`
	Bucket          string  `yaml:"bucket"`
	Key             string  `yaml:"key"`
	Dir             string  `yaml:"dir"`
	FetchRatePerSec float64 `yaml:"fetch_rate_per_sec"` // 0 = unlimited
	TimeoutSec      int     `yaml:"timeout_sec"`
}

// Location returns the dataset bucket and key.
func (s StorageConfig) Location() domain.Location {
	return domain.Location{Bucket: s.Bucket, Key: s.Key}
}

// DatasetConfig holds the in-process parsed dataset cache settings.
type DatasetConfig struct {
	CacheTTLSec    int `yaml:"cache_ttl_sec"` // negative disables the cache
	MaxEntries     int `yaml:"max_entries"`
	LoadTimeoutSec int `yaml:"load_timeout_sec"`
}

// CacheConfig holds the optional shared blob cache settings.
type CacheConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Driver           string   `yaml:"driver"` // valkey, redis (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	TTLSec           int      `yaml:"ttl_sec"`
	LocalCacheTTLSec int      `yaml:"local_cache_ttl_sec"` // redis client-side caching, 0 = off
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// HTTPCacheConfig drives the Cache-Control header of slide responses.
type HTTPCacheConfig struct {
	MaxAgeSec               int `yaml:"max_age_sec"`
	StaleWhileRevalidateSec int `yaml:"stale_while_revalidate_sec"`
}

// DetailConfig caps detail batch sizes.
type DetailConfig struct {
	MaxGetIDs  int `yaml:"max_get_ids"`
	MaxPostIDs int `yaml:"max_post_ids"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML configuration, expanding ${VAR} references, then applies
// defaults and validates.
func Parse(data []byte) (Config, error) {
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

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
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
	if c.HTTP.CompressionLevel == 0 {
		c.HTTP.CompressionLevel = 5
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageR2
	}
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = domain.DefaultBucket
	}
	if c.Storage.Key == "" {
		c.Storage.Key = domain.DefaultDatasetKey
	}
	if c.Storage.TimeoutSec <= 0 {
		c.Storage.TimeoutSec = 15
	}
	if c.Dataset.CacheTTLSec == 0 {
		c.Dataset.CacheTTLSec = 300
	}
	if c.Dataset.MaxEntries <= 0 {
		c.Dataset.MaxEntries = 8
	}
	if c.Dataset.LoadTimeoutSec <= 0 {
		c.Dataset.LoadTimeoutSec = 30
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = CacheValkey
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 600
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "slidedex:"
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.HTTPCache.MaxAgeSec <= 0 {
		c.HTTPCache.MaxAgeSec = 86400
	}
	if c.HTTPCache.StaleWhileRevalidateSec <= 0 {
		c.HTTPCache.StaleWhileRevalidateSec = 1800
	}
	if c.Detail.MaxGetIDs <= 0 {
		c.Detail.MaxGetIDs = detail.MaxGetIDs
	}
	if c.Detail.MaxPostIDs <= 0 {
		c.Detail.MaxPostIDs = detail.MaxPostIDs
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.CompressionLevel < -1 || c.HTTP.CompressionLevel > 9 {
		return fmt.Errorf("http.compression_level must be between -1 and 9, got %d", c.HTTP.CompressionLevel)
	}

	switch c.Storage.Driver {
	case StorageR2:
		// Credentials are checked on first fetch so the server still boots
		// and reports unhealthy storage.
	case StorageFile:
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for driver %s", StorageFile)
		}
	default:
		return fmt.Errorf("storage.driver must be %q or %q, got %q", StorageR2, StorageFile, c.Storage.Driver)
	}
	if c.Storage.FetchRatePerSec < 0 {
		return fmt.Errorf("storage.fetch_rate_per_sec must not be negative, got %g", c.Storage.FetchRatePerSec)
	}

	if c.Cache.Enabled {
		switch c.Cache.Driver {
		case CacheValkey, CacheRedis:
			// ok
		default:
			return fmt.Errorf("cache.driver must be %q or %q, got %q", CacheValkey, CacheRedis, c.Cache.Driver)
		}
		if len(c.Cache.Addrs) == 0 {
			return fmt.Errorf("cache.addrs is required when cache.enabled is true")
		}
	}

	if c.Detail.MaxGetIDs > c.Detail.MaxPostIDs {
		return fmt.Errorf("detail.max_get_ids (%d) must not exceed detail.max_post_ids (%d)",
			c.Detail.MaxGetIDs, c.Detail.MaxPostIDs)
	}
	return nil
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
