// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/portfolio-analytics/internal/domain"
)

// Cache backends
const (
	CacheBackendSQLite = "sqlite"
	CacheBackendMemory = "memory"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the cache database (always absolute)
	LogLevel string
	Pretty   bool
	Port     int
	DevMode  bool

	Analytics AnalyticsConfig
	Fetch     FetchConfig
	Cache     CacheConfig
	Backup    BackupConfig
}

// AnalyticsConfig holds defaults for indicator and optimizer calls
type AnalyticsConfig struct {
	HistoryYears      int     // 1-10
	RiskFreeRate      float64 // mean-variance and risk parity, 0.0-0.2
	BLRiskFreeRate    float64 // black-litterman, 0.0-0.2
	MarketProxyTicker string
	MarketProxyCap    float64
	ViewsFile         string // optional YAML file with Black-Litterman views
}

// FetchConfig controls provider retries and batch parallelism
type FetchConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
	MaxWorkers  int
	Timeout     time.Duration
}

// CacheConfig controls the memoization store
type CacheConfig struct {
	Backend         string // sqlite or memory
	TTL             time.Duration
	CleanupSchedule string
}

// BackupConfig holds S3-compatible object storage settings for cache snapshots
type BackupConfig struct {
	Schedule  string
	Bucket    string
	Prefix    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Retain    int
}

// Enabled reports whether cache snapshots should be uploaded
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Pretty:   getEnvAsBool("LOG_PRETTY", true),
		Port:     getEnvAsInt("PORT", 8080),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Analytics: AnalyticsConfig{
			HistoryYears:      getEnvAsInt("HISTORY_YEARS", 5),
			RiskFreeRate:      getEnvAsFloat("RISK_FREE_RATE", 0.04),
			BLRiskFreeRate:    getEnvAsFloat("BL_RISK_FREE_RATE", 0.001),
			MarketProxyTicker: getEnv("MARKET_PROXY_TICKER", "SPY"),
			MarketProxyCap:    getEnvAsFloat("MARKET_PROXY_CAP", 45e12),
			ViewsFile:         getEnv("BL_VIEWS_FILE", ""),
		},
		Fetch: FetchConfig{
			MaxAttempts: getEnvAsInt("FETCH_MAX_ATTEMPTS", 3),
			RetryDelay:  getEnvAsDuration("FETCH_RETRY_DELAY", 2*time.Second),
			MaxWorkers:  getEnvAsInt("FETCH_MAX_WORKERS", 5),
			Timeout:     getEnvAsDuration("FETCH_TIMEOUT", 30*time.Second),
		},
		Cache: CacheConfig{
			Backend:         getEnv("CACHE_BACKEND", CacheBackendSQLite),
			TTL:             getEnvAsDuration("CACHE_TTL", time.Hour),
			CleanupSchedule: getEnv("CACHE_CLEANUP_SCHEDULE", "@hourly"),
		},
		Backup: BackupConfig{
			Schedule:  getEnv("BACKUP_SCHEDULE", "@daily"),
			Bucket:    getEnv("BACKUP_BUCKET", ""),
			Prefix:    getEnv("BACKUP_PREFIX", "portfolio-analytics"),
			Endpoint:  getEnv("BACKUP_ENDPOINT", ""),
			Region:    getEnv("BACKUP_REGION", "auto"),
			AccessKey: getEnv("BACKUP_ACCESS_KEY", ""),
			SecretKey: getEnv("BACKUP_SECRET_KEY", ""),
			Retain:    getEnvAsInt("BACKUP_RETAIN", 7),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// CachePath returns the location of the SQLite cache database
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, "market_data.db")
}

// Validate checks ranges and required combinations
func (c *Config) Validate() error {
	if err := ValidateYears(c.Analytics.HistoryYears); err != nil {
		return err
	}
	if err := ValidateRiskFreeRate(c.Analytics.RiskFreeRate); err != nil {
		return fmt.Errorf("RISK_FREE_RATE: %w", err)
	}
	if err := ValidateRiskFreeRate(c.Analytics.BLRiskFreeRate); err != nil {
		return fmt.Errorf("BL_RISK_FREE_RATE: %w", err)
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("FETCH_MAX_ATTEMPTS must be at least 1, got %d", c.Fetch.MaxAttempts)
	}
	if c.Fetch.MaxWorkers < 1 {
		return fmt.Errorf("FETCH_MAX_WORKERS must be at least 1, got %d", c.Fetch.MaxWorkers)
	}
	if c.Fetch.RetryDelay < 0 {
		return fmt.Errorf("FETCH_RETRY_DELAY must not be negative")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	switch c.Cache.Backend {
	case CacheBackendSQLite, CacheBackendMemory:
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend)
	}
	if c.Backup.Enabled() && (c.Backup.AccessKey == "" || c.Backup.SecretKey == "") {
		return fmt.Errorf("BACKUP_BUCKET requires BACKUP_ACCESS_KEY and BACKUP_SECRET_KEY")
	}
	return nil
}

// ValidateYears checks the years-of-history input (1-10)
func ValidateYears(years int) error {
	if years < 1 || years > 10 {
		return fmt.Errorf("%w: years of history must be between 1 and 10, got %d", domain.ErrInvalidInput, years)
	}
	return nil
}

// ValidateRiskFreeRate checks a risk-free rate input (0.0-0.2)
func ValidateRiskFreeRate(rate float64) error {
	if rate < 0 || rate > 0.2 {
		return fmt.Errorf("%w: risk-free rate must be between 0.0 and 0.2, got %g", domain.ErrInvalidInput, rate)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
