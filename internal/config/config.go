// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	// PerformanceEnabled is the system-wide switch for the performance metric family.
	// When false it overrides every user's personal setting.
	PerformanceEnabled bool

	// BackupRetentionDays is how long daily backups are kept, 0 keeps them forever.
	BackupRetentionDays int

	MarketData MarketDataConfig
}

// MarketDataConfig configures the quote provider and the price cache.
type MarketDataConfig struct {
	APIKey               string
	BaseURL              string
	RequestsPerMinute    int
	CacheTTL             time.Duration
	SyncSchedule         string // cron spec, empty disables the periodic sync
	PersistFetchedPrices bool
}

// Enabled reports whether a quote provider is configured.
func (c MarketDataConfig) Enabled() bool {
	return c.APIKey != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("EQTRAK_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cacheTTL, err := getEnvAsDuration("PRICE_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:             absDataDir,
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Port:                getEnvAsInt("GO_PORT", 8001),
		DevMode:             getEnvAsBool("DEV_MODE", false),
		PerformanceEnabled:  getEnvAsBool("PERFORMANCE_ENABLED", true),
		BackupRetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 14),
		MarketData: MarketDataConfig{
			APIKey:               getEnv("ALPHA_VANTAGE_API_KEY", ""),
			BaseURL:              getEnv("ALPHA_VANTAGE_BASE_URL", "https://www.alphavantage.co/query"),
			RequestsPerMinute:    getEnvAsInt("ALPHA_VANTAGE_RPM", 5),
			CacheTTL:             cacheTTL,
			SyncSchedule:         os.Getenv("PRICE_SYNC_SCHEDULE"),
			PersistFetchedPrices: getEnvAsBool("PERSIST_FETCHED_PRICES", true),
		},
	}
	if _, set := os.LookupEnv("PRICE_SYNC_SCHEDULE"); !set {
		cfg.MarketData.SyncSchedule = "@every 15m"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.BackupRetentionDays < 0 {
		return fmt.Errorf("backup retention must not be negative, got %d", c.BackupRetentionDays)
	}
	if c.MarketData.CacheTTL <= 0 {
		return fmt.Errorf("price cache TTL must be positive, got %s", c.MarketData.CacheTTL)
	}
	if c.MarketData.RequestsPerMinute <= 0 {
		return fmt.Errorf("quote provider rate must be positive, got %d", c.MarketData.RequestsPerMinute)
	}
	return nil
}

// BackupDir is where database backups are written.
func (c *Config) BackupDir() string {
	return filepath.Join(c.DataDir, "backups")
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

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
