// Package config provides configuration management and environment variable handling for the application
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database    DatabaseConfig    `json:"database"`
	Server      ServerConfig      `json:"server"`
	Logging     LoggingConfig     `json:"logging"`
	Metrics     MetricsConfig     `json:"metrics"`
	Cache       CacheConfig       `json:"cache"`
	Marketplace MarketplaceConfig `json:"marketplace"`
	Enrichment  EnrichmentConfig  `json:"enrichment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

// DSN returns the postgres connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
}

type LoggingConfig struct {
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled     bool          `json:"enabled"`
	RedisURL    string        `json:"redis_url"`
	RedisDB     int           `json:"redis_db"`
	RedisPrefix string        `json:"redis_prefix"`
	LockTTL     time.Duration `json:"lock_ttl"`
}

// MarketplaceConfig holds the resale marketplace API credentials and endpoints
type MarketplaceConfig struct {
	ClientID     string        `json:"-"`
	ClientSecret string        `json:"-"`
	RefreshToken string        `json:"-"`
	APIKey       string        `json:"-"`
	AuthURL      string        `json:"auth_url"`
	BaseURL      string        `json:"base_url"`
	UserAgent    string        `json:"user_agent"`
	Timeout      time.Duration `json:"timeout"`
	PageDelay    time.Duration `json:"page_delay"`
}

// EnrichmentConfig controls batch enrichment runs
type EnrichmentConfig struct {
	RateLimitPerMinute int           `json:"rate_limit_per_minute"`
	BatchLimit         int           `json:"batch_limit"` // 0 means no limit
	ScheduleEnabled    bool          `json:"schedule_enabled"`
	ScheduleInterval   time.Duration `json:"schedule_interval"`
	RunTimeout         time.Duration `json:"run_timeout"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	if err := loadEnvFile(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "postgres"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 1*1024*1024),
		},
		Logging: LoggingConfig{
			Output:     getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:   getEnvString("LOG_FILE_PATH", "logs/price-ledger.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", false),
			RedisURL:    getEnvString("CACHE_REDIS_URL", ""),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "price-ledger:"),
			LockTTL:     getEnvDuration("CACHE_LOCK_TTL", 6*time.Hour),
		},
		Marketplace: MarketplaceConfig{
			ClientID:     getEnvString("STOCKX_CLIENT_ID", ""),
			ClientSecret: getEnvString("STOCKX_CLIENT_SECRET", ""),
			RefreshToken: getEnvString("STOCKX_REFRESH_TOKEN", ""),
			APIKey:       getEnvString("STOCKX_API_KEY", ""),
			AuthURL:      getEnvString("STOCKX_AUTH_URL", "https://accounts.stockx.com/oauth/token"),
			BaseURL:      getEnvString("STOCKX_API_BASE_URL", "https://api.stockx.com/v2"),
			UserAgent:    getEnvString("STOCKX_USER_AGENT", "price-ledger/1.0"),
			Timeout:      getEnvDuration("STOCKX_HTTP_TIMEOUT", 30*time.Second),
			PageDelay:    getEnvDuration("STOCKX_PAGE_DELAY", 1*time.Second),
		},
		Enrichment: EnrichmentConfig{
			RateLimitPerMinute: getEnvInt("ENRICHMENT_RATE_LIMIT_PER_MINUTE", 60),
			BatchLimit:         getEnvInt("ENRICHMENT_BATCH_LIMIT", 0),
			ScheduleEnabled:    getEnvBool("ENRICHMENT_SCHEDULE_ENABLED", false),
			ScheduleInterval:   getEnvDuration("ENRICHMENT_SCHEDULE_INTERVAL", 24*time.Hour),
			RunTimeout:         getEnvDuration("ENRICHMENT_RUN_TIMEOUT", 12*time.Hour),
		},
	}

	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from an env file if it exists; already-set variables win
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}

	// Validate logging configuration
	switch cfg.Logging.Output {
	case "stdout":
	case "file", "both":
		if cfg.Logging.FilePath == "" {
			errors = append(errors, "LOG_FILE_PATH is required when logging to a file")
		}
	default:
		errors = append(errors, "LOG_OUTPUT must be one of: stdout, file, both")
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled {
		if cfg.Cache.RedisURL == "" {
			errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled")
		}
		if cfg.Cache.LockTTL <= 0 {
			errors = append(errors, "CACHE_LOCK_TTL must be positive")
		}
	}

	// Validate marketplace endpoints; credentials are checked when the token broker is built
	if cfg.Marketplace.AuthURL == "" {
		errors = append(errors, "STOCKX_AUTH_URL is required")
	}
	if cfg.Marketplace.BaseURL == "" {
		errors = append(errors, "STOCKX_API_BASE_URL is required")
	}
	if cfg.Marketplace.Timeout <= 0 {
		errors = append(errors, "STOCKX_HTTP_TIMEOUT must be positive")
	}
	if cfg.Marketplace.PageDelay < 0 {
		errors = append(errors, "STOCKX_PAGE_DELAY must not be negative")
	}

	// Validate enrichment configuration
	if cfg.Enrichment.RateLimitPerMinute <= 0 {
		errors = append(errors, "ENRICHMENT_RATE_LIMIT_PER_MINUTE must be positive")
	}
	if cfg.Enrichment.BatchLimit < 0 {
		errors = append(errors, "ENRICHMENT_BATCH_LIMIT must not be negative")
	}
	if cfg.Enrichment.ScheduleEnabled && cfg.Enrichment.ScheduleInterval <= 0 {
		errors = append(errors, "ENRICHMENT_SCHEDULE_INTERVAL must be positive when scheduling is enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
