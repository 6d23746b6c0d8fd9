// Package config provides configuration management for the enrichment service.
// It handles loading configuration from environment variables with sensible
// defaults and validates the configuration to ensure the service starts safely.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//
// Generative API Settings:
//   - GENERATIVE_API_URL: Generative endpoint URL (required)
//   - GENERATIVE_API_KEY: Bearer token for the generative endpoint
//   - GENERATIVE_API_TIMEOUT: Per-call timeout (default: 30s)
//   - API_REQUESTS_PER_MINUTE: Published quota for the generative endpoint (default: 15)
//   - API_MAX_RETRIES: Retry budget for rate-limited calls (default: 3)
//   - API_RETRY_BASE_DELAY: Base delay for exponential backoff (default: 2s)
//   - API_RETRY_MAX_DELAY: Ceiling for computed retry delays (default: 60s)
//
// Cache Settings:
//   - CACHE_TTL: Time-to-live for enrichment results (default: 168h)
//
// Durable Store:
//   - STORE_BACKEND: "redis", "sqlite" or "postgres" (default: sqlite)
//   - STORE_SQLITE_PATH: SQLite database file path (default: ./enrichment_cache.db)
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//   - REDIS_POOL_SIZE: Redis connection pool size (default: 10)
//   - POSTGRES_URL: PostgreSQL connection string (required if using postgres)
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the enrichment service.
// Load it with Load() and validate with Validate() before use.
type Config struct {
	// Application settings
	Port     string // Server port number
	LogLevel string // Logging level (debug, info, warn, error)

	// Generative API quota and retry policy
	APIURL               string        // Generative endpoint URL
	APIKey               string        // Bearer token for the generative endpoint
	APITimeout           time.Duration // Per-call timeout for the generative endpoint
	APIRequestsPerMinute int           // Published per-minute quota of the generative endpoint
	APIMaxRetries        int           // Retry budget for rate-limited calls
	APIRetryBaseDelay    time.Duration // Base delay for exponential backoff
	APIRetryMaxDelay     time.Duration // Ceiling for computed retry delays

	// Response cache
	CacheTTL time.Duration // Time-to-live for enrichment results

	// Durable store backend
	StoreBackend    string // "redis", "sqlite" or "postgres"
	StoreSQLitePath string // SQLite database file path
	RedisAddress    string // Redis server address (host:port)
	RedisPassword   string // Redis authentication password
	RedisDB         string // Redis database number (0-15)
	RedisPoolSize   string // Redis connection pool size
	PostgresURL     string // PostgreSQL connection string
}

// Load creates a new Config instance with values loaded from environment
// variables. Defaults are used for anything unset; call Validate() afterwards.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		APIURL:               getEnv("GENERATIVE_API_URL", ""),
		APIKey:               getEnv("GENERATIVE_API_KEY", ""),
		APITimeout:           getDurationEnv("GENERATIVE_API_TIMEOUT", 30*time.Second),
		APIRequestsPerMinute: getIntEnv("API_REQUESTS_PER_MINUTE", 15),
		APIMaxRetries:        getIntEnv("API_MAX_RETRIES", 3),
		APIRetryBaseDelay:    getDurationEnv("API_RETRY_BASE_DELAY", 2*time.Second),
		APIRetryMaxDelay:     getDurationEnv("API_RETRY_MAX_DELAY", 60*time.Second),

		CacheTTL: getDurationEnv("CACHE_TTL", 7*24*time.Hour),

		StoreBackend:    getEnv("STORE_BACKEND", "sqlite"),
		StoreSQLitePath: getEnv("STORE_SQLITE_PATH", "./enrichment_cache.db"),
		RedisAddress:    getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnv("REDIS_DB", "0"),
		RedisPoolSize:   getEnv("REDIS_POOL_SIZE", "10"),
		PostgresURL:     getEnv("POSTGRES_URL", ""),
	}
}

// MinSpacing translates the published per-minute quota into the minimum
// interval between two consecutive dispatches.
func (c *Config) MinSpacing() time.Duration {
	if c.APIRequestsPerMinute <= 0 {
		return 0
	}
	return time.Minute / time.Duration(c.APIRequestsPerMinute)
}

// Validate performs validation on the configuration to ensure all values are
// usable before the service starts.
func (c *Config) Validate() error {
	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	if c.APIURL == "" {
		return fmt.Errorf("GENERATIVE_API_URL environment variable is required")
	}

	if c.APIRequestsPerMinute < 1 {
		return fmt.Errorf("API_REQUESTS_PER_MINUTE must be a positive number")
	}

	if c.APIMaxRetries < 0 {
		return fmt.Errorf("API_MAX_RETRIES must not be negative")
	}

	if c.APIRetryBaseDelay <= 0 {
		return fmt.Errorf("API_RETRY_BASE_DELAY must be a positive duration")
	}

	if c.APIRetryMaxDelay < c.APIRetryBaseDelay {
		return fmt.Errorf("API_RETRY_MAX_DELAY must not be shorter than API_RETRY_BASE_DELAY")
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be a positive duration")
	}

	switch c.StoreBackend {
	case "sqlite":
		if c.StoreSQLitePath == "" {
			return fmt.Errorf("STORE_SQLITE_PATH is required when using the sqlite backend")
		}
	case "redis":
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if poolSize, err := strconv.Atoi(c.RedisPoolSize); err != nil || poolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	case "postgres", "postgresql":
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required when using the postgres backend")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be 'redis', 'sqlite' or 'postgres'")
	}

	return nil
}

// getEnv retrieves an environment variable value or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves an integer environment variable or returns a default value.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv retrieves a duration environment variable or returns a default value.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
