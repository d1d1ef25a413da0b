package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds configuration for the AI configuration coordinator.
type Config struct {
	LogLevel      string
	EncryptionKey []byte
	Database      DatabaseConfig
	Cache         CacheConfig
	Redis         RedisConfig
	LocalCache    LocalCacheConfig
	Remote        RemoteConfig
	Outbox        OutboxConfig
	Provider      ProviderConfig
	Identity      IdentityConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
}

// CacheConfig holds the remote record read cache settings
type CacheConfig struct {
	ConfigCacheSize int
	ConfigCacheTTL  time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LocalCacheConfig selects where the device-local copy of the configuration lives.
type LocalCacheConfig struct {
	Backend string // file, redis or memory
	Path    string // file backend
	Key     string // redis backend
}

// RemoteConfig selects the durable per-user store.
type RemoteConfig struct {
	Backend string // postgres, memory or none
	Timeout time.Duration
}

// OutboxConfig controls retries of remote saves that failed.
type OutboxConfig struct {
	Enabled      bool
	Backend      string // memory or redis
	QueueName    string
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// ProviderConfig holds provider-related settings
type ProviderConfig struct {
	RequestTimeout time.Duration     // Default timeout for provider requests
	BaseURLs       map[string]string // Per-provider base URL overrides
	OpenAIOrg      string            // OpenAI-Organization header, optional
}

// IdentityConfig describes how the current user is resolved.
type IdentityConfig struct {
	UserID    string
	Token     string
	JWTSecret []byte
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return b
}

func defaultCachePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "aiconfig", "config.json")
}

// Load reads configuration from an optional .env file and the environment.
func Load() (*Config, error) {
	// A missing .env is normal; real environment variables always win.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		LogLevel: getEnvString("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
			QueryTimeout:    getEnvDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		},
		Cache: CacheConfig{
			ConfigCacheSize: getEnvInt("CACHE_CONFIG_SIZE", 1000),
			ConfigCacheTTL:  getEnvDuration("CACHE_CONFIG_TTL", 5*time.Minute),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		LocalCache: LocalCacheConfig{
			Backend: strings.ToLower(getEnvString("LOCAL_CACHE_BACKEND", "file")),
			Path:    getEnvString("LOCAL_CACHE_PATH", defaultCachePath()),
			Key:     getEnvString("LOCAL_CACHE_KEY", "aiconfig:local"),
		},
		Remote: RemoteConfig{
			Backend: strings.ToLower(getEnvString("REMOTE_BACKEND", "")),
			Timeout: getEnvDuration("REMOTE_TIMEOUT", 10*time.Second),
		},
		Outbox: OutboxConfig{
			Enabled:      getEnvBool("OUTBOX_ENABLED", true),
			Backend:      strings.ToLower(getEnvString("OUTBOX_BACKEND", "memory")),
			QueueName:    getEnvString("OUTBOX_QUEUE_NAME", "config-outbox"),
			BatchSize:    getEnvInt("OUTBOX_BATCH_SIZE", 20),
			BatchTimeout: getEnvDuration("OUTBOX_BATCH_TIMEOUT", 2*time.Second),
			MaxRetries:   getEnvInt("OUTBOX_MAX_RETRIES", 5),
			RetryBackoff: getEnvDuration("OUTBOX_RETRY_BACKOFF", 1*time.Second),
		},
		Provider: ProviderConfig{
			RequestTimeout: getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 60*time.Second),
			BaseURLs:       map[string]string{},
			OpenAIOrg:      os.Getenv("OPENAI_ORGANIZATION"),
		},
		Identity: IdentityConfig{
			UserID:    os.Getenv("AICONFIG_USER_ID"),
			Token:     os.Getenv("AICONFIG_SESSION_TOKEN"),
			JWTSecret: []byte(os.Getenv("JWT_SECRET")),
		},
	}

	for _, name := range []string{"openai", "gemini", "anthropic"} {
		if url := os.Getenv(strings.ToUpper(name) + "_BASE_URL"); url != "" {
			cfg.Provider.BaseURLs[name] = url
		}
	}

	if cfg.Remote.Backend == "" {
		if cfg.Database.URL != "" {
			cfg.Remote.Backend = "postgres"
		} else {
			cfg.Remote.Backend = "none"
		}
	}

	if raw := os.Getenv("ENCRYPTION_KEY"); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("ENCRYPTION_KEY must be base64: %w", err)
		}
		cfg.EncryptionKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks backend names and the settings each backend requires.
func (c *Config) Validate() error {
	switch c.LocalCache.Backend {
	case "file":
		if c.LocalCache.Path == "" {
			return fmt.Errorf("LOCAL_CACHE_PATH is required for the file backend")
		}
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown LOCAL_CACHE_BACKEND %q", c.LocalCache.Backend)
	}

	switch c.Remote.Backend {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres remote backend")
		}
	case "memory", "none":
	default:
		return fmt.Errorf("unknown REMOTE_BACKEND %q", c.Remote.Backend)
	}

	switch c.Outbox.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown OUTBOX_BACKEND %q", c.Outbox.Backend)
	}

	if c.Identity.Token != "" && len(c.Identity.JWTSecret) == 0 {
		return fmt.Errorf("JWT_SECRET is required when AICONFIG_SESSION_TOKEN is set")
	}
	return nil
}

// NeedsRedis reports whether any configured backend talks to Redis.
func (c *Config) NeedsRedis() bool {
	return c.LocalCache.Backend == "redis" || (c.Outbox.Enabled && c.Outbox.Backend == "redis")
}
