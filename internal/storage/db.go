package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"ai_config/internal/models"
)

// DB wraps the database connection and its read cache.
type DB struct {
	conn         *sqlx.DB
	queryTimeout time.Duration

	// Cache for configuration records keyed by user id
	configCache *LRUCache[*models.ConfigRecord]
}

// DBConfig holds database configuration
type DBConfig struct {
	DSN string

	// Pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Query timeouts
	QueryTimeout time.Duration

	// Cache settings
	ConfigCacheSize int
	ConfigCacheTTL  time.Duration
}

// DefaultDBConfig returns default database configuration
func DefaultDBConfig() DBConfig {
	return DBConfig{
		DSN: "host=localhost port=5432 dbname=aiconfig user=postgres sslmode=disable",

		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		QueryTimeout: 5 * time.Second,

		ConfigCacheSize: 100,
		ConfigCacheTTL:  30 * time.Second,
	}
}

// NewDB creates a new database connection with caching
func NewDB(cfg DBConfig) (*DB, error) {
	conn, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return NewDBFromConn(conn, cfg), nil
}

// NewDBFromConn wraps an existing connection. Tests use it with sqlmock.
func NewDBFromConn(conn *sqlx.DB, cfg DBConfig) *DB {
	if cfg.ConfigCacheSize <= 0 {
		cfg.ConfigCacheSize = 1
	}
	return &DB{
		conn:         conn,
		queryTimeout: cfg.QueryTimeout,
		configCache:  NewLRUCache[*models.ConfigRecord](cfg.ConfigCacheSize, cfg.ConfigCacheTTL),
	}
}

// Close closes the database connection and clears caches
func (db *DB) Close() error {
	db.configCache.Clear()
	return db.conn.Close()
}

// Ping checks if the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Health returns the health status of the database
func (db *DB) Health(ctx context.Context) error {
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := db.conn.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}

	return nil
}

// withTimeout bounds a single query by the configured query timeout.
func (db *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, db.queryTimeout)
}

// Conn returns the underlying sqlx connection
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

// GetConfigCache returns the configuration record cache
func (db *DB) GetConfigCache() *LRUCache[*models.ConfigRecord] {
	return db.configCache
}

// CleanupExpiredCacheEntries removes expired entries from the cache.
// Should be called periodically (e.g., every minute)
func (db *DB) CleanupExpiredCacheEntries() int {
	return db.configCache.CleanupExpired()
}

// NewConfigRepository creates a configuration repository on this connection
func (db *DB) NewConfigRepository(enc *Encryption) *ConfigRepository {
	return NewConfigRepository(db, enc)
}
