package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"ai_config/internal/models"
	"ai_config/internal/storage"
)

// localEntry is the on-disk and in-Redis shape of the cached config.
type localEntry struct {
	Provider  models.ProviderID `json:"provider"`
	APIKey    string            `json:"api_key"`
	ModelName string            `json:"model_name"`
	Sealed    bool              `json:"sealed,omitempty"`
}

func encodeEntry(entry models.CachedConfig, enc *storage.Encryption) ([]byte, error) {
	out := localEntry{
		Provider:  entry.Provider,
		APIKey:    entry.APIKey,
		ModelName: entry.ModelName,
	}
	if enc != nil && entry.APIKey != "" {
		sealed, err := enc.EncryptString(entry.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt api key: %w", err)
		}
		out.APIKey = sealed
		out.Sealed = true
	}
	return json.Marshal(out)
}

func decodeEntry(data []byte, enc *storage.Encryption) (*models.CachedConfig, error) {
	var in localEntry
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("corrupt local config: %w", err)
	}

	apiKey := in.APIKey
	if in.Sealed {
		if enc == nil {
			return nil, fmt.Errorf("local config is encrypted but no key is configured")
		}
		opened, err := enc.DecryptString(in.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt api key: %w", err)
		}
		apiKey = opened
	}

	return &models.CachedConfig{
		Provider:  in.Provider,
		APIKey:    apiKey,
		ModelName: in.ModelName,
	}, nil
}

// FileLocal keeps the cached config in a single JSON file. Writes go to a
// temporary file first and are renamed into place.
type FileLocal struct {
	mu   sync.Mutex
	path string
	enc  *storage.Encryption
}

// NewFileLocal stores the config at path. With a non-nil enc the API key is
// sealed at rest.
func NewFileLocal(path string, enc *storage.Encryption) *FileLocal {
	return &FileLocal{path: path, enc: enc}
}

// Path returns the file location.
func (f *FileLocal) Path() string {
	return f.path
}

func (f *FileLocal) Load() (*models.CachedConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	return decodeEntry(data, f.enc)
}

func (f *FileLocal) Save(entry models.CachedConfig) error {
	data, err := encodeEntry(entry, f.enc)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".aiconfig-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write local config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync local config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close local config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to chmod local config: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace local config: %w", err)
	}
	return nil
}

// RedisLocal keeps the cached config under one well-known key of a Redis
// instance local to the host.
type RedisLocal struct {
	client  *redis.Client
	key     string
	enc     *storage.Encryption
	timeout time.Duration
}

// NewRedisLocal stores the config at key.
func NewRedisLocal(client *redis.Client, key string, enc *storage.Encryption) *RedisLocal {
	return &RedisLocal{
		client:  client,
		key:     key,
		enc:     enc,
		timeout: 2 * time.Second,
	}
}

func (r *RedisLocal) Load() (*models.CachedConfig, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read local config from redis: %w", err)
	}
	return decodeEntry(data, r.enc)
}

func (r *RedisLocal) Save(entry models.CachedConfig) error {
	data, err := encodeEntry(entry, r.enc)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write local config to redis: %w", err)
	}
	return nil
}

// MemoryLocal keeps the cached config in memory. It is used when no durable
// location is available and in tests.
type MemoryLocal struct {
	mu    sync.Mutex
	entry *models.CachedConfig
	saves int
	err   error
}

// NewMemoryLocal returns an empty cache.
func NewMemoryLocal() *MemoryLocal {
	return &MemoryLocal{}
}

// NewMemoryLocalWith returns a cache holding entry.
func NewMemoryLocalWith(entry models.CachedConfig) *MemoryLocal {
	return &MemoryLocal{entry: &entry}
}

func (m *MemoryLocal) Load() (*models.CachedConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entry == nil {
		return nil, nil
	}
	entry := *m.entry
	return &entry, nil
}

func (m *MemoryLocal) Save(entry models.CachedConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entry = &entry
	m.saves++
	return nil
}

// Saves returns the number of successful writes.
func (m *MemoryLocal) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// FailWith makes subsequent saves return err. A nil err clears it.
func (m *MemoryLocal) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}
