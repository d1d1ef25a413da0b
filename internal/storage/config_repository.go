package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"ai_config/internal/models"
)

// ConfigSchema creates the table holding one configuration record per user.
const ConfigSchema = `
CREATE TABLE IF NOT EXISTS ai_configs (
	id          UUID PRIMARY KEY,
	user_id     TEXT NOT NULL UNIQUE,
	provider    TEXT NOT NULL,
	api_key     TEXT NOT NULL DEFAULT '',
	model_name  TEXT NOT NULL DEFAULT '',
	revision    BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// ConfigRepository handles configuration records with caching.
// API keys are sealed with enc when it is set.
type ConfigRepository struct {
	db    *DB
	enc   *Encryption
	cache *LRUCache[*models.ConfigRecord]
}

// NewConfigRepository creates a new configuration repository
func NewConfigRepository(db *DB, enc *Encryption) *ConfigRepository {
	return &ConfigRepository{
		db:    db,
		enc:   enc,
		cache: db.GetConfigCache(),
	}
}

// EnsureSchema creates the ai_configs table if it does not exist
func (r *ConfigRepository) EnsureSchema(ctx context.Context) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.conn.ExecContext(ctx, ConfigSchema); err != nil {
		return fmt.Errorf("failed to create ai_configs table: %w", err)
	}
	return nil
}

// GetByUserID retrieves the record of a user (with caching)
func (r *ConfigRepository) GetByUserID(ctx context.Context, userID string) (*models.ConfigRecord, error) {
	if cached, found := r.cache.Get(userID); found {
		record := *cached
		return &record, nil
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var record models.ConfigRecord
	query := `
		SELECT id, user_id, provider, api_key, model_name, revision, created_at, updated_at
		FROM ai_configs
		WHERE user_id = $1
	`

	err := r.db.conn.GetContext(ctx, &record, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	if record.APIKey, err = r.open(record.APIKey, record.UserID); err != nil {
		return nil, fmt.Errorf("failed to decrypt api key for user %s: %w", userID, err)
	}

	r.remember(&record)
	return &record, nil
}

// Upsert inserts or replaces the record of record.UserID. The write only takes
// effect when record.Revision is newer than the stored one; otherwise
// ErrStaleRevision is returned and nothing changes.
func (r *ConfigRepository) Upsert(ctx context.Context, record *models.ConfigRecord) error {
	if record.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	sealed, err := r.seal(record.APIKey, record.UserID)
	if err != nil {
		return fmt.Errorf("failed to encrypt api key: %w", err)
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO ai_configs (id, user_id, provider, api_key, model_name, revision)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET provider = EXCLUDED.provider,
		    api_key = EXCLUDED.api_key,
		    model_name = EXCLUDED.model_name,
		    revision = EXCLUDED.revision,
		    updated_at = NOW()
		WHERE ai_configs.revision < EXCLUDED.revision
		RETURNING id, created_at, updated_at
	`

	err = r.db.conn.QueryRowxContext(
		ctx, query,
		record.ID, record.UserID, record.Provider, sealed, record.ModelName, record.Revision,
	).Scan(&record.ID, &record.CreatedAt, &record.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.cache.Delete(record.UserID)
			return ErrStaleRevision
		}
		return fmt.Errorf("failed to upsert config: %w", err)
	}

	r.remember(record)
	return nil
}

// InvalidateCache drops the cached record of a user
func (r *ConfigRepository) InvalidateCache(userID string) {
	r.cache.Delete(userID)
}

func (r *ConfigRepository) remember(record *models.ConfigRecord) {
	cached := *record
	r.cache.Set(record.UserID, &cached)
}

// seal binds the sealed key to its user.
func (r *ConfigRepository) seal(apiKey, userID string) (string, error) {
	if r.enc == nil {
		return apiKey, nil
	}
	return r.enc.SealFor(apiKey, userID)
}

func (r *ConfigRepository) open(stored, userID string) (string, error) {
	if r.enc == nil {
		return stored, nil
	}
	return r.enc.OpenFor(stored, userID)
}
