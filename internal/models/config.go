package models

import (
	"time"

	"github.com/google/uuid"
)

// ModelConfig is the credential plus generation parameters for one provider.
// The fields are always read and written together.
type ModelConfig struct {
	APIKey      string  `json:"api_key"`
	ModelName   string  `json:"model_name"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// HasCredential reports whether a service can be built from this config.
func (c ModelConfig) HasCredential() bool {
	return c.APIKey != ""
}

// ConfigRecord is the remote, per-user form of the configuration.
// There is at most one live record per UserID.
type ConfigRecord struct {
	ID        uuid.UUID  `db:"id"`
	UserID    string     `db:"user_id"`
	Provider  ProviderID `db:"provider"`
	APIKey    string     `db:"api_key"`
	ModelName string     `db:"model_name"`
	// Revision orders snapshots; the store keeps the highest one it has seen.
	Revision  int64     `db:"revision"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// CachedConfig is the client-local form of the configuration. It carries no
// identity and survives unauthenticated use.
type CachedConfig struct {
	Provider  ProviderID `json:"provider"`
	APIKey    string     `json:"api_key"`
	ModelName string     `json:"model_name"`
}

// Valid reports whether the entry names a known provider.
func (c *CachedConfig) Valid() bool {
	if c == nil {
		return false
	}
	_, err := ParseProviderID(string(c.Provider))
	return err == nil
}
