package config

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REMOTE_BACKEND", "")
	t.Setenv("LOCAL_CACHE_BACKEND", "")
	t.Setenv("OUTBOX_BACKEND", "")
	t.Setenv("AICONFIG_SESSION_TOKEN", "")
	t.Setenv("ENCRYPTION_KEY", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.LocalCache.Backend)
	assert.NotEmpty(t, cfg.LocalCache.Path)
	assert.Equal(t, "none", cfg.Remote.Backend)
	assert.Equal(t, "memory", cfg.Outbox.Backend)
	assert.Equal(t, 5, cfg.Outbox.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.Provider.RequestTimeout)
	assert.False(t, cfg.NeedsRedis())
	assert.Nil(t, cfg.EncryptionKey)
}

func TestFromEnv_PostgresWhenDatabaseURLSet(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/aiconfig")
	t.Setenv("REMOTE_BACKEND", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Remote.Backend)
}

func TestFromEnv_Overrides(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	t.Setenv("LOCAL_CACHE_BACKEND", "Redis")
	t.Setenv("REMOTE_BACKEND", "memory")
	t.Setenv("OUTBOX_MAX_RETRIES", "9")
	t.Setenv("OUTBOX_RETRY_BACKOFF", "250ms")
	t.Setenv("ANTHROPIC_BASE_URL", "http://localhost:9999")
	t.Setenv("OPENAI_ORGANIZATION", "org-acme")
	t.Setenv("ENCRYPTION_KEY", key)
	t.Setenv("AICONFIG_USER_ID", "user-42")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.LocalCache.Backend)
	assert.Equal(t, "memory", cfg.Remote.Backend)
	assert.Equal(t, 9, cfg.Outbox.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Outbox.RetryBackoff)
	assert.Equal(t, "http://localhost:9999", cfg.Provider.BaseURLs["anthropic"])
	assert.Equal(t, "org-acme", cfg.Provider.OpenAIOrg)
	assert.Len(t, cfg.EncryptionKey, 32)
	assert.Equal(t, "user-42", cfg.Identity.UserID)
	assert.True(t, cfg.NeedsRedis())
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("OUTBOX_BATCH_SIZE", "many")
	t.Setenv("REMOTE_TIMEOUT", "soon")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Outbox.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.Remote.Timeout)
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown local backend", map[string]string{"LOCAL_CACHE_BACKEND": "sqlite"}},
		{"unknown remote backend", map[string]string{"REMOTE_BACKEND": "mongo"}},
		{"postgres without url", map[string]string{"REMOTE_BACKEND": "postgres", "DATABASE_URL": ""}},
		{"unknown outbox backend", map[string]string{"OUTBOX_BACKEND": "kafka"}},
		{"token without secret", map[string]string{"AICONFIG_SESSION_TOKEN": "abc", "JWT_SECRET": ""}},
		{"bad encryption key", map[string]string{"ENCRYPTION_KEY": "%%%"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
