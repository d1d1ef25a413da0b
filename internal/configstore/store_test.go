package configstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_config/internal/auth"
	"ai_config/internal/models"
)

func TestStore_LocalRoundTrip(t *testing.T) {
	local := NewMemoryLocal()
	store := NewStore(local, nil)

	_, ok := store.LoadLocal()
	assert.False(t, ok)

	entry := models.CachedConfig{Provider: models.ProviderOpenAI, APIKey: "sk-1", ModelName: "gpt-4o"}
	require.NoError(t, store.SaveLocal(entry))

	got, ok := store.LoadLocal()
	require.True(t, ok)
	assert.Equal(t, entry, *got)
}

func TestStore_LoadLocalRejectsUnknownProvider(t *testing.T) {
	local := NewMemoryLocalWith(models.CachedConfig{Provider: "mistral", APIKey: "k"})
	store := NewStore(local, nil)

	_, ok := store.LoadLocal()
	assert.False(t, ok)
}

func TestStore_SaveLocalError(t *testing.T) {
	local := NewMemoryLocal()
	local.FailWith(errForbidden)
	store := NewStore(local, nil)

	err := store.SaveLocal(models.CachedConfig{Provider: models.ProviderOpenAI})
	assert.ErrorIs(t, err, errForbidden)
}

func TestStore_LoadRemote(t *testing.T) {
	remote := NewMemoryRemote()
	rec := sampleRecord("user-1", 1)
	require.NoError(t, remote.Upsert(context.Background(), &rec))

	store := NewStore(NewMemoryLocal(), auth.NewStaticSupplier("user-1"), WithRemote(remote))

	res := store.LoadRemote(context.Background(), "user-1")
	require.True(t, res.Found())
	assert.NoError(t, res.Err)
	assert.Equal(t, "gm-key", res.Record.APIKey)

	res = store.LoadRemote(context.Background(), "user-2")
	assert.False(t, res.Found())
	assert.NoError(t, res.Err)
}

func TestStore_LoadRemoteFailsSoft(t *testing.T) {
	remote := newFlakyRemote(errUnreachable, -1)
	store := NewStore(NewMemoryLocal(), auth.NewStaticSupplier("user-1"), WithRemote(remote))

	res := store.LoadRemote(context.Background(), "user-1")
	assert.False(t, res.Found())
	assert.ErrorIs(t, res.Err, ErrConfigLoad)
}

func TestStore_LoadRemoteRejectsUnknownProvider(t *testing.T) {
	remote := NewMemoryRemote()
	rec := sampleRecord("user-1", 1)
	rec.Provider = "mistral"
	require.NoError(t, remote.Upsert(context.Background(), &rec))

	store := NewStore(NewMemoryLocal(), nil, WithRemote(remote))
	res := store.LoadRemote(context.Background(), "user-1")
	assert.False(t, res.Found())
	assert.ErrorIs(t, res.Err, ErrConfigLoad)
}

func TestStore_LoadRemoteTimeout(t *testing.T) {
	store := NewStore(NewMemoryLocal(), nil, WithRemote(stalledRemote{}), WithRemoteTimeout(20*time.Millisecond))

	start := time.Now()
	res := store.LoadRemote(context.Background(), "user-1")
	assert.False(t, res.Found())
	assert.ErrorIs(t, res.Err, ErrConfigLoad)
	assert.Less(t, time.Since(start), time.Second)
}

func TestStore_SaveRemoteOutcomes(t *testing.T) {
	ctx := context.Background()

	t.Run("skipped without remote", func(t *testing.T) {
		store := NewStore(NewMemoryLocal(), auth.NewStaticSupplier("user-1"))
		assert.Equal(t, SaveSkipped, store.SaveRemote(ctx, sampleRecord("", 1)).Outcome)
	})

	t.Run("deferred without identity", func(t *testing.T) {
		remote := NewMemoryRemote()
		store := NewStore(NewMemoryLocal(), auth.NewStaticSupplier(""), WithRemote(remote))
		res := store.SaveRemote(ctx, sampleRecord("", 1))
		assert.Equal(t, SaveDeferred, res.Outcome)
		assert.Equal(t, 0, remote.Upserts())
	})

	t.Run("saved fills user id", func(t *testing.T) {
		remote := NewMemoryRemote()
		store := NewStore(NewMemoryLocal(), auth.NewStaticSupplier("user-1"), WithRemote(remote))
		res := store.SaveRemote(ctx, sampleRecord("", 1))
		assert.Equal(t, SaveSaved, res.Outcome)
		assert.NoError(t, res.Err)

		got, err := remote.GetByUserID(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.Revision)
	})

	t.Run("superseded by newer revision", func(t *testing.T) {
		remote := NewMemoryRemote()
		store := NewStore(NewMemoryLocal(), auth.NewStaticSupplier("user-1"), WithRemote(remote))
		assert.Equal(t, SaveSaved, store.SaveRemote(ctx, sampleRecord("", 5)).Outcome)
		assert.Equal(t, SaveSuperseded, store.SaveRemote(ctx, sampleRecord("", 4)).Outcome)
	})

	t.Run("local only and queued on recoverable failure", func(t *testing.T) {
		outbox := &recordingOutbox{}
		store := NewStore(NewMemoryLocal(), auth.NewStaticSupplier("user-1"),
			WithRemote(newFlakyRemote(errUnreachable, -1)), WithOutbox(outbox))

		res := store.SaveRemote(ctx, sampleRecord("", 7))
		assert.Equal(t, SaveLocalOnly, res.Outcome)
		assert.ErrorIs(t, res.Err, ErrConfigSave)
		assert.True(t, res.Queued)
		require.Len(t, outbox.records, 1)
		assert.Equal(t, "user-1", outbox.records[0].UserID)
		assert.Equal(t, int64(7), outbox.records[0].Revision)
	})

	t.Run("not queued on permanent failure", func(t *testing.T) {
		outbox := &recordingOutbox{}
		store := NewStore(NewMemoryLocal(), auth.NewStaticSupplier("user-1"),
			WithRemote(newFlakyRemote(errForbidden, -1)), WithOutbox(outbox))

		res := store.SaveRemote(ctx, sampleRecord("", 7))
		assert.Equal(t, SaveLocalOnly, res.Outcome)
		assert.False(t, res.Queued)
		assert.Empty(t, outbox.records)
	})
}

func TestSaveOutcome_String(t *testing.T) {
	assert.Equal(t, "saved", SaveSaved.String())
	assert.Equal(t, "local-only", SaveLocalOnly.String())
	assert.Equal(t, "SaveOutcome(42)", SaveOutcome(42).String())
}

// stalledRemote blocks until the context ends.
type stalledRemote struct{}

func (stalledRemote) GetByUserID(ctx context.Context, userID string) (*models.ConfigRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledRemote) Upsert(ctx context.Context, record *models.ConfigRecord) error {
	<-ctx.Done()
	return ctx.Err()
}
