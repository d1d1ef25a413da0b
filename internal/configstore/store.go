package configstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai_config/internal/auth"
	"ai_config/internal/logging"
	"ai_config/internal/models"
	"ai_config/internal/storage"
	"ai_config/internal/utils"
)

var logger = logging.New("configstore")

var (
	// ErrConfigLoad marks a remote load that failed. It is logged and
	// reported, never returned as a fatal error.
	ErrConfigLoad = errors.New("config load failed")

	// ErrConfigSave marks a remote save that failed after the local write
	// already succeeded.
	ErrConfigSave = errors.New("config save failed")
)

// Local is the device-local write-through cache. Load returns (nil, nil)
// when nothing is stored.
type Local interface {
	Load() (*models.CachedConfig, error)
	Save(entry models.CachedConfig) error
}

// Remote is the durable per-user store. GetByUserID returns
// storage.ErrConfigNotFound when the user has no record; Upsert returns
// storage.ErrStaleRevision when a newer revision is already stored.
// *storage.ConfigRepository satisfies it.
type Remote interface {
	GetByUserID(ctx context.Context, userID string) (*models.ConfigRecord, error)
	Upsert(ctx context.Context, record *models.ConfigRecord) error
}

var _ Remote = (*storage.ConfigRepository)(nil)

// Outbox accepts remote saves for later delivery.
type Outbox interface {
	Enqueue(ctx context.Context, record models.ConfigRecord) error
}

// SaveOutcome classifies the result of a remote save.
type SaveOutcome int

const (
	// SaveSaved means the remote holds the submitted snapshot.
	SaveSaved SaveOutcome = iota
	// SaveSuperseded means the remote already held a newer snapshot.
	SaveSuperseded
	// SaveDeferred means there is no signed-in user yet.
	SaveDeferred
	// SaveSkipped means no remote store is configured.
	SaveSkipped
	// SaveLocalOnly means the remote write failed; only the local copy is current.
	SaveLocalOnly
)

func (o SaveOutcome) String() string {
	switch o {
	case SaveSaved:
		return "saved"
	case SaveSuperseded:
		return "superseded"
	case SaveDeferred:
		return "deferred"
	case SaveSkipped:
		return "skipped"
	case SaveLocalOnly:
		return "local-only"
	default:
		return fmt.Sprintf("SaveOutcome(%d)", int(o))
	}
}

// SaveResult is the outcome of SaveRemote. Err is set only for SaveLocalOnly
// and wraps ErrConfigSave. Queued reports that the save was handed to the
// outbox for retry.
type SaveResult struct {
	Outcome SaveOutcome
	Err     error
	Queued  bool
}

// LoadResult is the outcome of LoadRemote. A nil Record with a nil Err means
// the user has no record yet; Err wraps ErrConfigLoad.
type LoadResult struct {
	Record *models.ConfigRecord
	Err    error
}

// Found reports whether a record was loaded.
func (r LoadResult) Found() bool {
	return r.Record != nil
}

// Store persists configuration to a local cache and, when available, a
// remote per-user record.
type Store struct {
	local    Local
	remote   Remote
	outbox   Outbox
	identity auth.IdentitySupplier
	timeout  time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithRemote enables remote persistence.
func WithRemote(r Remote) Option {
	return func(s *Store) { s.remote = r }
}

// WithOutbox retries failed remote saves through o.
func WithOutbox(o Outbox) Option {
	return func(s *Store) { s.outbox = o }
}

// WithRemoteTimeout bounds every remote call. Zero means no bound.
func WithRemoteTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// NewStore creates a store over local. A nil identity means always signed out.
func NewStore(local Local, identity auth.IdentitySupplier, opts ...Option) *Store {
	if identity == nil {
		identity = auth.NewStaticSupplier("")
	}
	s := &Store{
		local:    local,
		identity: identity,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UserID returns the current user from the identity supplier.
func (s *Store) UserID() (string, bool) {
	return s.identity.UserID()
}

// RemoteEnabled reports whether a remote store is configured.
func (s *Store) RemoteEnabled() bool {
	return s.remote != nil
}

// LoadLocal reads the cached entry. Missing, unreadable and invalid entries
// all read as none.
func (s *Store) LoadLocal() (*models.CachedConfig, bool) {
	entry, err := s.local.Load()
	if err != nil {
		logger.Warn("ignoring unreadable local config", "error", err)
		return nil, false
	}
	if entry == nil {
		return nil, false
	}
	if !entry.Valid() {
		logger.Warn("ignoring local config with unknown provider", "provider", entry.Provider)
		return nil, false
	}
	return entry, true
}

// SaveLocal writes entry to the local cache.
func (s *Store) SaveLocal(entry models.CachedConfig) error {
	if err := s.local.Save(entry); err != nil {
		return fmt.Errorf("failed to save local config: %w", err)
	}
	return nil
}

// LoadRemote fetches the record of userID. It never fails hard: errors are
// logged and reported in the result with no record.
func (s *Store) LoadRemote(ctx context.Context, userID string) LoadResult {
	if s.remote == nil || userID == "" {
		return LoadResult{}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	record, err := s.remote.GetByUserID(ctx, userID)
	if errors.Is(err, storage.ErrConfigNotFound) {
		return LoadResult{}
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrConfigLoad, err)
		logger.Warn("remote config load failed", "user_id", userID, "error", err)
		return LoadResult{Err: err}
	}

	if _, perr := models.ParseProviderID(string(record.Provider)); perr != nil {
		err = fmt.Errorf("%w: %v", ErrConfigLoad, perr)
		logger.Warn("remote config has unknown provider", "user_id", userID, "error", err)
		return LoadResult{Err: err}
	}
	return LoadResult{Record: record}
}

// SaveRemote upserts record, filling UserID from the identity supplier when
// empty. Recoverable failures are handed to the outbox when one is set.
func (s *Store) SaveRemote(ctx context.Context, record models.ConfigRecord) SaveResult {
	if s.remote == nil {
		return SaveResult{Outcome: SaveSkipped}
	}
	if record.UserID == "" {
		userID, ok := s.identity.UserID()
		if !ok {
			return SaveResult{Outcome: SaveDeferred}
		}
		record.UserID = userID
	}

	err := s.upsert(ctx, record)
	switch {
	case err == nil:
		return SaveResult{Outcome: SaveSaved}
	case errors.Is(err, storage.ErrStaleRevision):
		logger.Debug("remote config superseded", "user_id", record.UserID, "revision", record.Revision)
		return SaveResult{Outcome: SaveSuperseded}
	}

	result := SaveResult{
		Outcome: SaveLocalOnly,
		Err:     fmt.Errorf("%w: %v", ErrConfigSave, err),
	}
	logger.Warn("remote config save failed", "user_id", record.UserID, "revision", record.Revision, "error", err)

	if s.outbox != nil && utils.IsRecoverableError(err) {
		if qerr := s.outbox.Enqueue(context.WithoutCancel(ctx), record); qerr != nil {
			logger.Error("failed to queue config save", "user_id", record.UserID, "error", qerr)
		} else {
			result.Queued = true
		}
	}
	return result
}

func (s *Store) upsert(ctx context.Context, record models.ConfigRecord) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.remote.Upsert(ctx, &record)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
