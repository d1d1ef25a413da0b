package coordinator

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ai_config/internal/configstore"
	"ai_config/internal/logging"
	"ai_config/internal/models"
	"ai_config/internal/providers"
	"ai_config/internal/utils"
)

var logger = logging.New("coordinator")

// Store is the persistence the coordinator needs. *configstore.Store
// satisfies it.
type Store interface {
	UserID() (string, bool)
	RemoteEnabled() bool
	LoadLocal() (*models.CachedConfig, bool)
	SaveLocal(entry models.CachedConfig) error
	LoadRemote(ctx context.Context, userID string) configstore.LoadResult
	SaveRemote(ctx context.Context, record models.ConfigRecord) configstore.SaveResult
}

// ServiceFactory builds capability services. *providers.Factory satisfies it.
type ServiceFactory interface {
	CreateService(p models.ProviderID, cfg models.ModelConfig) (providers.Service, bool)
}

var (
	_ Store          = (*configstore.Store)(nil)
	_ ServiceFactory = (*providers.Factory)(nil)
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithKeepAPIKeyOnSwitch controls whether SetProvider carries the current
// API key over to the new provider. Enabled by default.
func WithKeepAPIKeyOnSwitch(keep bool) Option {
	return func(c *Coordinator) { c.keepKeyOnSwitch = keep }
}

// WithDefaultProvider sets the provider used until a configuration is loaded.
func WithDefaultProvider(p models.ProviderID) Option {
	return func(c *Coordinator) { c.provider = p }
}

// WithNotifier receives soft persistence notices.
func WithNotifier(fn func(Notice)) Option {
	return func(c *Coordinator) { c.notifier = fn }
}

// WithClock replaces the time source used for revisions.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator owns the current provider, configuration and service. All
// state changes happen under one lock, so readers always see a service that
// matches the provider and configuration next to it.
type Coordinator struct {
	store   Store
	factory ServiceFactory

	keepKeyOnSwitch bool
	notifier        func(Notice)
	now             func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	phase        Phase
	remote       RemoteState
	remoteUser   string
	provider     models.ProviderID
	config       models.ModelConfig
	service      providers.Service
	configLoaded bool
	dirty        bool // mutated before the remote load for remoteUser resolved
	revision     int64
	version      uint64
	closed       bool
	pending      int
	idle         chan struct{}

	subMu      sync.Mutex
	subs       map[int]*subscriber
	nextSub    int
	published  uint64
	outgoing   []Snapshot
	delivering bool
}

type subscriber struct {
	fn        func(Snapshot)
	cancelled atomic.Bool
}

// New creates a coordinator. Call Start before using it.
func New(store Store, factory ServiceFactory, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		store:           store,
		factory:         factory,
		keepKeyOnSwitch: true,
		now:             time.Now,
		ctx:             ctx,
		cancel:          cancel,
		provider:        providers.AvailableProviders()[0],
		subs:            make(map[int]*subscriber),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.config = providers.DefaultConfig(c.provider)
	return c
}

// Start loads the local cache synchronously, then issues the remote load in
// the background. The local configuration, if any, is usable when Start
// returns.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.phase != PhaseUninitialized {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.phase = PhaseLoadingLocal

	if entry, ok := c.store.LoadLocal(); ok {
		c.provider = entry.Provider
		c.config = mergeStored(entry.Provider, entry.APIKey, entry.ModelName)
		c.configLoaded = true
		logger.Info("local config adopted", "provider", c.provider, "model", c.config.ModelName,
			"api_key", utils.MaskSecret(c.config.APIKey))
	}
	c.recompute()
	c.phase = PhaseLoadingRemote
	c.issueRemoteLoad()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
	return nil
}

// IdentityChanged re-reads the identity supplier. A newly signed-in user gets
// a remote load with first-resolution precedence.
func (c *Coordinator) IdentityChanged() {
	c.mu.Lock()
	if c.closed || c.phase == PhaseUninitialized || c.remote == RemoteDisabled {
		c.mu.Unlock()
		return
	}

	userID, ok := c.store.UserID()
	switch {
	case !ok:
		c.remote = RemoteDeferred
		c.remoteUser = ""
		c.phase = PhaseReady
	case userID == c.remoteUser:
		c.mu.Unlock()
		return
	default:
		c.phase = PhaseLoadingRemote
		c.issueRemoteLoad()
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
}

// issueRemoteLoad starts the remote load for the current identity. Callers
// hold c.mu.
func (c *Coordinator) issueRemoteLoad() {
	if !c.store.RemoteEnabled() {
		c.remote = RemoteDisabled
		c.phase = PhaseReady
		return
	}

	userID, ok := c.store.UserID()
	if !ok {
		logger.Debug("remote load deferred until sign-in")
		c.remote = RemoteDeferred
		c.remoteUser = ""
		c.phase = PhaseReady
		return
	}

	c.remote = RemoteInFlight
	c.remoteUser = userID
	c.dirty = false
	c.track()
	go func() {
		defer c.untrack()
		res := c.store.LoadRemote(c.ctx, userID)
		c.resolveRemote(userID, res)
	}()
}

// resolveRemote applies the first remote result for userID. Results for an
// identity that is no longer current, or that arrive after the first, are
// dropped.
func (c *Coordinator) resolveRemote(userID string, res configstore.LoadResult) {
	c.mu.Lock()
	if c.closed || c.remote != RemoteInFlight || c.remoteUser != userID {
		c.mu.Unlock()
		logger.Debug("ignoring late remote config", "user_id", userID)
		return
	}
	c.remote = RemoteResolved
	c.phase = PhaseReady

	var notice *Notice
	var seed *models.ConfigRecord

	switch {
	case res.Err != nil:
		notice = &Notice{Kind: NoticeRemoteLoadFailed, Err: res.Err}

	case res.Found() && c.dirty:
		// The user changed the configuration while the load was in flight.
		// Keep that change and make sure it outranks the record just read.
		logger.Info("keeping local edits over remote config", "user_id", userID)
		if res.Record.Revision > c.revision {
			c.revision = res.Record.Revision
		}
		c.revision = c.nextRevision()
		rec := c.recordLocked(userID)
		seed = &rec

	case res.Found():
		rec := res.Record
		c.provider = rec.Provider
		c.config = mergeStored(rec.Provider, rec.APIKey, rec.ModelName)
		if rec.Revision > c.revision {
			c.revision = rec.Revision
		}
		c.configLoaded = true
		c.recompute()
		logger.Info("remote config adopted", "user_id", userID, "provider", c.provider,
			"model", c.config.ModelName, "api_key", utils.MaskSecret(c.config.APIKey))
		if err := c.store.SaveLocal(c.cachedLocked()); err != nil {
			notice = &Notice{Kind: NoticeLocalSaveFailed, Err: err}
		}

	case c.config.HasCredential():
		logger.Info("seeding remote config", "user_id", userID, "provider", c.provider)
		c.revision = c.nextRevision()
		rec := c.recordLocked(userID)
		seed = &rec
	}

	if seed != nil {
		c.saveRemoteLocked(*seed)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if notice != nil {
		c.notify(*notice)
	}
	c.publish(snap)
}

// SetProvider switches provider. Model parameters reset to the new
// provider's defaults; the API key is kept unless disabled with
// WithKeepAPIKeyOnSwitch(false).
func (c *Coordinator) SetProvider(p models.ProviderID) error {
	if _, err := models.ParseProviderID(string(p)); err != nil {
		return err
	}
	return c.mutate(func() error {
		apiKey := c.config.APIKey
		c.provider = p
		c.config = providers.DefaultConfig(p)
		if c.keepKeyOnSwitch {
			c.config.APIKey = apiKey
		}
		return nil
	})
}

// SetAPIKey replaces the credential. An empty key leaves the coordinator
// unconfigured.
func (c *Coordinator) SetAPIKey(apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	return c.mutate(func() error {
		c.config.APIKey = apiKey
		return nil
	})
}

// SetModelName selects one of the current provider's models.
func (c *Coordinator) SetModelName(name string) error {
	return c.mutate(func() error {
		if !slices.Contains(providers.AvailableModels(c.provider), name) {
			return fmt.Errorf("%w: %s does not offer %q", ErrUnknownModel, c.provider, name)
		}
		c.config.ModelName = name
		return nil
	})
}

// ResetConfig restores the current provider's default parameters. The API
// key is kept, locally and remotely.
func (c *Coordinator) ResetConfig() error {
	return c.mutate(func() error {
		apiKey := c.config.APIKey
		c.config = providers.DefaultConfig(c.provider)
		c.config.APIKey = apiKey
		return nil
	})
}

// mutate applies fn, writes the local cache, rebuilds the service and then
// submits the full snapshot to the remote store in the background.
func (c *Coordinator) mutate(fn func() error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.phase == PhaseUninitialized {
		c.mu.Unlock()
		return ErrNotStarted
	}
	if err := fn(); err != nil {
		c.mu.Unlock()
		return err
	}

	if c.remote == RemoteInFlight {
		c.dirty = true
	}
	c.configLoaded = true
	c.revision = c.nextRevision()
	c.recompute()

	var notice *Notice
	if err := c.store.SaveLocal(c.cachedLocked()); err != nil {
		logger.Error("failed to save local config", "error", err)
		notice = &Notice{Kind: NoticeLocalSaveFailed, Err: err}
	}

	if c.remote != RemoteDisabled {
		if userID, ok := c.store.UserID(); ok {
			c.saveRemoteLocked(c.recordLocked(userID))
		}
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if notice != nil {
		c.notify(*notice)
	}
	c.publish(snap)
	return nil
}

// saveRemoteLocked submits record in the background. Callers hold c.mu.
func (c *Coordinator) saveRemoteLocked(record models.ConfigRecord) {
	c.track()
	go func() {
		defer c.untrack()
		res := c.store.SaveRemote(c.ctx, record)
		switch res.Outcome {
		case configstore.SaveLocalOnly:
			c.notify(Notice{Kind: NoticeSavedLocally, Err: res.Err, Queued: res.Queued})
		case configstore.SaveSuperseded:
			logger.Debug("remote save superseded", "revision", record.Revision)
			if c.outranked(record.Revision) {
				c.notify(Notice{
					Kind: NoticeSavedLocally,
					Err:  fmt.Errorf("%w: %w", configstore.ErrConfigSave, ErrRemoteNewer),
				})
			}
		case configstore.SaveSaved:
			logger.Debug("remote save done", "revision", record.Revision)
		}
	}()
}

// outranked reports whether a rejected revision is still the latest local
// change. While a remote load is in flight the load reconciles it instead.
func (c *Coordinator) outranked(revision int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revision == revision && c.remote != RemoteInFlight
}

// nextRevision returns a revision newer than every one issued or adopted so
// far. Wall-clock based so that a fresh process outranks older snapshots.
func (c *Coordinator) nextRevision() int64 {
	next := c.revision + 1
	if now := c.now().UnixNano(); now > next {
		next = now
	}
	return next
}

// recompute rebuilds the service from the current provider and config.
// Callers hold c.mu.
func (c *Coordinator) recompute() {
	c.service = nil
	if svc, ok := c.factory.CreateService(c.provider, c.config); ok {
		c.service = svc
	}
}

func (c *Coordinator) cachedLocked() models.CachedConfig {
	return models.CachedConfig{
		Provider:  c.provider,
		APIKey:    c.config.APIKey,
		ModelName: c.config.ModelName,
	}
}

func (c *Coordinator) recordLocked(userID string) models.ConfigRecord {
	return models.ConfigRecord{
		UserID:    userID,
		Provider:  c.provider,
		APIKey:    c.config.APIKey,
		ModelName: c.config.ModelName,
		Revision:  c.revision,
	}
}

func (c *Coordinator) snapshotLocked() Snapshot {
	c.version++
	return Snapshot{
		Provider:     c.provider,
		Config:       c.config,
		Configured:   c.service != nil,
		ConfigLoaded: c.configLoaded,
		Phase:        c.phase,
		Remote:       c.remote,
		Revision:     c.revision,
		version:      c.version,
	}
}

// mergeStored rebuilds a full config from the persisted fields. Generation
// parameters are not persisted and come from the provider defaults, as does
// the model when the stored one is not offered by p.
func mergeStored(p models.ProviderID, apiKey, modelName string) models.ModelConfig {
	cfg := providers.DefaultConfig(p)
	cfg.APIKey = apiKey
	if modelName != "" && slices.Contains(providers.AvailableModels(p), modelName) {
		cfg.ModelName = modelName
	}
	return cfg
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Provider:     c.provider,
		Config:       c.config,
		Configured:   c.service != nil,
		ConfigLoaded: c.configLoaded,
		Phase:        c.phase,
		Remote:       c.remote,
		Revision:     c.revision,
		version:      c.version,
	}
}

// Service returns the service bound to the current configuration, or false
// when no credential is configured.
func (c *Coordinator) Service() (providers.Service, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.service, c.service != nil
}

// Subscribe calls fn with every new snapshot until the returned cancel
// function is called. Snapshots are delivered in order; an older snapshot
// is never delivered after a newer one. fn may call cancel or mutate the
// coordinator; snapshots produced meanwhile are delivered after fn returns.
func (c *Coordinator) Subscribe(fn func(Snapshot)) (cancel func()) {
	s := &subscriber{fn: fn}
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = s
	c.subMu.Unlock()

	return func() {
		s.cancelled.Store(true)
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// publish queues snap for delivery. The first caller to find no delivery
// in progress drains the queue, calling subscribers without subMu held.
func (c *Coordinator) publish(snap Snapshot) {
	c.subMu.Lock()
	if snap.version <= c.published {
		c.subMu.Unlock()
		return
	}
	c.published = snap.version
	c.outgoing = append(c.outgoing, snap)
	if c.delivering {
		c.subMu.Unlock()
		return
	}
	c.delivering = true

	for len(c.outgoing) > 0 {
		next := c.outgoing[0]
		c.outgoing = c.outgoing[1:]
		targets := make([]*subscriber, 0, len(c.subs))
		for _, s := range c.subs {
			targets = append(targets, s)
		}
		c.subMu.Unlock()

		for _, s := range targets {
			if !s.cancelled.Load() {
				s.fn(next)
			}
		}

		c.subMu.Lock()
	}
	c.delivering = false
	c.subMu.Unlock()
}

func (c *Coordinator) notify(n Notice) {
	logger.Warn("config notice", "kind", n.Kind, "error", n.Err)
	if c.notifier != nil {
		c.notifier(n)
	}
}

// track and untrack count background loads and saves for WaitIdle.
// track is called with c.mu held.
func (c *Coordinator) track() {
	if c.pending == 0 {
		c.idle = make(chan struct{})
	}
	c.pending++
}

func (c *Coordinator) untrack() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending--
	if c.pending == 0 {
		close(c.idle)
	}
}

// WaitIdle blocks until no remote load or save is in flight.
func (c *Coordinator) WaitIdle(ctx context.Context) error {
	c.mu.Lock()
	if c.pending == 0 {
		c.mu.Unlock()
		return nil
	}
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further mutations and waits for in-flight remote work until
// ctx ends, after which that work is cancelled.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.WaitIdle(ctx)
	c.cancel()
	return err
}
