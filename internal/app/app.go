package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ai_config/internal/auth"
	"ai_config/internal/config"
	"ai_config/internal/configstore"
	"ai_config/internal/consumers"
	"ai_config/internal/coordinator"
	"ai_config/internal/logging"
	"ai_config/internal/models"
	"ai_config/internal/providers"
	"ai_config/internal/queue"
	"ai_config/internal/storage"
)

var logger = logging.New("app")

// HKDF info strings separating the keys derived from ENCRYPTION_KEY.
const (
	localKeyInfo  = "aiconfig/local-cache"
	remoteKeyInfo = "aiconfig/remote-record"
)

// Dependencies aggregates everything a front end needs.
type Dependencies struct {
	Config      *config.Config
	Identity    auth.IdentitySupplier
	Store       *configstore.Store
	Factory     *providers.Factory
	Coordinator *coordinator.Coordinator
	Reports     *consumers.ReportGenerator
	Receipts    *consumers.ReceiptExtractor

	// Optional infrastructure, nil when not configured
	DB     *storage.DB
	Redis  *redis.Client
	Outbox *configstore.OutboxWorker
}

// Build wires the configured backends together. The coordinator is created
// but not started.
func Build(ctx context.Context, cfg *config.Config, opts ...coordinator.Option) (*Dependencies, error) {
	if err := logging.SetLevelString(cfg.LogLevel); err != nil {
		logger.Warn("ignoring LOG_LEVEL", "value", cfg.LogLevel, "error", err)
	}

	deps := &Dependencies{Config: cfg}
	ok := false
	defer func() {
		if !ok {
			deps.closeInfra()
		}
	}()

	if cfg.NeedsRedis() {
		client, err := storage.NewRedisClient(storage.RedisConfig{
			Address:      cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		deps.Redis = client
	}

	localEnc, remoteEnc, err := encryptions(cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}

	local, err := buildLocal(cfg, deps.Redis, localEnc)
	if err != nil {
		return nil, err
	}

	deps.Identity = buildIdentity(cfg)

	remote, err := deps.buildRemote(ctx, cfg, remoteEnc)
	if err != nil {
		return nil, err
	}

	storeOpts := []configstore.Option{configstore.WithRemoteTimeout(cfg.Remote.Timeout)}
	if remote != nil {
		storeOpts = append(storeOpts, configstore.WithRemote(remote))
		if cfg.Outbox.Enabled {
			worker, err := deps.buildOutbox(cfg, remote)
			if err != nil {
				return nil, err
			}
			worker.Start(context.WithoutCancel(ctx))
			deps.Outbox = worker
			storeOpts = append(storeOpts, configstore.WithOutbox(worker))
		}
	}
	deps.Store = configstore.NewStore(local, deps.Identity, storeOpts...)

	factory, err := buildFactory(cfg)
	if err != nil {
		return nil, err
	}
	deps.Factory = factory

	deps.Coordinator = coordinator.New(deps.Store, deps.Factory, opts...)
	deps.Reports = consumers.NewReportGenerator(deps.Coordinator)
	deps.Receipts = consumers.NewReceiptExtractor(deps.Coordinator)

	ok = true
	return deps, nil
}

func encryptions(key []byte) (local, remote *storage.Encryption, err error) {
	if len(key) == 0 {
		return nil, nil, nil
	}
	localKey, err := storage.DeriveKey(key, localKeyInfo)
	if err != nil {
		return nil, nil, err
	}
	remoteKey, err := storage.DeriveKey(key, remoteKeyInfo)
	if err != nil {
		return nil, nil, err
	}
	if local, err = storage.NewEncryption(localKey); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	if remote, err = storage.NewEncryption(remoteKey); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	return local, remote, nil
}

func buildLocal(cfg *config.Config, client *redis.Client, enc *storage.Encryption) (configstore.Local, error) {
	switch cfg.LocalCache.Backend {
	case "file":
		return configstore.NewFileLocal(cfg.LocalCache.Path, enc), nil
	case "redis":
		if client == nil {
			return nil, errors.New("redis local cache needs a Redis client")
		}
		return configstore.NewRedisLocal(client, cfg.LocalCache.Key, enc), nil
	case "memory":
		return configstore.NewMemoryLocal(), nil
	default:
		return nil, fmt.Errorf("unknown local cache backend %q", cfg.LocalCache.Backend)
	}
}

func buildIdentity(cfg *config.Config) auth.IdentitySupplier {
	if cfg.Identity.Token != "" {
		return auth.NewTokenSupplier(cfg.Identity.Token, cfg.Identity.JWTSecret)
	}
	return auth.NewStaticSupplier(cfg.Identity.UserID)
}

func (d *Dependencies) buildRemote(ctx context.Context, cfg *config.Config, enc *storage.Encryption) (configstore.Remote, error) {
	switch cfg.Remote.Backend {
	case "postgres":
		db, err := storage.NewDB(storage.DBConfig{
			DSN:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			QueryTimeout:    cfg.Database.QueryTimeout,
			ConfigCacheSize: cfg.Cache.ConfigCacheSize,
			ConfigCacheTTL:  cfg.Cache.ConfigCacheTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		d.DB = db

		repo := db.NewConfigRepository(enc)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare schema: %w", err)
		}
		return repo, nil
	case "memory":
		return configstore.NewMemoryRemote(), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown remote backend %q", cfg.Remote.Backend)
	}
}

func (d *Dependencies) buildOutbox(cfg *config.Config, remote configstore.Remote) (*configstore.OutboxWorker, error) {
	qcfg := queue.DefaultConfig(cfg.Outbox.QueueName)
	qcfg.BatchSize = cfg.Outbox.BatchSize
	qcfg.BatchTimeout = cfg.Outbox.BatchTimeout
	qcfg.MaxRetries = cfg.Outbox.MaxRetries
	qcfg.RetryBackoff = cfg.Outbox.RetryBackoff

	var q queue.Queue
	var dlq queue.DeadLetterQueue
	switch cfg.Outbox.Backend {
	case "redis":
		var err error
		if q, err = queue.NewRedisQueue(d.Redis, qcfg); err != nil {
			return nil, fmt.Errorf("failed to create outbox queue: %w", err)
		}
		if dlq, err = queue.NewRedisDeadLetterQueue(d.Redis, qcfg); err != nil {
			return nil, fmt.Errorf("failed to create outbox DLQ: %w", err)
		}
	default:
		q = queue.NewMemoryQueue(qcfg)
		dlq = queue.NewMemoryDeadLetterQueue()
	}

	return configstore.NewOutboxWorker(q, dlq, remote, qcfg), nil
}

func buildFactory(cfg *config.Config) (*providers.Factory, error) {
	opts := []providers.FactoryOption{
		providers.WithRequestTimeout(cfg.Provider.RequestTimeout),
		providers.WithOpenAIOrganization(cfg.Provider.OpenAIOrg),
	}
	for name, url := range cfg.Provider.BaseURLs {
		p, err := models.ParseProviderID(name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, providers.WithBaseURL(p, url))
	}
	return providers.NewFactory(opts...), nil
}

// Close shuts the coordinator down, then the workers and connections.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error
	if d.Coordinator != nil {
		if err := d.Coordinator.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("coordinator: %w", err))
		}
	}
	d.closeInfra()
	return errors.Join(errs...)
}

func (d *Dependencies) closeInfra() {
	if d.Outbox != nil {
		_ = d.Outbox.Stop()
		d.Outbox = nil
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
		d.DB = nil
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			logger.Warn("failed to close Redis", "error", err)
		}
		d.Redis = nil
	}
}
