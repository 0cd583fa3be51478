package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pnlcal/internal/amqp"
	"pnlcal/internal/cache"
	"pnlcal/internal/core"
	"pnlcal/internal/services"
	"pnlcal/internal/storage"
	"pnlcal/internal/store"
	"pnlcal/internal/store/local"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
	caches *cache.Manager
}

// NewFactory creates a backend factory. Range caches it creates are
// registered with caches for periodic sweeping when caches is non-nil.
func NewFactory(logger *slog.Logger, caches *cache.Manager) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
		caches: caches,
	}
}

// storeWithPing is what every concrete store offers.
type storeWithPing interface {
	store.EntryStore
	store.EntryGetter
	Ping(ctx context.Context) error
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		raw     storeWithPing
		closers []func() error
		err     error
	)
	switch config.Type {
	case PostgresBackend:
		raw, closers, err = f.createPostgresStore(ctx, config)
	case SQLiteBackend:
		raw, closers, err = f.createSQLiteStore(config)
	case LocalBackend:
		raw, closers, err = f.createLocalStore(ctx, config)
	default:
		err = fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	opts := []services.Option{}
	if config.CacheTTL > 0 {
		size := config.CacheSize
		if size <= 0 {
			size = 256
		}
		rangeCache := cache.NewLRUCache[[]core.Entry](size, config.CacheTTL)
		if f.caches != nil {
			f.caches.Register(rangeCache)
		}
		opts = append(opts, services.WithCache(rangeCache))
	}

	if config.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without change events", "error", err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			opts = append(opts, services.WithPublisher(amqpClient))
			closers = append(closers, amqpClient.Close)
		}
	}

	svc := services.NewEntryService(raw, opts...)

	return &BackendResult{
		Backend: svc,
		Type:    config.Type,
		Cleanup: func() error {
			var errs []error
			for _, c := range closers {
				if err := c(); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) createPostgresStore(ctx context.Context, config Config) (storeWithPing, []func() error, error) {
	repo, err := storage.NewPostgresRepository(ctx, config.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}
	f.logger.Info("Initialized postgres backend")
	return repo, []func() error{repo.Close}, nil
}

func (f *DefaultFactory) createSQLiteStore(config Config) (storeWithPing, []func() error, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return repo, []func() error{repo.Close}, nil
}

func (f *DefaultFactory) createLocalStore(ctx context.Context, config Config) (storeWithPing, []func() error, error) {
	if config.LocalKV == "redis" {
		kv, err := local.NewRedisKV(ctx, config.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize redis store: %w", err)
		}
		f.logger.Info("Initialized local backend", "kv", "redis", "key", config.LocalStoreKey)
		return local.New(kv, local.WithKey(config.LocalStoreKey)), []func() error{kv.Close}, nil
	}

	dir := config.LocalStorePath
	if dir == "" {
		dir = "data"
	}
	kv, err := local.NewFileKV(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize file store: %w", err)
	}
	f.logger.Warn("Running in local fallback mode; entries are stored on this machine only",
		"kv", "file",
		"directory", dir,
		"key", config.LocalStoreKey)
	return local.New(kv, local.WithKey(config.LocalStoreKey)), nil, nil
}
