package main

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"go-offline-cache/internal/cache"
	"go-offline-cache/internal/cache/l1"
	"go-offline-cache/internal/cache/l2"
	"go-offline-cache/internal/cache/memory"
	"go-offline-cache/internal/cache/multi"
	"go-offline-cache/internal/cache/noop"
	"go-offline-cache/internal/cache/sqlite"
	"go-offline-cache/internal/config"
	"go-offline-cache/internal/httpserver"
	"go-offline-cache/internal/interfaces"
	"go-offline-cache/internal/manager"
	"go-offline-cache/internal/models"
	"go-offline-cache/internal/network"
	"go-offline-cache/internal/updater"
)

// CompositionRoot holds all application dependencies and wires them
// together in one place
type CompositionRoot struct {
	// Configuration
	ConfigPath string
	Config     *config.Config
	Logger     *zap.Logger

	// Cache components
	L1Cache    interfaces.Cache
	L2Cache    interfaces.Cache
	Store      *multi.MultiCache
	KeyBuilder interfaces.KeyBuilder

	// Services
	Fetcher    *network.HTTPFetcher
	Manager    *manager.Manager
	Updater    *updater.Updater
	HTTPServer *httpserver.Server

	// storageOnly roots open just the persistent level and fail when it
	// cannot be opened
	storageOnly bool
}

// NewCompositionRoot creates and initializes all application dependencies.
//
// Initialization order:
// 1. Logger (needed by all other components)
// 2. Configuration
// 3. Cache components (L1, L2, multi-level store, key builder)
// 4. Services (fetcher, manager, updater)
// 5. HTTP server
func NewCompositionRoot(configPath string) (*CompositionRoot, error) {
	return newCompositionRoot(&CompositionRoot{ConfigPath: configPath})
}

// NewStorageRoot wires the persistent L2 level and a manager over it for
// offline inspection of stored generations. It starts no background work,
// and a backend that cannot be opened or holds nothing across processes is
// an error.
func NewStorageRoot(configPath string) (*CompositionRoot, error) {
	return newCompositionRoot(&CompositionRoot{ConfigPath: configPath, storageOnly: true})
}

func newCompositionRoot(root *CompositionRoot) (*CompositionRoot, error) {
	// Initialize logger first
	if err := root.initLogger(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Load configuration
	if err := root.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize cache components
	if err := root.initCacheComponents(); err != nil {
		return nil, fmt.Errorf("failed to initialize cache components: %w", err)
	}

	// Initialize services
	if err := root.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if root.storageOnly {
		return root, nil
	}

	// Initialize HTTP server
	if err := root.initHTTPServer(); err != nil {
		return nil, fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return root, nil
}

// initLogger initializes the application logger
func (r *CompositionRoot) initLogger() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	r.Logger = logger
	return nil
}

// loadConfig loads the application configuration
func (r *CompositionRoot) loadConfig() error {
	cfg, err := config.LoadConfig(r.ConfigPath, r.Logger)
	if err != nil {
		return err
	}

	r.Config = cfg
	return nil
}

// initCacheComponents initializes all cache-related components
func (r *CompositionRoot) initCacheComponents() error {
	// Initialize L1 cache (BigCache)
	if err := r.initL1Cache(); err != nil {
		return fmt.Errorf("failed to initialize L1 cache: %w", err)
	}

	// Initialize L2 cache (KeyDB, SQLite or in-memory)
	if err := r.initL2Cache(); err != nil {
		return fmt.Errorf("failed to initialize L2 cache: %w", err)
	}

	// L2 goes last: it is the authoritative level
	levels := []interfaces.Cache{r.L1Cache, r.L2Cache}
	if r.storageOnly {
		levels = []interfaces.Cache{r.L2Cache}
	}
	r.Store = multi.NewMultiCache(levels, r.Logger, r.Config.MultiCache.EnablePropagation)

	// Initialize key builder
	r.KeyBuilder = cache.NewKeyBuilder()

	return nil
}

// initL1Cache initializes the L1 cache (BigCache)
func (r *CompositionRoot) initL1Cache() error {
	if r.Config.L1.Enabled && !r.storageOnly {
		l1Cache, err := l1.NewBigCache(&r.Config.L1, r.Logger)
		if err != nil {
			return err
		}
		r.L1Cache = l1Cache
		r.Logger.Info("BigCache (L1) initialized", zap.Int("size_mb", r.Config.L1.Size))
	} else {
		r.L1Cache = noop.NewNoOpCache()
		r.Logger.Info("BigCache (L1) disabled")
	}
	return nil
}

// initL2Cache initializes the persistent L2 cache
func (r *CompositionRoot) initL2Cache() error {
	switch r.Config.L2.Backend {
	case models.StorageBackendKeyDB:
		keydbURL := GetKeyDBURL(r.Logger)

		// Create KeyDB client
		keydbClient, err := l2.NewRedisKeyDbClient(&r.Config.L2.KeyDB, keydbURL, r.Logger)
		if err != nil {
			if r.storageOnly {
				return fmt.Errorf("failed to connect to KeyDB: %w", err)
			}
			r.Logger.Warn("Failed to connect to KeyDB, falling back to in-memory L2 cache",
				zap.Error(err))
			r.L2Cache = memory.New()
			return nil
		}

		// Create L2 cache with the client
		r.L2Cache = l2.NewKeyDBCache(&r.Config.L2.KeyDB, keydbClient, r.Logger)
		r.Logger.Info("KeyDB (L2) initialized")

	case models.StorageBackendSQLite:
		sqliteCache, err := sqlite.New(r.Config.L2.SQLite.Path, r.Logger)
		if err != nil {
			return err
		}
		r.L2Cache = sqliteCache
		r.Logger.Info("SQLite (L2) initialized", zap.String("path", r.Config.L2.SQLite.Path))

	case models.StorageBackendMemory:
		if r.storageOnly {
			return fmt.Errorf("l2 backend %q keeps no generations across processes", r.Config.L2.Backend)
		}
		r.L2Cache = memory.New()
		r.Logger.Info("In-memory (L2) initialized")

	default:
		return fmt.Errorf("unsupported l2 backend %q", r.Config.L2.Backend)
	}
	return nil
}

// initServices initializes application services
func (r *CompositionRoot) initServices() error {
	origin, err := r.Config.OriginURL()
	if err != nil {
		return err
	}

	r.Fetcher = network.NewHTTPFetcher(origin, r.Config.Origin.Timeout, r.Logger)

	r.Manager = manager.New(
		r.Store,
		r.Fetcher,
		r.KeyBuilder,
		origin,
		r.Logger,
		manager.WithConcurrency(r.Config.Precache.Concurrency),
		manager.WithOfflineFallback(r.Config.OfflineFallback),
	)

	if !r.storageOnly {
		r.Updater = updater.New(r.ConfigPath, r.Manager, r.Config.Updates, r.Logger)
	}
	return nil
}

// initHTTPServer initializes the HTTP server
func (r *CompositionRoot) initHTTPServer() error {
	origin, err := r.Config.OriginURL()
	if err != nil {
		return err
	}

	r.HTTPServer = httpserver.NewServer(
		r.Manager,
		origin,
		r.Config.Server,
		r.Logger,
	)

	return nil
}

// Cleanup performs cleanup of all resources
func (r *CompositionRoot) Cleanup() error {
	var errs []error

	// Close L1 cache
	if closer, ok := r.L1Cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close L1 cache: %w", err))
		}
	}

	// Close L2 cache
	if closer, ok := r.L2Cache.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close L2 cache: %w", err))
		}
	}

	// Sync logger last
	if r.Logger != nil {
		_ = r.Logger.Sync()
	}

	return errors.Join(errs...)
}
