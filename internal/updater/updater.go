package updater

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"go-offline-cache/internal/config"
	"go-offline-cache/internal/scheduler"
)

// Registrar brings a version to active
type Registrar interface {
	Register(ctx context.Context, version string, manifest []string) error
	ActiveVersion() string
}

// Updater re-registers the cache whenever the configured version changes.
// Changes are picked up from file system events on the config file and
// from a periodic check, which also retries failed installs.
type Updater struct {
	configPath string
	registrar  Registrar
	cfg        config.UpdatesConfig
	logger     *zap.Logger

	scheduler *scheduler.Scheduler
	watcher   *fsnotify.Watcher
	triggers  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an updater for the config file at configPath
func New(configPath string, registrar Registrar, cfg config.UpdatesConfig, logger *zap.Logger) *Updater {
	ctx, cancel := context.WithCancel(context.Background())
	u := &Updater{
		configPath: filepath.Clean(configPath),
		registrar:  registrar,
		cfg:        cfg,
		logger:     logger,
		triggers:   make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}
	u.scheduler = scheduler.New(cfg.CheckInterval, u.trigger)
	return u
}

// Check reloads the config and registers its version if it is not active
func (u *Updater) Check(ctx context.Context) error {
	// Reload quietly, the periodic check would flood the log otherwise
	cfg, err := config.LoadConfig(u.configPath, u.logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel)))
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	active := u.registrar.ActiveVersion()
	if cfg.Version == active {
		return nil
	}

	u.logger.Info("Cache version changed",
		zap.String("from", active),
		zap.String("to", cfg.Version))
	return u.registrar.Register(ctx, cfg.Version, cfg.Precache.Manifest)
}

// Start begins watching for version changes
func (u *Updater) Start() error {
	if u.cfg.Watch {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create config watcher: %w", err)
		}
		// Watch the directory: editors and config maps replace the file
		if err := watcher.Add(filepath.Dir(u.configPath)); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("watch config directory: %w", err)
		}
		u.watcher = watcher

		u.wg.Add(1)
		go u.watch()
	}

	u.wg.Add(1)
	go u.run()

	u.scheduler.Start()
	u.logger.Info("Version updater started",
		zap.String("config", u.configPath),
		zap.Bool("watch", u.cfg.Watch),
		zap.Duration("check_interval", u.cfg.CheckInterval))
	return nil
}

// Stop halts watching and waits for an in-flight check
func (u *Updater) Stop() {
	u.scheduler.Stop()
	u.cancel()
	if u.watcher != nil {
		_ = u.watcher.Close()
	}
	u.wg.Wait()
}

// trigger requests a check; requests arriving during a check are coalesced
func (u *Updater) trigger() {
	select {
	case u.triggers <- struct{}{}:
	default:
	}
}

func (u *Updater) run() {
	defer u.wg.Done()
	for {
		select {
		case <-u.ctx.Done():
			return
		case <-u.triggers:
			if err := u.Check(u.ctx); err != nil {
				u.logger.Warn("Version check failed", zap.Error(err))
			}
		}
	}
}

func (u *Updater) watch() {
	defer u.wg.Done()
	for {
		select {
		case <-u.ctx.Done():
			return
		case event, ok := <-u.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != u.configPath {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				u.logger.Debug("Config file changed", zap.String("op", event.Op.String()))
				u.trigger()
			}
		case err, ok := <-u.watcher.Errors:
			if !ok {
				return
			}
			u.logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}
