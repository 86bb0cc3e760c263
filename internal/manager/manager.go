package manager

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"go-offline-cache/internal/interfaces"
	"go-offline-cache/internal/metrics"
	"go-offline-cache/internal/models"
)

var (
	// ErrInstallFailed is returned when any manifest resource could not be
	// fetched or stored. Nothing of the attempt is committed.
	ErrInstallFailed = errors.New("install failed")
	// ErrNotInstalled is returned by Activate for a version that has not
	// completed Install
	ErrNotInstalled = errors.New("version not installed")
	// ErrActiveGeneration is returned when deleting the generation in use
	ErrActiveGeneration = errors.New("generation is active")
	// ErrBusy is returned when a lifecycle phase is already running for a version
	ErrBusy = errors.New("lifecycle phase in progress")
)

const defaultConcurrency = 4

// Manager is the offline cache manager: it pre-caches manifests into
// versioned generations, activates one generation at a time and answers
// intercepted requests cache-first.
//
// Cached content lives only in the store. The manager keeps lifecycle
// state per version and the name of the active version.
type Manager struct {
	store       interfaces.LevelAwareCache
	fetcher     interfaces.Fetcher
	keyBuilder  interfaces.KeyBuilder
	origin      *url.URL
	logger      *zap.Logger
	concurrency int
	fallback    string

	mu     sync.RWMutex
	states map[string]models.State
	active string

	// held shared by runtime cache writes and exclusively while generations
	// are deleted, so a write never lands in a generation being removed
	genMu sync.RWMutex

	// serializes Register so install and activate never overlap
	registerMu sync.Mutex
}

// Option configures a Manager
type Option func(*Manager)

// WithConcurrency bounds the number of parallel manifest fetches
func WithConcurrency(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithOfflineFallback answers failed navigations with the cached copy of path
func WithOfflineFallback(path string) Option {
	return func(m *Manager) {
		m.fallback = path
	}
}

// New creates a manager. Manifest paths and the offline fallback are
// resolved against origin.
func New(
	store interfaces.LevelAwareCache,
	fetcher interfaces.Fetcher,
	keyBuilder interfaces.KeyBuilder,
	origin *url.URL,
	logger *zap.Logger,
	opts ...Option,
) *Manager {
	m := &Manager{
		store:       store,
		fetcher:     fetcher,
		keyBuilder:  keyBuilder,
		origin:      origin,
		logger:      logger,
		concurrency: defaultConcurrency,
		states:      make(map[string]models.State),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type precached struct {
	req  *models.Request
	resp *models.Response
}

// Install pre-caches every manifest resource into the generation named
// version. All resources are fetched before anything is written; a single
// failure aborts the install and leaves the version uninstalled.
func (m *Manager) Install(ctx context.Context, version string, manifest []string) error {
	if version == "" {
		return errors.New("install: version is required")
	}

	m.mu.Lock()
	switch m.states[version] {
	case models.StateActive:
		m.mu.Unlock()
		return nil
	case models.StateInstalling, models.StateActivating:
		m.mu.Unlock()
		return fmt.Errorf("install %s: %w", version, ErrBusy)
	}
	m.states[version] = models.StateInstalling
	m.mu.Unlock()

	logger := m.logger.With(zap.String("version", version))
	logger.Info("Installing cache generation", zap.Int("resources", len(manifest)))
	start := time.Now()

	if err := m.install(ctx, version, manifest); err != nil {
		m.setState(version, models.StateUninstalled)
		metrics.RecordLifecycle("install", false)
		logger.Error("Install failed", zap.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrInstallFailed, version, err)
	}

	m.setState(version, models.StateInstalled)
	metrics.RecordLifecycle("install", true)
	m.refreshGenerationCount()
	logger.Info("Installed cache generation", zap.Duration("duration", time.Since(start)))
	return nil
}

func (m *Manager) install(ctx context.Context, version string, manifest []string) error {
	reqs := make([]*models.Request, len(manifest))
	for i, path := range manifest {
		target, err := m.resolve(path)
		if err != nil {
			return err
		}
		reqs[i] = models.NewGetRequest(target)
	}

	var keys []string
	if len(reqs) > 0 {
		var err error
		keys, err = m.keyBuilder.BuildBatch(reqs)
		if err != nil {
			return fmt.Errorf("build manifest keys: %w", err)
		}
	}

	results := make([]precached, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			resp, err := m.fetcher.Fetch(gctx, req)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", req.URL, err)
			}
			if !resp.OK() {
				return fmt.Errorf("fetch %s: unexpected status %d", req.URL, resp.Status)
			}
			results[i] = precached{req: req, resp: resp}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := m.store.Open(version); err != nil {
		return fmt.Errorf("open generation: %w", err)
	}
	for i, r := range results {
		if err := m.store.Set(version, keys[i], models.NewCacheEntry(r.req, r.resp)); err != nil {
			// Do not leave a partially populated generation behind
			if delErr := m.store.DeleteGeneration(version); delErr != nil {
				m.logger.Warn("Failed to discard partial generation",
					zap.String("version", version), zap.Error(delErr))
			}
			return fmt.Errorf("store %s: %w", r.req.URL, err)
		}
	}
	return nil
}

// Activate makes version the current generation and deletes all others.
// Deletion failures are logged and counted but never returned.
func (m *Manager) Activate(ctx context.Context, version string) error {
	m.mu.Lock()
	switch m.states[version] {
	case models.StateActive:
		m.mu.Unlock()
		return nil
	case models.StateInstalled:
	default:
		m.mu.Unlock()
		metrics.RecordLifecycle("activate", false)
		return fmt.Errorf("activate %s: %w", version, ErrNotInstalled)
	}
	m.states[version] = models.StateActivating
	m.mu.Unlock()

	logger := m.logger.With(zap.String("version", version))
	logger.Info("Activating cache generation")

	m.genMu.Lock()
	names, err := m.store.Generations()
	if err != nil {
		logger.Warn("Failed to list cache generations", zap.Error(err))
	}
	var stale []string
	for _, name := range names {
		if name == version {
			continue
		}
		stale = append(stale, name)
		if err := m.store.DeleteGeneration(name); err != nil {
			logger.Warn("Failed to delete stale generation", zap.String("generation", name), zap.Error(err))
			metrics.RecordGenerationDeleted(false)
			continue
		}
		logger.Info("Deleted stale generation", zap.String("generation", name))
		metrics.RecordGenerationDeleted(true)
	}

	if err := m.store.SetActive(version); err != nil {
		logger.Warn("Failed to persist active generation", zap.Error(err))
	}

	m.mu.Lock()
	for v, st := range m.states {
		if v != version && (st == models.StateActive || st == models.StateInstalled) {
			m.states[v] = models.StateRedundant
		}
	}
	for _, name := range stale {
		switch m.states[name] {
		case models.StateInstalling, models.StateActivating:
		default:
			m.states[name] = models.StateRedundant
		}
	}
	m.states[version] = models.StateActive
	m.active = version
	m.mu.Unlock()
	m.genMu.Unlock()

	metrics.RecordLifecycle("activate", true)
	m.refreshGenerationCount()
	logger.Info("Activated cache generation")
	return nil
}

// Register brings version to active the way a host re-registers a worker:
// nothing happens when it is already active, a generation persisted as
// active by a previous process is resumed, anything else is installed and
// then activated.
func (m *Manager) Register(ctx context.Context, version string, manifest []string) error {
	if version == "" {
		return errors.New("register: version is required")
	}

	m.registerMu.Lock()
	defer m.registerMu.Unlock()

	if m.ActiveVersion() == version {
		return nil
	}

	if m.resume(version) {
		m.logger.Info("Resumed persisted cache generation", zap.String("version", version))
		return nil
	}

	if err := m.Install(ctx, version, manifest); err != nil {
		return err
	}
	return m.Activate(ctx, version)
}

func (m *Manager) resume(version string) bool {
	name, ok := m.store.Active()
	if !ok || name != version {
		return false
	}

	names, err := m.store.Generations()
	if err != nil {
		m.logger.Warn("Failed to list cache generations", zap.Error(err))
		return false
	}
	found := false
	for _, n := range names {
		if n == version {
			found = true
			break
		}
	}
	if !found {
		return false
	}

	m.mu.Lock()
	if m.active != "" && m.active != version {
		m.states[m.active] = models.StateRedundant
	}
	m.states[version] = models.StateActive
	m.active = version
	m.mu.Unlock()

	m.refreshGenerationCount()
	return true
}

// Fetch answers req from the generation named version, falling back to the
// network on a miss. Same-origin 200 GET responses are stored. Network
// failures are swallowed: the result then has Source none and no error.
// An empty version passes the request straight through to the network.
func (m *Manager) Fetch(ctx context.Context, version string, req *models.Request) (*models.FetchResult, error) {
	if req == nil {
		return nil, errors.New("fetch: request is required")
	}

	start := time.Now()
	result, err := m.fetch(ctx, version, req)
	if err != nil {
		return nil, err
	}
	metrics.RecordFetch(string(result.Source), time.Since(start))
	return result, nil
}

func (m *Manager) fetch(ctx context.Context, version string, req *models.Request) (*models.FetchResult, error) {
	if version == "" {
		return m.passThrough(ctx, req), nil
	}

	key, err := m.keyBuilder.Build(req)
	if err != nil {
		return nil, fmt.Errorf("build cache key: %w", err)
	}

	cacheable := req.Method == http.MethodGet
	if cacheable {
		if result := m.store.GetWithLevel(version, key); result.Found && result.Entry != nil {
			metrics.RecordCacheHit(string(result.Level))
			return &models.FetchResult{
				Response: result.Entry.Response(),
				Source:   models.FetchSourceCache,
				Level:    result.Level,
			}, nil
		}
		metrics.RecordCacheMiss()
	}

	resp, err := m.fetcher.Fetch(ctx, req)
	if err != nil {
		metrics.RecordNetworkError()
		m.logger.Debug("Network request failed",
			zap.String("version", version),
			zap.String("key", key),
			zap.Error(err))
		if fallback := m.offlineFallback(version, req); fallback != nil {
			return fallback, nil
		}
		return &models.FetchResult{Source: models.FetchSourceNone, Level: models.CacheLevelMiss}, nil
	}

	result := &models.FetchResult{
		Response: resp,
		Source:   models.FetchSourceNetwork,
		Level:    models.CacheLevelMiss,
	}

	if reason := skipReason(req, resp); reason != "" {
		metrics.RecordCacheSkip(reason)
		return result, nil
	}

	// The stored entry gets its own copy; resp goes back to the caller
	entry := models.NewCacheEntry(req, resp.Clone())
	stored, err := m.storeIfCurrent(version, key, entry)
	if err != nil {
		metrics.RecordCacheWrite(false)
		m.logger.Warn("Failed to store response",
			zap.String("version", version),
			zap.String("key", key),
			zap.Error(err))
		return result, nil
	}
	if !stored {
		// version was superseded while the request was in flight
		metrics.RecordCacheSkip("redundant")
		m.logger.Debug("Dropped response for superseded generation",
			zap.String("version", version),
			zap.String("key", key))
		return result, nil
	}
	metrics.RecordCacheWrite(true)
	result.Stored = true
	return result, nil
}

// storeIfCurrent writes entry into version unless that version has been
// superseded. Set creates missing generations, so a late write must not
// reach a generation an activation already deleted.
func (m *Manager) storeIfCurrent(version, key string, entry *models.CacheEntry) (bool, error) {
	m.genMu.RLock()
	defer m.genMu.RUnlock()

	if m.State(version) == models.StateRedundant {
		return false, nil
	}
	if err := m.store.Set(version, key, entry); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) passThrough(ctx context.Context, req *models.Request) *models.FetchResult {
	resp, err := m.fetcher.Fetch(ctx, req)
	if err != nil {
		metrics.RecordNetworkError()
		m.logger.Debug("Network request failed", zap.String("url", req.URL.String()), zap.Error(err))
		return &models.FetchResult{Source: models.FetchSourceNone, Level: models.CacheLevelMiss}
	}
	return &models.FetchResult{Response: resp, Source: models.FetchSourceNetwork, Level: models.CacheLevelMiss}
}

func (m *Manager) offlineFallback(version string, req *models.Request) *models.FetchResult {
	if m.fallback == "" || !isNavigation(req) {
		return nil
	}

	target, err := m.resolve(m.fallback)
	if err != nil {
		return nil
	}
	key, err := m.keyBuilder.Build(models.NewGetRequest(target))
	if err != nil {
		return nil
	}

	result := m.store.GetWithLevel(version, key)
	if !result.Found || result.Entry == nil {
		return nil
	}
	return &models.FetchResult{
		Response: result.Entry.Response(),
		Source:   models.FetchSourceFallback,
		Level:    result.Level,
	}
}

// skipReason returns why resp must not be stored, or "" when it may be
func skipReason(req *models.Request, resp *models.Response) string {
	switch {
	case req.Method != http.MethodGet:
		return "method"
	case resp.Status != http.StatusOK:
		return "status"
	case resp.Type != models.ResponseTypeBasic:
		return "type"
	}
	return ""
}

func isNavigation(req *models.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

// resolve turns a manifest path into an absolute URL on the origin
func (m *Manager) resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse resource %q: %w", path, err)
	}
	return m.origin.ResolveReference(ref), nil
}

// ActiveVersion returns the active version, or "" before the first activation
func (m *Manager) ActiveVersion() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// State returns the lifecycle state of version
func (m *Manager) State(version string) models.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.states[version]; ok {
		return st
	}
	return models.StateUninstalled
}

// Generations lists the stored generation names
func (m *Manager) Generations() ([]string, error) {
	return m.store.Generations()
}

// Status returns a snapshot of lifecycle state and stored generations
func (m *Manager) Status() (*models.Status, error) {
	m.mu.RLock()
	status := &models.Status{
		ActiveVersion: m.active,
		Versions:      make(map[string]models.State, len(m.states)),
	}
	for v, st := range m.states {
		status.Versions[v] = st
	}
	m.mu.RUnlock()

	names, err := m.store.Generations()
	if err != nil {
		return status, fmt.Errorf("list generations: %w", err)
	}
	status.Generations = names
	return status, nil
}

// DeleteGeneration removes a stored generation other than the active one
func (m *Manager) DeleteGeneration(name string) error {
	m.mu.Lock()
	if name == m.active {
		m.mu.Unlock()
		return fmt.Errorf("delete %s: %w", name, ErrActiveGeneration)
	}
	switch m.states[name] {
	case models.StateInstalling, models.StateActivating:
		m.mu.Unlock()
		return fmt.Errorf("delete %s: %w", name, ErrBusy)
	}
	m.mu.Unlock()

	m.genMu.Lock()
	if err := m.store.DeleteGeneration(name); err != nil {
		m.genMu.Unlock()
		metrics.RecordGenerationDeleted(false)
		return fmt.Errorf("delete generation %s: %w", name, err)
	}
	metrics.RecordGenerationDeleted(true)

	m.mu.Lock()
	if st, ok := m.states[name]; ok && st == models.StateInstalled {
		delete(m.states, name)
	}
	m.mu.Unlock()
	m.genMu.Unlock()

	m.refreshGenerationCount()
	m.logger.Info("Deleted cache generation", zap.String("generation", name))
	return nil
}

func (m *Manager) setState(version string, state models.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state == models.StateUninstalled {
		delete(m.states, version)
		return
	}
	m.states[version] = state
}

func (m *Manager) refreshGenerationCount() {
	names, err := m.store.Generations()
	if err != nil {
		return
	}
	metrics.UpdateGenerations(len(names))
}
