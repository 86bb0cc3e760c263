package l1

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"go.uber.org/zap"

	"go-offline-cache/internal/config"
	"go-offline-cache/internal/interfaces"
	"go-offline-cache/internal/metrics"
	"go-offline-cache/internal/models"
	"go-offline-cache/internal/scheduler"
)

// Ensure BigCache implements interfaces.Cache
var _ interfaces.Cache = (*BigCache)(nil)

// keySeparator joins generation and request identity. It cannot occur in a
// URL, so a generation prefix never matches another generation's keys.
const keySeparator = "\x00"

// BigCache implements the in-memory L1 level using BigCache. The generation
// index and active marker live next to it in process memory.
type BigCache struct {
	cache            *bigcache.BigCache
	logger           *zap.Logger
	metricsScheduler *scheduler.Scheduler
	hardMaxBytes     int64

	mu          sync.RWMutex
	generations map[string]struct{}
	active      string
}

// NewBigCache creates a new BigCache instance
func NewBigCache(bigcacheCfg *config.BigCacheConfig, logger *zap.Logger) (*BigCache, error) {
	cfg := bigcache.DefaultConfig(bigcacheCfg.LifeWindow)
	cfg.HardMaxCacheSize = bigcacheCfg.Size // Size in MB
	if bigcacheCfg.Shards > 0 {
		cfg.Shards = bigcacheCfg.Shards
	}
	cfg.MaxEntrySize = bigcacheCfg.MaxEntrySize
	cfg.Verbose = false

	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigcache: %w", err)
	}

	bc := &BigCache{
		cache:        cache,
		logger:       logger,
		hardMaxBytes: int64(bigcacheCfg.Size) * 1024 * 1024,
		generations:  make(map[string]struct{}),
	}

	// Start periodic metrics collection
	bc.startMetricsCollection()

	return bc, nil
}

func entryKey(generation, key string) string {
	return generation + keySeparator + key
}

// Open registers the generation
func (bc *BigCache) Open(generation string) error {
	bc.mu.Lock()
	bc.generations[generation] = struct{}{}
	bc.mu.Unlock()
	return nil
}

// Get retrieves an entry of a generation
func (bc *BigCache) Get(generation, key string) (*models.CacheEntry, bool) {
	data, err := bc.cache.Get(entryKey(generation, key))
	if err != nil {
		return nil, false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		bc.logger.Warn("Failed to unmarshal L1 cache entry", zap.String("generation", generation), zap.String("key", key), zap.Error(err))
		metrics.RecordCacheError("l1", "decode")
		_ = bc.cache.Delete(entryKey(generation, key)) // Remove corrupted entry
		return nil, false
	}

	return &entry, true
}

// Set stores an entry, replacing any previous one for the same key
func (bc *BigCache) Set(generation, key string, entry *models.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		metrics.RecordCacheError("l1", "encode")
		return fmt.Errorf("failed to marshal L1 cache entry: %w", err)
	}

	if err := bc.cache.Set(entryKey(generation, key), data); err != nil {
		metrics.RecordCacheError("l1", "upstream")
		return fmt.Errorf("failed to set L1 cache entry: %w", err)
	}

	return bc.Open(generation)
}

// Generations returns the known generation names sorted
func (bc *BigCache) Generations() ([]string, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	names := make([]string, 0, len(bc.generations))
	for name := range bc.generations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteGeneration removes every entry of the generation
func (bc *BigCache) DeleteGeneration(generation string) error {
	prefix := generation + keySeparator

	var keys []string
	it := bc.cache.Iterator()
	for it.SetNext() {
		info, err := it.Value()
		if err != nil {
			continue
		}
		if strings.HasPrefix(info.Key(), prefix) {
			keys = append(keys, info.Key())
		}
	}

	var firstErr error
	for _, k := range keys {
		if err := bc.cache.Delete(k); err != nil && err != bigcache.ErrEntryNotFound && firstErr == nil {
			firstErr = err
		}
	}

	bc.mu.Lock()
	delete(bc.generations, generation)
	if bc.active == generation {
		bc.active = ""
	}
	bc.mu.Unlock()

	if firstErr != nil {
		metrics.RecordCacheError("l1", "delete")
		return fmt.Errorf("failed to delete L1 generation %s: %w", generation, firstErr)
	}
	return nil
}

// SetActive records the active generation
func (bc *BigCache) SetActive(generation string) error {
	bc.mu.Lock()
	bc.active = generation
	bc.mu.Unlock()
	return nil
}

// Active returns the active generation if one was recorded
func (bc *BigCache) Active() (string, bool) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.active, bc.active != ""
}

// Close closes the cache
func (bc *BigCache) Close() error {
	// Stop metrics collection
	bc.stopMetricsCollection()

	return bc.cache.Close()
}

// GetStats returns cache statistics for metrics
func (bc *BigCache) GetStats() (capacity, used int64) {
	// BigCache only exposes the bytes allocated by its shard queues
	capacity = bc.hardMaxBytes
	used = int64(bc.cache.Capacity())

	return capacity, used
}

// startMetricsCollection starts periodic metrics collection
func (bc *BigCache) startMetricsCollection() {
	bc.metricsScheduler = scheduler.New(30*time.Second, bc.updateMetrics)
	bc.metricsScheduler.Start()

	// Initial collection
	bc.updateMetrics()

	bc.logger.Debug("Started L1 cache metrics collection")
}

// stopMetricsCollection stops periodic metrics collection
func (bc *BigCache) stopMetricsCollection() {
	if bc.metricsScheduler != nil {
		bc.metricsScheduler.Stop()
		bc.logger.Debug("Stopped L1 cache metrics collection")
	}
}

// updateMetrics updates cache metrics
func (bc *BigCache) updateMetrics() {
	capacity, used := bc.GetStats()
	metrics.UpdateL1CacheCapacity(capacity, used)
	metrics.UpdateCacheKeys("l1", int64(bc.cache.Len()))
}
