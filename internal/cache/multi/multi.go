package multi

import (
	"errors"
	"sort"

	"go.uber.org/zap"

	"go-offline-cache/internal/interfaces"
	"go-offline-cache/internal/models"
)

// Ensure MultiCache implements interfaces.LevelAwareCache
var _ interfaces.LevelAwareCache = (*MultiCache)(nil)

// MultiCache implements a composite cache over ordered levels.
// Reads go through the levels in order; writes fan out to all of them.
// The last level is authoritative. Earlier levels are accelerators that may
// evict or reject entries, so their write failures are logged, not returned.
type MultiCache struct {
	caches            []interfaces.Cache
	logger            *zap.Logger
	enablePropagation bool
}

// NewMultiCache creates a new MultiCache instance with provided cache implementations
func NewMultiCache(caches []interfaces.Cache, logger *zap.Logger, enablePropagation bool) *MultiCache {
	return &MultiCache{
		caches:            caches,
		logger:            logger,
		enablePropagation: enablePropagation,
	}
}

// Open creates the generation on every level
func (mc *MultiCache) Open(generation string) error {
	var errs []error
	for i, cache := range mc.caches {
		if err := cache.Open(generation); err != nil {
			if mc.isAccelerator(i) {
				mc.logger.Warn("Failed to open generation in accelerator level",
					zap.String("generation", generation), zap.Int("level", i), zap.Error(err))
				continue
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get retrieves an entry from the first level that has the key
func (mc *MultiCache) Get(generation, key string) (*models.CacheEntry, bool) {
	result := mc.GetWithLevel(generation, key)
	return result.Entry, result.Found
}

// GetWithLevel retrieves an entry and reports which level served it.
// With propagation enabled a hit in a slower level is copied into the faster ones.
func (mc *MultiCache) GetWithLevel(generation, key string) models.CacheResult {
	if len(mc.caches) == 0 {
		mc.logger.Warn("No caches available for get operation", zap.String("key", key))
		return models.CacheResult{Level: models.CacheLevelMiss}
	}

	for i, cache := range mc.caches {
		entry, found := cache.Get(generation, key)
		if !found {
			continue
		}

		if mc.enablePropagation && i > 0 {
			mc.propagate(generation, key, entry, i)
		}

		return models.CacheResult{
			Entry: entry,
			Found: true,
			Level: levelOf(i),
		}
	}

	return models.CacheResult{Level: models.CacheLevelMiss}
}

func (mc *MultiCache) propagate(generation, key string, entry *models.CacheEntry, foundAt int) {
	for j := 0; j < foundAt; j++ {
		if err := mc.caches[j].Set(generation, key, entry); err != nil {
			mc.logger.Warn("Failed to propagate cache entry",
				zap.String("generation", generation),
				zap.String("key", key),
				zap.Int("level", j),
				zap.Error(err))
		}
	}
}

// Set stores the entry in all levels
func (mc *MultiCache) Set(generation, key string, entry *models.CacheEntry) error {
	if len(mc.caches) == 0 {
		mc.logger.Warn("No caches available for set operation", zap.String("key", key))
		return nil
	}

	var errs []error
	for i, cache := range mc.caches {
		if err := cache.Set(generation, key, entry); err != nil {
			if mc.isAccelerator(i) {
				mc.logger.Warn("Failed to set entry in accelerator level",
					zap.String("generation", generation),
					zap.String("key", key),
					zap.Int("level", i),
					zap.Error(err))
				continue
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Generations returns the sorted union of generation names across levels
func (mc *MultiCache) Generations() ([]string, error) {
	seen := make(map[string]struct{})
	var errs []error
	for _, cache := range mc.caches {
		names, err := cache.Generations()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, name := range names {
			seen[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, errors.Join(errs...)
}

// DeleteGeneration removes the generation from all levels
func (mc *MultiCache) DeleteGeneration(generation string) error {
	if len(mc.caches) == 0 {
		mc.logger.Warn("No caches available for delete operation", zap.String("generation", generation))
		return nil
	}

	var errs []error
	for _, cache := range mc.caches {
		if err := cache.DeleteGeneration(generation); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetActive persists the active marker on all levels
func (mc *MultiCache) SetActive(generation string) error {
	var errs []error
	for _, cache := range mc.caches {
		if err := cache.SetActive(generation); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Active returns the marker from the first level that has one
func (mc *MultiCache) Active() (string, bool) {
	for _, cache := range mc.caches {
		if name, ok := cache.Active(); ok {
			return name, true
		}
	}
	return "", false
}

// GetCacheCount returns the number of caches in the multi-cache
func (mc *MultiCache) GetCacheCount() int {
	return len(mc.caches)
}

// isAccelerator reports whether level i sits in front of the authoritative one
func (mc *MultiCache) isAccelerator(i int) bool {
	return i < len(mc.caches)-1
}

func levelOf(i int) models.CacheLevel {
	if i == 0 {
		return models.CacheLevelL1
	}
	return models.CacheLevelL2
}
