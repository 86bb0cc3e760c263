package memory

import (
	"sort"
	"sync"

	"go-offline-cache/internal/interfaces"
	"go-offline-cache/internal/metrics"
	"go-offline-cache/internal/models"
)

// Ensure Cache implements interfaces.Cache
var _ interfaces.Cache = (*Cache)(nil)

// Cache keeps generations in process memory. Entries never expire and are
// never evicted; they go away only with their whole generation.
type Cache struct {
	mu          sync.RWMutex
	generations map[string]map[string]*models.CacheEntry
	active      string
}

// New creates an empty in-memory generation store
func New() *Cache {
	return &Cache{
		generations: make(map[string]map[string]*models.CacheEntry),
	}
}

// Open creates the generation if it does not exist yet
func (c *Cache) Open(generation string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open(generation)
	return nil
}

func (c *Cache) open(generation string) map[string]*models.CacheEntry {
	entries, ok := c.generations[generation]
	if !ok {
		entries = make(map[string]*models.CacheEntry)
		c.generations[generation] = entries
	}
	return entries
}

// Get returns a copy of the stored entry
func (c *Cache) Get(generation, key string) (*models.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.generations[generation][key]
	if !ok {
		return nil, false
	}
	return copyEntry(entry), true
}

// Set stores a copy of entry, replacing any previous one for the same key
func (c *Cache) Set(generation, key string, entry *models.CacheEntry) error {
	c.mu.Lock()
	c.open(generation)[key] = copyEntry(entry)
	count := c.countLocked()
	c.mu.Unlock()

	metrics.UpdateCacheKeys("memory", count)
	return nil
}

// Generations returns the generation names sorted
func (c *Cache) Generations() ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.generations))
	for name := range c.generations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteGeneration drops the generation and all of its entries
func (c *Cache) DeleteGeneration(generation string) error {
	c.mu.Lock()
	delete(c.generations, generation)
	if c.active == generation {
		c.active = ""
	}
	count := c.countLocked()
	c.mu.Unlock()

	metrics.UpdateCacheKeys("memory", count)
	return nil
}

// SetActive records the active generation
func (c *Cache) SetActive(generation string) error {
	c.mu.Lock()
	c.active = generation
	c.mu.Unlock()
	return nil
}

// Active returns the active generation if one was recorded
func (c *Cache) Active() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active, c.active != ""
}

func (c *Cache) countLocked() int64 {
	var n int64
	for _, entries := range c.generations {
		n += int64(len(entries))
	}
	return n
}

func copyEntry(e *models.CacheEntry) *models.CacheEntry {
	cp := *e
	cp.Header = e.Header.Clone()
	if e.Body != nil {
		cp.Body = append([]byte(nil), e.Body...)
	}
	return &cp
}
