package noop

import (
	"go-offline-cache/internal/interfaces"
	"go-offline-cache/internal/models"
)

// Ensure NoOpCache implements interfaces.Cache
var _ interfaces.Cache = (*NoOpCache)(nil)

// NoOpCache is a no-operation cache implementation for disabled levels
type NoOpCache struct{}

// NewNoOpCache creates a new no-operation cache instance
func NewNoOpCache() interfaces.Cache {
	return &NoOpCache{}
}

// Open does nothing
func (n *NoOpCache) Open(generation string) error {
	return nil
}

// Get always returns cache miss
func (n *NoOpCache) Get(generation, key string) (*models.CacheEntry, bool) {
	return nil, false
}

// Set does nothing
func (n *NoOpCache) Set(generation, key string, entry *models.CacheEntry) error {
	return nil
}

// Generations always returns an empty list
func (n *NoOpCache) Generations() ([]string, error) {
	return nil, nil
}

// DeleteGeneration does nothing
func (n *NoOpCache) DeleteGeneration(generation string) error {
	return nil
}

// SetActive does nothing
func (n *NoOpCache) SetActive(generation string) error {
	return nil
}

// Active never reports an active generation
func (n *NoOpCache) Active() (string, bool) {
	return "", false
}
