package interfaces

import (
	"go-offline-cache/internal/models"
)

//go:generate mockgen -package=mock -source=cache.go -destination=mock/cache.go

// Cache stores cache generations. Every method is a single atomic operation
// against the backing store; there is no cross-operation transaction.
type Cache interface {
	// Open creates the generation if it does not exist yet
	Open(generation string) error
	Get(generation, key string) (*models.CacheEntry, bool) // returns entry and found flag
	// Set overwrites any existing entry for key and implies Open
	Set(generation, key string, entry *models.CacheEntry) error
	Generations() ([]string, error)
	// DeleteGeneration removes the generation and all of its entries
	DeleteGeneration(generation string) error

	// SetActive persists the name of the active generation
	SetActive(generation string) error
	Active() (string, bool)
}

// LevelAwareCache extends Cache with level information on lookups
type LevelAwareCache interface {
	Cache
	GetWithLevel(generation, key string) models.CacheResult
}
