package l2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"go-offline-cache/internal/config"
	"go-offline-cache/internal/interfaces"
	"go-offline-cache/internal/metrics"
	"go-offline-cache/internal/models"
)

// Ensure KeyDBCache implements interfaces.Cache
var _ interfaces.Cache = (*KeyDBCache)(nil)

// KeyDBCache implements the persistent L2 level using Redis/KeyDB.
//
// Layout under the configured prefix:
//
//	<prefix>:generations    set of generation names
//	<prefix>:gen:<name>     hash of request identity -> entry JSON
//	<prefix>:active         name of the active generation
type KeyDBCache struct {
	client interfaces.KeyDbClient
	config *config.KeyDBConfig
	logger *zap.Logger
}

// NewKeyDBCache creates a new KeyDBCache instance with provided client
func NewKeyDBCache(cfg *config.KeyDBConfig, client interfaces.KeyDbClient, logger *zap.Logger) *KeyDBCache {
	return &KeyDBCache{
		client: client,
		config: cfg,
		logger: logger,
	}
}

func (kc *KeyDBCache) indexKey() string {
	return kc.config.KeyPrefix + ":generations"
}

func (kc *KeyDBCache) generationKey(generation string) string {
	return kc.config.KeyPrefix + ":gen:" + generation
}

func (kc *KeyDBCache) activeKey() string {
	return kc.config.KeyPrefix + ":active"
}

func (kc *KeyDBCache) readContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), kc.config.Connection.ReadTimeout)
}

func (kc *KeyDBCache) sendContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), kc.config.Connection.SendTimeout)
}

// Open registers the generation in the index
func (kc *KeyDBCache) Open(generation string) error {
	ctx, cancel := kc.sendContext()
	defer cancel()

	if err := kc.client.SAdd(ctx, kc.indexKey(), generation).Err(); err != nil {
		metrics.RecordCacheError("l2", "upstream")
		return fmt.Errorf("failed to open L2 generation %s: %w", generation, err)
	}
	return nil
}

// Get retrieves an entry of a generation
func (kc *KeyDBCache) Get(generation, key string) (*models.CacheEntry, bool) {
	ctx, cancel := kc.readContext()
	defer cancel()

	data, err := kc.client.HGet(ctx, kc.generationKey(generation), key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			kc.logger.Error("L2 cache get error", zap.String("generation", generation), zap.String("key", key), zap.Error(err))
			metrics.RecordCacheError("l2", "upstream")
		}
		return nil, false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		kc.logger.Error("Failed to unmarshal L2 cache entry", zap.String("generation", generation), zap.String("key", key), zap.Error(err))
		metrics.RecordCacheError("l2", "decode")
		return nil, false
	}

	return &entry, true
}

// Set stores an entry and registers its generation
func (kc *KeyDBCache) Set(generation, key string, entry *models.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		metrics.RecordCacheError("l2", "encode")
		return fmt.Errorf("failed to marshal L2 cache entry: %w", err)
	}

	ctx, cancel := kc.sendContext()
	defer cancel()

	if err := kc.client.HSet(ctx, kc.generationKey(generation), key, data).Err(); err != nil {
		metrics.RecordCacheError("l2", "upstream")
		return fmt.Errorf("failed to set L2 cache entry: %w", err)
	}

	if err := kc.client.SAdd(ctx, kc.indexKey(), generation).Err(); err != nil {
		metrics.RecordCacheError("l2", "upstream")
		return fmt.Errorf("failed to index L2 generation %s: %w", generation, err)
	}
	return nil
}

// Generations lists the indexed generation names sorted
func (kc *KeyDBCache) Generations() ([]string, error) {
	ctx, cancel := kc.readContext()
	defer cancel()

	names, err := kc.client.SMembers(ctx, kc.indexKey()).Result()
	if err != nil {
		metrics.RecordCacheError("l2", "upstream")
		return nil, fmt.Errorf("failed to list L2 generations: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteGeneration drops the generation hash and its index entry
func (kc *KeyDBCache) DeleteGeneration(generation string) error {
	ctx, cancel := kc.sendContext()
	defer cancel()

	if err := kc.client.Del(ctx, kc.generationKey(generation)).Err(); err != nil {
		metrics.RecordCacheError("l2", "delete")
		return fmt.Errorf("failed to delete L2 generation %s: %w", generation, err)
	}

	if err := kc.client.SRem(ctx, kc.indexKey(), generation).Err(); err != nil {
		metrics.RecordCacheError("l2", "delete")
		return fmt.Errorf("failed to unindex L2 generation %s: %w", generation, err)
	}
	return nil
}

// SetActive persists the active generation name
func (kc *KeyDBCache) SetActive(generation string) error {
	ctx, cancel := kc.sendContext()
	defer cancel()

	if err := kc.client.Set(ctx, kc.activeKey(), generation, 0).Err(); err != nil {
		metrics.RecordCacheError("l2", "upstream")
		return fmt.Errorf("failed to set L2 active generation: %w", err)
	}
	return nil
}

// Active returns the persisted active generation name
func (kc *KeyDBCache) Active() (string, bool) {
	ctx, cancel := kc.readContext()
	defer cancel()

	name, err := kc.client.Get(ctx, kc.activeKey()).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			kc.logger.Error("L2 active generation get error", zap.Error(err))
			metrics.RecordCacheError("l2", "upstream")
		}
		return "", false
	}
	return name, name != ""
}

// Close closes the KeyDB connection
func (kc *KeyDBCache) Close() error {
	return kc.client.Close()
}
