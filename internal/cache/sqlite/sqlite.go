package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"go-offline-cache/internal/interfaces"
	"go-offline-cache/internal/metrics"
	"go-offline-cache/internal/models"
)

// Ensure Cache implements interfaces.Cache
var _ interfaces.Cache = (*Cache)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS generations (
	name TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	generation TEXT NOT NULL,
	key TEXT NOT NULL,
	entry BLOB NOT NULL,
	stored_at INTEGER NOT NULL,
	PRIMARY KEY (generation, key)
);
CREATE TABLE IF NOT EXISTS meta (
	k TEXT PRIMARY KEY,
	v TEXT NOT NULL
);
`

const activeKey = "active_generation"

// Cache is a persistent L2 level backed by SQLite
type Cache struct {
	db     *sql.DB
	logger *zap.Logger
}

// New opens (creating if needed) the database at dbPath
func New(dbPath string, logger *zap.Logger) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	logger.Info("Opened SQLite cache", zap.String("path", dbPath))
	return &Cache{db: db, logger: logger}, nil
}

// Open registers the generation
func (c *Cache) Open(generation string) error {
	_, err := c.db.Exec(
		`INSERT OR IGNORE INTO generations (name, created_at) VALUES (?, ?)`,
		generation, time.Now().Unix(),
	)
	if err != nil {
		metrics.RecordCacheError("sqlite", "upstream")
		return fmt.Errorf("open generation %s: %w", generation, err)
	}
	return nil
}

// Get retrieves an entry of a generation
func (c *Cache) Get(generation, key string) (*models.CacheEntry, bool) {
	var data []byte
	err := c.db.QueryRow(
		`SELECT entry FROM entries WHERE generation = ? AND key = ?`,
		generation, key,
	).Scan(&data)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.Error("SQLite cache get error", zap.String("generation", generation), zap.String("key", key), zap.Error(err))
			metrics.RecordCacheError("sqlite", "upstream")
		}
		return nil, false
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Error("Failed to unmarshal SQLite cache entry", zap.String("generation", generation), zap.String("key", key), zap.Error(err))
		metrics.RecordCacheError("sqlite", "decode")
		return nil, false
	}
	return &entry, true
}

// Set stores an entry and registers its generation in one transaction
func (c *Cache) Set(generation, key string, entry *models.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		metrics.RecordCacheError("sqlite", "encode")
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO generations (name, created_at) VALUES (?, ?)`,
		generation, now,
	); err != nil {
		metrics.RecordCacheError("sqlite", "upstream")
		return fmt.Errorf("cache put: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO entries (generation, key, entry, stored_at) VALUES (?, ?, ?, ?)`,
		generation, key, data, now,
	); err != nil {
		metrics.RecordCacheError("sqlite", "upstream")
		return fmt.Errorf("cache put: %w", err)
	}
	return tx.Commit()
}

// Generations lists generation names sorted
func (c *Cache) Generations() ([]string, error) {
	rows, err := c.db.Query(`SELECT name FROM generations ORDER BY name`)
	if err != nil {
		metrics.RecordCacheError("sqlite", "upstream")
		return nil, fmt.Errorf("list generations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteGeneration removes the generation and its entries in one transaction
func (c *Cache) DeleteGeneration(generation string) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("delete generation %s: %w", generation, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM entries WHERE generation = ?`, generation); err != nil {
		metrics.RecordCacheError("sqlite", "delete")
		return fmt.Errorf("delete generation %s: %w", generation, err)
	}
	if _, err := tx.Exec(`DELETE FROM generations WHERE name = ?`, generation); err != nil {
		metrics.RecordCacheError("sqlite", "delete")
		return fmt.Errorf("delete generation %s: %w", generation, err)
	}
	return tx.Commit()
}

// SetActive persists the active generation name
func (c *Cache) SetActive(generation string) error {
	_, err := c.db.Exec(`INSERT OR REPLACE INTO meta (k, v) VALUES (?, ?)`, activeKey, generation)
	if err != nil {
		metrics.RecordCacheError("sqlite", "upstream")
		return fmt.Errorf("set active generation: %w", err)
	}
	return nil
}

// Active returns the persisted active generation name
func (c *Cache) Active() (string, bool) {
	var name string
	err := c.db.QueryRow(`SELECT v FROM meta WHERE k = ?`, activeKey).Scan(&name)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.Error("SQLite active generation get error", zap.Error(err))
			metrics.RecordCacheError("sqlite", "upstream")
		}
		return "", false
	}
	return name, name != ""
}

// Close closes the database
func (c *Cache) Close() error {
	return c.db.Close()
}
