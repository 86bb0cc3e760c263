package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"go-offline-cache/internal/models"
)

// Config represents the main configuration structure
type Config struct {
	// Version names the current cache generation. Bumping it invalidates
	// every previously cached response on the next activation.
	Version         string           `yaml:"version" validate:"required"`
	Origin          OriginConfig     `yaml:"origin"`
	Precache        PrecacheConfig   `yaml:"precache"`
	OfflineFallback string           `yaml:"offline_fallback" validate:"omitempty,startswith=/"`
	Server          ServerConfig     `yaml:"server"`
	L1              BigCacheConfig   `yaml:"l1"`
	L2              StorageConfig    `yaml:"l2"`
	MultiCache      MultiCacheConfig `yaml:"multi_cache"`
	Updates         UpdatesConfig    `yaml:"updates"`
}

// OriginConfig describes the upstream site being cached
type OriginConfig struct {
	URL     string        `yaml:"url" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout"`
}

// PrecacheConfig is the install-time manifest
type PrecacheConfig struct {
	Manifest    []string `yaml:"manifest" validate:"dive,required"`
	Concurrency int      `yaml:"concurrency" validate:"gte=0"`
}

// ServerConfig holds listener settings
type ServerConfig struct {
	Listen       string        `yaml:"listen"`
	AdminListen  string        `yaml:"admin_listen"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// BigCacheConfig configures the in-memory L1 level
type BigCacheConfig struct {
	Enabled bool `yaml:"enabled"`
	// Size is the hard limit in MB
	Size int `yaml:"size" validate:"gte=0"`
	// Shards must be a power of two; one entry can hold at most Size/Shards
	Shards       int           `yaml:"shards" validate:"gte=0"`
	LifeWindow   time.Duration `yaml:"life_window"`
	MaxEntrySize int           `yaml:"max_entry_size" validate:"gte=0"`
}

// StorageConfig selects and configures the persistent L2 level
type StorageConfig struct {
	Backend models.StorageBackend `yaml:"backend"`
	KeyDB   KeyDBConfig           `yaml:"keydb"`
	SQLite  SQLiteConfig          `yaml:"sqlite"`
}

// KeyDBConfig configures the KeyDB/Redis backend
type KeyDBConfig struct {
	KeyPrefix  string           `yaml:"key_prefix"`
	Connection ConnectionConfig `yaml:"connection"`
	Keepalive  KeepaliveConfig  `yaml:"keepalive"`
}

// ConnectionConfig holds KeyDB timeouts
type ConnectionConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	SendTimeout    time.Duration `yaml:"send_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

// KeepaliveConfig holds KeyDB pool settings
type KeepaliveConfig struct {
	PoolSize       int           `yaml:"pool_size"`
	MaxIdleTimeout time.Duration `yaml:"max_idle_timeout"`
}

// SQLiteConfig configures the SQLite backend
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// MultiCacheConfig configures level composition
type MultiCacheConfig struct {
	EnablePropagation bool `yaml:"enable_propagation"`
}

// UpdatesConfig configures how new versions are picked up
type UpdatesConfig struct {
	Watch         bool          `yaml:"watch"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

var validate = validator.New()

// LoadConfig loads configuration from file path
func LoadConfig(configPath string, logger *zap.Logger) (*Config, error) {
	logger.Info("Loading configuration", zap.String("path", configPath))

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var config Config
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to decode YAML config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

// Validate checks struct constraints and cross-field rules
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.L2.Backend == models.StorageBackendSQLite && c.L2.SQLite.Path == "" {
		return fmt.Errorf("l2.sqlite.path is required for the sqlite backend")
	}
	return nil
}

// OriginURL returns the parsed origin URL
func (c *Config) OriginURL() (*url.URL, error) {
	u, err := url.Parse(c.Origin.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse origin URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin URL must be absolute: %q", c.Origin.URL)
	}
	return u, nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.Origin.Timeout == 0 {
		c.Origin.Timeout = 15 * time.Second
	}
	if c.Precache.Concurrency == 0 {
		c.Precache.Concurrency = 4
	}

	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.AdminListen == "" {
		c.Server.AdminListen = ":9090"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	c.L1.applyDefaults()
	c.L2.applyDefaults()

	if c.Updates.CheckInterval == 0 {
		c.Updates.CheckInterval = time.Minute
	}
}

func (b *BigCacheConfig) applyDefaults() {
	if b.Size == 0 {
		b.Size = 100
	}
	if b.Shards == 0 {
		b.Shards = 64
	}
	if b.LifeWindow == 0 {
		b.LifeWindow = 24 * time.Hour
	}
	if b.MaxEntrySize == 0 {
		b.MaxEntrySize = 1024 * 1024
	}
}

func (s *StorageConfig) applyDefaults() {
	if s.Backend == "" {
		s.Backend = models.StorageBackendMemory
	}
	if s.KeyDB.KeyPrefix == "" {
		s.KeyDB.KeyPrefix = "offline-cache"
	}
	if s.KeyDB.Connection.ConnectTimeout == 0 {
		s.KeyDB.Connection.ConnectTimeout = 2 * time.Second
	}
	if s.KeyDB.Connection.SendTimeout == 0 {
		s.KeyDB.Connection.SendTimeout = 2 * time.Second
	}
	if s.KeyDB.Connection.ReadTimeout == 0 {
		s.KeyDB.Connection.ReadTimeout = 2 * time.Second
	}
	if s.KeyDB.Keepalive.PoolSize == 0 {
		s.KeyDB.Keepalive.PoolSize = 10
	}
	if s.KeyDB.Keepalive.MaxIdleTimeout == 0 {
		s.KeyDB.Keepalive.MaxIdleTimeout = 10 * time.Second
	}
}
