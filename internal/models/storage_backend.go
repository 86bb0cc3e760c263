package models

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// StorageBackend names the L2 implementation. L2 is the authoritative
// generation store, so every backend keeps entries until their generation
// is deleted.
type StorageBackend string

const (
	StorageBackendKeyDB  StorageBackend = "keydb"
	StorageBackendSQLite StorageBackend = "sqlite"
	StorageBackendMemory StorageBackend = "memory"
)

// ParseStorageBackend validates a backend name
func ParseStorageBackend(s string) (StorageBackend, error) {
	switch b := StorageBackend(strings.ToLower(strings.TrimSpace(s))); b {
	case StorageBackendKeyDB, StorageBackendSQLite, StorageBackendMemory:
		return b, nil
	default:
		return "", fmt.Errorf("invalid storage backend '%s': must be one of 'keydb', 'sqlite', 'memory'", s)
	}
}

// UnmarshalYAML implements custom YAML unmarshaling for StorageBackend
func (b *StorageBackend) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}

	parsed, err := ParseStorageBackend(str)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}
