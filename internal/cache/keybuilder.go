package cache

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go-offline-cache/internal/interfaces"
	"go-offline-cache/internal/models"
)

// Ensure KeyBuilderImpl implements interfaces.KeyBuilder
var _ interfaces.KeyBuilder = (*KeyBuilderImpl)(nil)

// KeyBuilderImpl implements the KeyBuilder interface
type KeyBuilderImpl struct{}

// NewKeyBuilder creates a new KeyBuilder instance
func NewKeyBuilder() interfaces.KeyBuilder {
	return &KeyBuilderImpl{}
}

// Build creates the identity key "METHOD URL" for a request. The fragment
// never takes part in matching.
func (kb *KeyBuilderImpl) Build(req *models.Request) (string, error) {
	if req == nil {
		return "", errors.New("request cannot be nil")
	}

	if req.Method == "" {
		return "", errors.New("request method cannot be empty")
	}

	if req.URL == nil {
		return "", errors.New("request URL cannot be nil")
	}

	if !req.URL.IsAbs() || req.URL.Host == "" {
		return "", fmt.Errorf("request URL must be absolute: %q", req.URL.String())
	}

	return fmt.Sprintf("%s %s", strings.ToUpper(req.Method), canonicalURL(req.URL)), nil
}

// BuildBatch creates cache keys for multiple requests
func (kb *KeyBuilderImpl) BuildBatch(reqs []*models.Request) ([]string, error) {
	if len(reqs) == 0 {
		return nil, errors.New("requests slice cannot be empty")
	}

	keys := make([]string, len(reqs))

	for i, req := range reqs {
		key, err := kb.Build(req)
		if err != nil {
			return nil, fmt.Errorf("failed to build key for request %d: %w", i, err)
		}
		keys[i] = key
	}

	return keys, nil
}

func canonicalURL(u *url.URL) string {
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	c.Host = strings.ToLower(c.Host)
	c.Fragment = ""
	c.RawFragment = ""
	c.User = nil
	if c.Path == "" && c.RawPath == "" {
		c.Path = "/"
	}
	return c.String()
}
