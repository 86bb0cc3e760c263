package interfaces

import "go-offline-cache/internal/models"

//go:generate mockgen -package=mock -source=keybuilder.go -destination=mock/keybuilder.go

// KeyBuilder canonizes requests into deterministic cache keys
type KeyBuilder interface {
	// For single request
	Build(req *models.Request) (string, error)
	// For batch, returns per-item keys aligned by index
	BuildBatch(reqs []*models.Request) ([]string, error)
}
