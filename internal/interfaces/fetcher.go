package interfaces

import (
	"context"

	"go-offline-cache/internal/models"
)

//go:generate mockgen -package=mock -source=fetcher.go -destination=mock/fetcher.go

// Fetcher performs the real network request for an intercepted request
type Fetcher interface {
	// Fetch returns a fully buffered response. Transport failures are
	// reported as errors wrapping network.ErrNetwork; HTTP error statuses
	// are not errors.
	Fetch(ctx context.Context, req *models.Request) (*models.Response, error)
}
