package httpserver

import (
	"time"

	"go-offline-cache/internal/models"
)

// CacheHeader tells clients how a proxied response was produced
const CacheHeader = "X-Offline-Cache"

// Values of CacheHeader
const (
	CacheStatusHit      = "hit"
	CacheStatusMiss     = "miss"
	CacheStatusFallback = "fallback"
)

// HealthResponse is returned by /health
type HealthResponse struct {
	Status        string    `json:"status"`
	Time          time.Time `json:"time"`
	ActiveVersion string    `json:"active_version,omitempty"`
}

// StatusResponse is returned by /status
type StatusResponse struct {
	Success bool           `json:"success"`
	Status  *models.Status `json:"status"`
	Error   string         `json:"error,omitempty"` // set when storage could not be listed
}

// GenerationsResponse is returned by /generations
type GenerationsResponse struct {
	Success     bool     `json:"success"`
	Active      string   `json:"active,omitempty"`
	Generations []string `json:"generations"`
}

// ErrorResponse represents a failed admin operation
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
