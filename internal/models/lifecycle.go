package models

// State is the lifecycle state of one cache version
type State string

const (
	StateUninstalled State = "uninstalled"
	StateInstalling  State = "installing"
	StateInstalled   State = "installed"
	StateActivating  State = "activating"
	StateActive      State = "active"
	StateRedundant   State = "redundant" // superseded by a newer active version
)

// FetchSource tells where a fetch result came from
type FetchSource string

const (
	FetchSourceCache    FetchSource = "cache"
	FetchSourceNetwork  FetchSource = "network"
	FetchSourceFallback FetchSource = "fallback"
	FetchSourceNone     FetchSource = "none"
)

// FetchResult is the outcome of an intercepted fetch. Response is nil when
// Source is FetchSourceNone.
type FetchResult struct {
	Response *Response
	Source   FetchSource
	Level    CacheLevel
	Stored   bool // a copy of Response was written to the cache
}

// Status is a snapshot of the manager's lifecycle
type Status struct {
	ActiveVersion string           `json:"active_version"`
	Versions      map[string]State `json:"versions"`
	Generations   []string         `json:"generations"`
}
