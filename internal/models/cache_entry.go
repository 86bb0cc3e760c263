package models

import (
	"net/http"
	"time"
)

// CacheEntry is one stored response keyed by request identity
type CacheEntry struct {
	Method   string       `json:"method"`
	URL      string       `json:"url"`
	Status   int          `json:"status"`
	Header   http.Header  `json:"header,omitempty"`
	Body     []byte       `json:"body"`
	Type     ResponseType `json:"type"`
	StoredAt int64        `json:"stored_at"`
}

// NewCacheEntry captures resp for req. resp must already be a private copy.
func NewCacheEntry(req *Request, resp *Response) *CacheEntry {
	return &CacheEntry{
		Method:   req.Method,
		URL:      req.URL.String(),
		Status:   resp.Status,
		Header:   resp.Header,
		Body:     resp.Body,
		Type:     resp.Type,
		StoredAt: time.Now().Unix(),
	}
}

// Response rebuilds a response from the stored entry
func (e *CacheEntry) Response() *Response {
	resp := &Response{
		Status: e.Status,
		Header: e.Header.Clone(),
		Body:   e.Body,
		Type:   e.Type,
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	return resp
}

// CacheLevel represents the storage level an entry was found in
type CacheLevel string

const (
	CacheLevelL1   CacheLevel = "l1"
	CacheLevelL2   CacheLevel = "l2"
	CacheLevelMiss CacheLevel = "miss"
)

// CacheResult is a lookup result with the level it came from
type CacheResult struct {
	Entry *CacheEntry
	Found bool
	Level CacheLevel
}
