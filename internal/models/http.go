package models

import (
	"net/http"
	"net/url"
)

// ResponseType mirrors the fetch response type of the browser Fetch API
type ResponseType string

const (
	ResponseTypeBasic  ResponseType = "basic"  // same-origin
	ResponseTypeCORS   ResponseType = "cors"   // cross-origin, readable
	ResponseTypeOpaque ResponseType = "opaque" // cross-origin, not readable
	ResponseTypeError  ResponseType = "error"
)

// Request is an intercepted outgoing request. URL is always absolute.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// NewGetRequest builds a bodyless GET request for target
func NewGetRequest(target *url.URL) *Request {
	return &Request{
		Method: http.MethodGet,
		URL:    target,
		Header: make(http.Header),
	}
}

// Response is a fully buffered response.
//
// A Response handed to the cache must be a Clone of the one returned to the
// caller; the two never share header maps or body slices.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Type   ResponseType
}

// Clone returns a deep copy of the response
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	clone := &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
		Type:   r.Type,
	}
	if r.Body != nil {
		clone.Body = make([]byte, len(r.Body))
		copy(clone.Body, r.Body)
	}
	return clone
}

// OK reports whether the status is in the 2xx range
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status <= 299
}
