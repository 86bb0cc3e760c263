package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"go-offline-cache/internal/interfaces"
	"go-offline-cache/internal/models"
)

// Ensure HTTPFetcher implements interfaces.Fetcher
var _ interfaces.Fetcher = (*HTTPFetcher)(nil)

// ErrNetwork marks a transport level failure: no HTTP response was received
var ErrNetwork = errors.New("network error")

// Hop-by-hop headers are meaningful for a single connection only
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HTTPFetcher performs requests with net/http and classifies responses
// relative to the origin
type HTTPFetcher struct {
	client *http.Client
	origin *url.URL
	logger *zap.Logger
}

// NewHTTPFetcher creates a fetcher for the given origin
func NewHTTPFetcher(origin *url.URL, timeout time.Duration, logger *zap.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
		origin: origin,
		logger: logger,
	}
}

// Fetch sends req and returns the fully buffered response
func (f *HTTPFetcher) Fetch(ctx context.Context, req *models.Request) (*models.Response, error) {
	if req == nil || req.URL == nil {
		return nil, fmt.Errorf("fetch: request URL is required")
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	httpReq.Header = outgoingHeader(req.Header)

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		f.logger.Debug("Network request failed",
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, req.Method, req.URL.Redacted(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body of %s: %v", ErrNetwork, req.URL.Redacted(), err)
	}

	header := resp.Header.Clone()
	removeHopHeaders(header)

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	out := &models.Response{
		Status: resp.StatusCode,
		Header: header,
		Body:   data,
		Type:   f.classify(finalURL, header),
	}

	f.logger.Debug("Network request completed",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Int("status", out.Status),
		zap.String("type", string(out.Type)),
		zap.Duration("duration", time.Since(start)))

	return out, nil
}

// classify derives the response type from the URL that finally answered
func (f *HTTPFetcher) classify(final *url.URL, header http.Header) models.ResponseType {
	if SameOrigin(f.origin, final) {
		return models.ResponseTypeBasic
	}
	if header.Get("Access-Control-Allow-Origin") != "" {
		return models.ResponseTypeCORS
	}
	return models.ResponseTypeOpaque
}

// SameOrigin reports whether a and b share scheme, host and port
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		strings.EqualFold(a.Hostname(), b.Hostname()) &&
		effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if port := u.Port(); port != "" {
		return port
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		return "80"
	case "https":
		return "443"
	}
	return ""
}

func outgoingHeader(in http.Header) http.Header {
	header := in.Clone()
	if header == nil {
		header = make(http.Header)
	}
	removeHopHeaders(header)
	// Let the transport negotiate compression and decode the body
	header.Del("Accept-Encoding")
	return header
}

func removeHopHeaders(header http.Header) {
	for _, h := range header.Values("Connection") {
		for _, field := range strings.Split(h, ",") {
			if field = strings.TrimSpace(field); field != "" {
				header.Del(field)
			}
		}
	}
	for _, h := range hopHeaders {
		header.Del(h)
	}
}
