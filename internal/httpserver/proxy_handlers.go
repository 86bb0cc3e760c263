package httpserver

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"go-offline-cache/internal/models"
)

const maxRequestBody = 10 << 20

// handleFetch answers a page request through the active cache generation
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.logger.Debug("Failed to read request body", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	req := &models.Request{
		Method: r.Method,
		URL:    s.targetURL(r.URL),
		Header: r.Header.Clone(),
		Body:   body,
	}

	result, err := s.manager.Fetch(r.Context(), s.manager.ActiveVersion(), req)
	if err != nil {
		s.logger.Warn("Fetch rejected", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if result.Response == nil {
		// Network unreachable and nothing cached
		w.Header().Set(CacheHeader, CacheStatusMiss)
		w.WriteHeader(http.StatusGatewayTimeout)
		return
	}

	s.writeProxyResponse(w, r, result)
}

// targetURL maps an incoming request URL onto the origin
func (s *Server) targetURL(in *url.URL) *url.URL {
	ref := &url.URL{
		Path:     in.Path,
		RawPath:  in.RawPath,
		RawQuery: in.RawQuery,
	}
	if ref.Path == "" {
		ref.Path = "/"
	}
	return s.origin.ResolveReference(ref)
}

func (s *Server) writeProxyResponse(w http.ResponseWriter, r *http.Request, result *models.FetchResult) {
	resp := result.Response

	header := w.Header()
	for k, values := range resp.Header {
		if k == "Content-Length" {
			continue
		}
		for _, v := range values {
			header.Add(k, v)
		}
	}
	header.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	header.Set(CacheHeader, cacheStatus(result.Source))

	w.WriteHeader(resp.Status)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(resp.Body); err != nil {
		s.logger.Debug("Failed to write proxied body", zap.Error(err))
	}
}

func cacheStatus(source models.FetchSource) string {
	switch source {
	case models.FetchSourceCache:
		return CacheStatusHit
	case models.FetchSourceFallback:
		return CacheStatusFallback
	default:
		return CacheStatusMiss
	}
}
