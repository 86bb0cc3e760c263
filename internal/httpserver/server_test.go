package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"go-offline-cache/internal/cache"
	"go-offline-cache/internal/cache/l1"
	"go-offline-cache/internal/cache/memory"
	"go-offline-cache/internal/cache/multi"
	"go-offline-cache/internal/config"
	"go-offline-cache/internal/interfaces"
	"go-offline-cache/internal/manager"
	"go-offline-cache/internal/models"
	"go-offline-cache/internal/network"
)

// fakeManager records fetches and returns canned results
type fakeManager struct {
	mu          sync.Mutex
	active      string
	result      *models.FetchResult
	fetchErr    error
	requests    []*models.Request
	versions    []string
	generations []string
	listErr     error
	deleteErr   error
	deleted     []string
}

func (f *fakeManager) Fetch(_ context.Context, version string, req *models.Request) (*models.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.versions = append(f.versions, version)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.result, nil
}

func (f *fakeManager) ActiveVersion() string {
	return f.active
}

func (f *fakeManager) Status() (*models.Status, error) {
	status := &models.Status{
		ActiveVersion: f.active,
		Versions:      map[string]models.State{f.active: models.StateActive},
	}
	if f.listErr != nil {
		return status, f.listErr
	}
	status.Generations = f.generations
	return status, nil
}

func (f *fakeManager) Generations() ([]string, error) {
	return f.generations, f.listErr
}

func (f *fakeManager) DeleteGeneration(name string) error {
	f.deleted = append(f.deleted, name)
	return f.deleteErr
}

func newTestServer(t *testing.T, m CacheManager) *Server {
	t.Helper()
	origin, err := url.Parse("https://portfolio.example")
	require.NoError(t, err)
	return NewServer(m, origin, config.ServerConfig{}, zaptest.NewLogger(t))
}

func cachedResult(body string) *models.FetchResult {
	return &models.FetchResult{
		Response: &models.Response{
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": []string{"text/css"}, "Content-Length": []string{"999"}},
			Body:   []byte(body),
			Type:   models.ResponseTypeBasic,
		},
		Source: models.FetchSourceCache,
		Level:  models.CacheLevelL1,
	}
}

func TestHandleFetch_Hit(t *testing.T) {
	fm := &fakeManager{active: "v1", result: cachedResult("body{}")}
	server := newTestServer(t, fm)

	req := httptest.NewRequest(http.MethodGet, "/assets/css/main.css?v=3", nil)
	w := httptest.NewRecorder()
	server.createProxyRouter().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "body{}", w.Body.String())
	assert.Equal(t, CacheStatusHit, w.Header().Get(CacheHeader))
	assert.Equal(t, "text/css", w.Header().Get("Content-Type"))
	assert.Equal(t, "6", w.Header().Get("Content-Length"))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	require.Len(t, fm.requests, 1)
	assert.Equal(t, "v1", fm.versions[0])
	assert.Equal(t, http.MethodGet, fm.requests[0].Method)
	assert.Equal(t, "https://portfolio.example/assets/css/main.css?v=3", fm.requests[0].URL.String())
}

func TestHandleFetch_ResultSources(t *testing.T) {
	tests := []struct {
		name     string
		source   models.FetchSource
		expected string
	}{
		{name: "network", source: models.FetchSourceNetwork, expected: CacheStatusMiss},
		{name: "cache", source: models.FetchSourceCache, expected: CacheStatusHit},
		{name: "fallback", source: models.FetchSourceFallback, expected: CacheStatusFallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cachedResult("x")
			result.Source = tt.source
			server := newTestServer(t, &fakeManager{active: "v1", result: result})

			w := httptest.NewRecorder()
			server.createProxyRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.expected, w.Header().Get(CacheHeader))
		})
	}
}

func TestHandleFetch_NetworkFailure(t *testing.T) {
	fm := &fakeManager{
		active: "v1",
		result: &models.FetchResult{Source: models.FetchSourceNone, Level: models.CacheLevelMiss},
	}
	server := newTestServer(t, fm)

	w := httptest.NewRecorder()
	server.createProxyRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/uncached.png", nil))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, CacheStatusMiss, w.Header().Get(CacheHeader))
}

func TestHandleFetch_ManagerError(t *testing.T) {
	server := newTestServer(t, &fakeManager{fetchErr: errors.New("bad key")})

	w := httptest.NewRecorder()
	server.createProxyRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleFetch_RequestBodyErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     io.Reader
		wantCode int
	}{
		{
			name:     "too large",
			body:     strings.NewReader(strings.Repeat("a", maxRequestBody+1)),
			wantCode: http.StatusRequestEntityTooLarge,
		},
		{
			name:     "client went away",
			body:     iotest.ErrReader(errors.New("connection reset by peer")),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "truncated",
			body:     iotest.ErrReader(io.ErrUnexpectedEOF),
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm := &fakeManager{active: "v1", result: cachedResult("ok")}
			server := newTestServer(t, fm)

			w := httptest.NewRecorder()
			server.createProxyRouter().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/contact", tt.body))

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Empty(t, fm.requests)
		})
	}
}

func TestHandleFetch_ForwardsMethodAndBody(t *testing.T) {
	fm := &fakeManager{active: "v1", result: cachedResult("ok")}
	fm.result.Source = models.FetchSourceNetwork
	server := newTestServer(t, fm)

	req := httptest.NewRequest(http.MethodPost, "/contact", strings.NewReader("name=ada"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	server.createProxyRouter().ServeHTTP(w, req)

	require.Len(t, fm.requests, 1)
	assert.Equal(t, http.MethodPost, fm.requests[0].Method)
	assert.Equal(t, []byte("name=ada"), fm.requests[0].Body)
	assert.Equal(t, "application/x-www-form-urlencoded", fm.requests[0].Header.Get("Content-Type"))
}

func TestHandleFetch_Head(t *testing.T) {
	server := newTestServer(t, &fakeManager{active: "v1", result: cachedResult("body{}")})

	w := httptest.NewRecorder()
	server.createProxyRouter().ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestRequestIDMiddleware_ReusesIncomingID(t *testing.T) {
	server := newTestServer(t, &fakeManager{active: "v1", result: cachedResult("x")})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	server.createProxyRouter().ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestAdmin_Health(t *testing.T) {
	server := newTestServer(t, &fakeManager{active: "v2"})

	w := httptest.NewRecorder()
	server.createAdminRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, "v2", response.ActiveVersion)
}

func TestAdmin_Status(t *testing.T) {
	server := newTestServer(t, &fakeManager{active: "v2", generations: []string{"v2"}})

	w := httptest.NewRecorder()
	server.createAdminRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var response StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.Equal(t, "v2", response.Status.ActiveVersion)
	assert.Equal(t, models.StateActive, response.Status.Versions["v2"])
	assert.Equal(t, []string{"v2"}, response.Status.Generations)
}

func TestAdmin_StatusStorageError(t *testing.T) {
	server := newTestServer(t, &fakeManager{active: "v2", listErr: errors.New("keydb down")})

	w := httptest.NewRecorder()
	server.createAdminRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdmin_ListGenerations(t *testing.T) {
	server := newTestServer(t, &fakeManager{active: "v2", generations: []string{"v1", "v2"}})

	w := httptest.NewRecorder()
	server.createAdminRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/generations", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var response GenerationsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "v2", response.Active)
	assert.Equal(t, []string{"v1", "v2"}, response.Generations)
}

func TestAdmin_DeleteGeneration(t *testing.T) {
	tests := []struct {
		name           string
		deleteErr      error
		expectedStatus int
	}{
		{name: "deleted", expectedStatus: http.StatusNoContent},
		{name: "active", deleteErr: fmt.Errorf("delete v2: %w", manager.ErrActiveGeneration), expectedStatus: http.StatusConflict},
		{name: "storage error", deleteErr: errors.New("io"), expectedStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm := &fakeManager{active: "v2", deleteErr: tt.deleteErr}
			server := newTestServer(t, fm)

			w := httptest.NewRecorder()
			server.createAdminRouter().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/generations/v1", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, []string{"v1"}, fm.deleted)
		})
	}
}

func TestAdmin_Metrics(t *testing.T) {
	server := newTestServer(t, &fakeManager{})

	w := httptest.NewRecorder()
	server.createAdminRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_StartStop(t *testing.T) {
	origin, err := url.Parse("https://portfolio.example")
	require.NoError(t, err)

	cfg := config.ServerConfig{Listen: "127.0.0.1:0", AdminListen: "127.0.0.1:0"}
	server := NewServer(&fakeManager{}, origin, cfg, zaptest.NewLogger(t))

	require.NoError(t, server.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, server.Stop(ctx))
}

func TestProxy_EndToEnd(t *testing.T) {
	var (
		mu   sync.Mutex
		down bool
	)
	originServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		isDown := down
		mu.Unlock()
		if isDown {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("page " + r.URL.Path))
	}))
	defer originServer.Close()

	originURL, err := url.Parse(originServer.URL)
	require.NoError(t, err)

	bc, err := l1.NewBigCache(&config.BigCacheConfig{Size: 10, Shards: 16, LifeWindow: time.Hour, MaxEntrySize: 1024}, zap.NewNop())
	require.NoError(t, err)
	defer bc.Close()

	store := multi.NewMultiCache([]interfaces.Cache{bc, memory.New()}, zap.NewNop(), false)
	fetcher := network.NewHTTPFetcher(originURL, 5*time.Second, zap.NewNop())
	m := manager.New(store, fetcher, cache.NewKeyBuilder(), originURL, zaptest.NewLogger(t))
	require.NoError(t, m.Register(context.Background(), "v1", []string{"/", "/index.html"}))

	router := NewServer(m, originURL, config.ServerConfig{}, zaptest.NewLogger(t)).createProxyRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/index.html", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "page /index.html", w.Body.String())
	assert.Equal(t, CacheStatusHit, w.Header().Get(CacheHeader))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/about.html", nil))
	assert.Equal(t, CacheStatusMiss, w.Header().Get(CacheHeader))

	mu.Lock()
	down = true
	mu.Unlock()

	// The error page is passed through but never replaces a cached copy
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/about.html", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, CacheStatusHit, w.Header().Get(CacheHeader))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/contact.html", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, CacheStatusMiss, w.Header().Get(CacheHeader))
}
