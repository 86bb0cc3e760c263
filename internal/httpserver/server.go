package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"go-offline-cache/internal/config"
	"go-offline-cache/internal/models"
)

// CacheManager is the part of the offline cache manager the server drives
type CacheManager interface {
	Fetch(ctx context.Context, version string, req *models.Request) (*models.FetchResult, error)
	ActiveVersion() string
	Status() (*models.Status, error)
	Generations() ([]string, error)
	DeleteGeneration(name string) error
}

// Server runs the proxy listener and the admin listener
type Server struct {
	manager CacheManager
	origin  *url.URL
	cfg     config.ServerConfig
	logger  *zap.Logger

	proxyServer *http.Server
	adminServer *http.Server
}

// NewServer creates a new offline cache HTTP server
func NewServer(manager CacheManager, origin *url.URL, cfg config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{
		manager: manager,
		origin:  origin,
		cfg:     cfg,
		logger:  logger,
	}
}

// Start binds both listeners and serves them in the background
func (s *Server) Start() error {
	proxyListener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	adminListener, err := net.Listen("tcp", s.cfg.AdminListen)
	if err != nil {
		_ = proxyListener.Close()
		return err
	}

	s.proxyServer = s.newHTTPServer(s.createProxyRouter())
	s.adminServer = s.newHTTPServer(s.createAdminRouter())

	s.logger.Info("Starting offline cache proxy", zap.String("address", proxyListener.Addr().String()), zap.String("origin", s.origin.String()))
	s.logger.Info("Starting admin server", zap.String("address", adminListener.Addr().String()))

	go s.serve(s.proxyServer, proxyListener, "proxy")
	go s.serve(s.adminServer, adminListener, "admin")
	return nil
}

func (s *Server) newHTTPServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
}

func (s *Server) serve(server *http.Server, listener net.Listener, name string) {
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("HTTP server stopped", zap.String("server", name), zap.Error(err))
	}
}

// Stop gracefully shuts down both listeners
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping offline cache HTTP servers")
	var errs []error
	for _, server := range []*http.Server{s.proxyServer, s.adminServer} {
		if server == nil {
			continue
		}
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// createProxyRouter routes every request through the cache manager
func (s *Server) createProxyRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(requestIDMiddleware, s.accessLogMiddleware)
	router.PathPrefix("/").HandlerFunc(s.handleFetch)
	return router
}

// createAdminRouter creates and configures the admin router
func (s *Server) createAdminRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(requestIDMiddleware)

	// Health check
	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	router.HandleFunc("/status", s.handleStatus).Methods("GET")
	router.HandleFunc("/generations", s.handleListGenerations).Methods("GET")
	router.HandleFunc("/generations/{name}", s.handleDeleteGeneration).Methods("DELETE")

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}

// writeResponse writes JSON response
func (s *Server) writeResponse(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeErrorResponse writes error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := ErrorResponse{
		Success: false,
		Error:   message,
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to write error response", zap.Error(err))
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, HealthResponse{
		Status:        "healthy",
		Time:          time.Now().UTC(),
		ActiveVersion: s.manager.ActiveVersion(),
	})
}
