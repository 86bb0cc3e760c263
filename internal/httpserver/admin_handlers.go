package httpserver

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"go-offline-cache/internal/manager"
)

// handleStatus reports lifecycle state and stored generations
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.manager.Status()
	if err != nil {
		s.logger.Warn("Failed to read cache status", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		s.writeResponse(w, StatusResponse{Success: false, Status: status, Error: err.Error()})
		return
	}
	s.writeResponse(w, StatusResponse{Success: true, Status: status})
}

// handleListGenerations lists stored cache generations
func (s *Server) handleListGenerations(w http.ResponseWriter, r *http.Request) {
	names, err := s.manager.Generations()
	if err != nil {
		s.writeErrorResponse(w, "failed to list generations", http.StatusServiceUnavailable)
		return
	}
	if names == nil {
		names = []string{}
	}
	s.writeResponse(w, GenerationsResponse{
		Success:     true,
		Active:      s.manager.ActiveVersion(),
		Generations: names,
	})
}

// handleDeleteGeneration purges a stored generation other than the active one
func (s *Server) handleDeleteGeneration(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	err := s.manager.DeleteGeneration(name)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, manager.ErrActiveGeneration), errors.Is(err, manager.ErrBusy):
		s.writeErrorResponse(w, err.Error(), http.StatusConflict)
	default:
		s.logger.Error("Failed to delete generation", zap.String("generation", name), zap.Error(err))
		s.writeErrorResponse(w, "failed to delete generation", http.StatusInternalServerError)
	}
}
