package api

import (
	"net/http"
	"time"
)

// handleHealthCheck reports overall service health.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"engine_version": EngineVersion,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

// handleReadiness checks that the database answers.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if _, err := s.db.JackpotPool(); err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, ErrTypeInternal, "database not ready")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLiveness is a trivial liveness probe.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}
