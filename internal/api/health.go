package api

import (
	"net/http"
)

type healthResponse struct {
	Status string `json:"status"`
	Tasks  int    `json:"tasks"`
}

// handleHealthz reports ok when the task store answers a count query.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	_, total, err := s.store.ListTasks(r.Context(), 1, 0)
	if err != nil {
		s.logger.Error("healthz store check", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "task store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Tasks: total})
}
