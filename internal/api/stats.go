package api

import (
	"net/http"
)

func (s *Server) handleGetTaskStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Compute(r.Context())
	if err != nil {
		s.logger.Error("compute task stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}
