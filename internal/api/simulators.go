package api

import "net/http"

// simulatorsResponse is the JSON response for GET /simulators.
type simulatorsResponse struct {
	Simulators []simulatorEntry `json:"simulators"`
}

type simulatorEntry struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	Suspends  bool   `json:"suspends"`
	Allocates bool   `json:"allocates"`
}

func (s *Server) handleListSimulators(w http.ResponseWriter, r *http.Request) {
	entries := s.simulators.List()
	resp := simulatorsResponse{Simulators: make([]simulatorEntry, len(entries))}
	for i, e := range entries {
		resp.Simulators[i] = simulatorEntry{
			Type:      string(e.Type),
			Name:      e.Info.Name,
			Suspends:  e.Info.Suspends,
			Allocates: e.Info.Allocs,
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}
