package api

import (
	"net/http"
)

// handleAdapterHealth probes every registered adapter type and returns
// the results. Each probe is bounded by the configured timeout, so the
// response time is the slowest single probe, not the sum.
func (s *Server) handleAdapterHealth(w http.ResponseWriter, r *http.Request) {
	if s.factory == nil {
		writeJSON(w, http.StatusOK, map[string]any{"adapters": []any{}, "count": 0})
		return
	}

	results := s.factory.HealthCheckAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"adapters": results, "count": len(results)})
}

// handleAdapterRecommended returns the adapter type the factory would
// currently select, given the latest health picture.
func (s *Server) handleAdapterRecommended(w http.ResponseWriter, r *http.Request) {
	if s.factory == nil {
		writeNotFound(w, "adapter factory not configured")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"recommended": s.factory.RecommendedType(r.Context()),
	})
}
