package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/EdissonBeltGom/product/observe"
	"github.com/EdissonBeltGom/product/resilience"
)

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	type resourceView struct {
		resilience.ResourceMetrics
		SuccessRate     float64 `json:"successRate"`
		AverageAttempts float64 `json:"averageAttempts"`
	}
	all := s.metrics.All()
	out := make(map[string]resourceView, len(all))
	for name, m := range all {
		out[name] = resourceView{
			ResourceMetrics: m,
			SuccessRate:     m.SuccessRate(),
			AverageAttempts: m.AverageAttempts(),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	type breakerView struct {
		State       string  `json:"state"`
		WindowCalls int     `json:"windowCalls"`
		Failures    int     `json:"failures"`
		FailureRate float64 `json:"failureRate"`
	}
	snaps := s.registry.BreakerSnapshots()
	out := make(map[string]breakerView, len(snaps))
	for name, snap := range snaps {
		out[name] = breakerView{
			State:       snap.State.String(),
			WindowCalls: snap.WindowCalls,
			Failures:    snap.Failures,
			FailureRate: snap.FailureRate,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLimiters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.LimiterSnapshots())
}

func (s *Server) handleMetricsReset(w http.ResponseWriter, r *http.Request) {
	s.metrics.Reset()
	s.logger.Info(r.Context(), "metrics reset")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLimiterCapacity(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var body struct {
		Capacity int `json:"capacity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid capacity payload"))
		return
	}

	err := s.registry.UpdateRateLimiterCapacity(name, body.Capacity)
	switch {
	case err == nil:
		s.logger.Info(r.Context(), "rate limiter capacity updated",
			observe.F("limiter", name), observe.F("capacity", body.Capacity))
		writeJSON(w, http.StatusOK, map[string]any{"limiter": name, "capacity": body.Capacity})
	case errors.Is(err, resilience.ErrUnknownResource):
		writeJSON(w, http.StatusNotFound, errorBody("unknown rate limiter"))
	default:
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	}
}
