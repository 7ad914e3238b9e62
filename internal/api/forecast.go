package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/models"
)

// ForecastHandler handles POST /forecast.
func (s *Server) ForecastHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "forecast"
	const method = "POST"

	var req models.ForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Logger.Error("invalid forecast request", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	snap, err := s.ForecastEngine.Forecast(r.Context(), req)
	if err != nil {
		s.Logger.Error("forecast failed", zap.Error(err),
			zap.String("scope_type", req.ScopeType),
			zap.String("scope_id", req.ScopeID))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.Metrics.RecordForecastLatency(time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.Logger.Error("encode forecast response", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		return
	}
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
