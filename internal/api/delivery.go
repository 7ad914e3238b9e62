package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/analytics"
	"github.com/marketgrid/adengine/internal/delivery"
	"github.com/marketgrid/adengine/internal/models"
)

// DeliveryRequest is the body of POST /delivery, the caller's confirmation
// that a granted decision was actually rendered or clicked.
type DeliveryRequest struct {
	DecisionID  string `json:"decision_id"`
	PlacementID string `json:"placement_id"`
	Kind        string `json:"kind"`
	UserID      string `json:"user_id,omitempty"`
}

// DeliveryHandler handles POST /delivery.
func (s *Server) DeliveryHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "delivery"
	const method = "POST"

	var req DeliveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Logger.Error("decode delivery request", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	kind := models.DeliveryKind(req.Kind)
	if req.PlacementID == "" || !models.ValidDeliveryKind(kind) {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "placement_id and a valid kind required", http.StatusBadRequest)
		return
	}

	if err := s.Orchestrator.RecordDelivery(req.PlacementID, kind); err != nil {
		if errors.Is(err, delivery.ErrUnknownPlacement) {
			s.Metrics.IncrementRequests(endpoint, method, "404")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "unknown placement", http.StatusNotFound)
			return
		}
		s.Logger.Error("record delivery", zap.Error(err),
			zap.String("placement_id", req.PlacementID),
			zap.String("kind", req.Kind))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "record delivery failed", http.StatusInternalServerError)
		return
	}

	if s.Analytics != nil {
		p := s.DataStore.GetPlacement(req.PlacementID)
		ev := analytics.EventRecord{
			Timestamp:   time.Now().UTC(),
			EventType:   string(kind),
			DecisionID:  req.DecisionID,
			PlacementID: req.PlacementID,
			UserID:      req.UserID,
		}
		if p != nil {
			ev.CampaignID = int32(p.CampaignID)
			ev.Surface = p.Surface
			ev.Position = p.Position
		}
		if err := s.Analytics.RecordEvent(r.Context(), ev); err != nil {
			s.Logger.Warn("record delivery event", zap.Error(err))
		}
	}

	s.Metrics.IncrementRequests(endpoint, method, "204")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
	w.WriteHeader(http.StatusNoContent)
}
