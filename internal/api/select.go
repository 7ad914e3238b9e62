package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/analytics"
	"github.com/marketgrid/adengine/internal/delivery"
	"github.com/marketgrid/adengine/internal/models"
	"github.com/marketgrid/adengine/internal/targeting"
)

// SelectRequest is the body of POST /select.
type SelectRequest struct {
	Surface  string              `json:"surface"`
	Position string              `json:"position"`
	Context  models.ScoreContext `json:"context"`
}

func decodeSelectRequest(r *http.Request) (*SelectRequest, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	defer func() {
		_ = r.Body.Close()
	}()

	var req SelectRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return &req, nil
}

// SelectHandler handles POST /select: it enriches the request context with
// device and geo signals, runs the selection walk and returns the granted
// decision. No eligible placement is a 204, not an error.
func (s *Server) SelectHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "SelectHandler",
		trace.WithAttributes(
			attribute.String("http.method", "POST"),
			attribute.String("http.route", "/select"),
		))
	defer span.End()

	start := time.Now()
	const endpoint = "select"
	const method = "POST"

	req, err := decodeSelectRequest(r)
	if err != nil {
		s.Logger.Error("decode select request", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Surface == "" {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "surface required", http.StatusBadRequest)
		return
	}

	scoreCtx := targeting.Enrich(req.Context, r, s.GeoIP)
	span.SetAttributes(
		attribute.String("select.surface", req.Surface),
		attribute.String("select.position", req.Position),
	)

	sel, err := s.Orchestrator.SelectPlacement(req.Surface, req.Position, scoreCtx)
	if err != nil {
		switch {
		case errors.Is(err, delivery.ErrNoEligiblePlacement):
			s.Metrics.IncrementRequests(endpoint, method, "204")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, delivery.ErrMissingSurface):
			s.Metrics.IncrementRequests(endpoint, method, "400")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "surface required", http.StatusBadRequest)
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "selection failed")
			s.Logger.Error("selection failed", zap.Error(err),
				zap.String("surface", req.Surface),
				zap.String("position", req.Position))
			s.Metrics.IncrementRequests(endpoint, method, "500")
			s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
			http.Error(w, "selection failed", http.StatusInternalServerError)
		}
		return
	}

	if s.Analytics != nil {
		if err := s.Analytics.RecordEvent(ctx, analytics.EventRecord{
			Timestamp:   time.Now().UTC(),
			EventType:   analytics.EventSelection,
			DecisionID:  sel.DecisionID,
			PlacementID: sel.Placement.ID,
			CampaignID:  int32(sel.Placement.CampaignID),
			Surface:     req.Surface,
			Position:    req.Position,
			UserID:      scoreCtx.UserID,
			DeviceType:  scoreCtx.DeviceType,
			Country:     scoreCtx.Country,
		}); err != nil {
			s.Logger.Warn("record selection event", zap.Error(err))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(sel); err != nil {
		s.Logger.Error("encode selection response", zap.Error(err))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		return
	}
	s.Metrics.IncrementRequests(endpoint, method, "200")
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}
