package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/analytics"
)

// RedeemRequest is the body of POST /coupons/{id}/redeem.
type RedeemRequest struct {
	UserID     string `json:"user_id"`
	DecisionID string `json:"decision_id,omitempty"`
}

// RedeemCouponHandler handles POST /coupons/{id}/redeem. A denied attempt
// is a 409 carrying the typed reason; only transport and lookup failures
// map to error statuses.
func (s *Server) RedeemCouponHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "redeem"
	const method = "POST"

	couponID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid coupon id", http.StatusBadRequest)
		return
	}

	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		s.Metrics.IncrementRequests(endpoint, method, "400")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	coupon := s.DataStore.GetCoupon(couponID)
	if coupon == nil {
		s.Metrics.IncrementRequests(endpoint, method, "404")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "unknown coupon", http.StatusNotFound)
		return
	}

	res, err := s.Guard.TryRedeem(coupon, req.UserID)
	if err != nil {
		s.Logger.Error("redemption failed", zap.Error(err),
			zap.Int("coupon_id", couponID),
			zap.String("user_id", req.UserID))
		s.Metrics.IncrementRequests(endpoint, method, "500")
		s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
		http.Error(w, "redemption failed", http.StatusInternalServerError)
		return
	}

	outcome := "granted"
	status := http.StatusOK
	if !res.Granted {
		outcome = string(res.Reason)
		status = http.StatusConflict
	}
	s.Metrics.IncrementRedemptions(outcome)

	if res.Granted && s.Analytics != nil {
		if err := s.Analytics.RecordEvent(r.Context(), analytics.EventRecord{
			Timestamp:   time.Now().UTC(),
			EventType:   analytics.EventRedemption,
			DecisionID:  req.DecisionID,
			PlacementID: firstPlacementID(coupon.PlacementIDs),
			UserID:      req.UserID,
		}); err != nil {
			s.Logger.Warn("record redemption event", zap.Error(err))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.Logger.Error("encode redemption response", zap.Error(err))
	}
	s.Metrics.IncrementRequests(endpoint, method, strconv.Itoa(status))
	s.Metrics.RecordRequestLatency(endpoint, method, time.Since(start))
}

func firstPlacementID(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}
