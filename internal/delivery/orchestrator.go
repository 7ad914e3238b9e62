// Package delivery is the single entry point for delivery-time callers. It
// composes lifecycle derivation, scoring and pacing into "what do I show
// now" answers and accepts the later delivery confirmations.
package delivery

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/lifecycle"
	"github.com/marketgrid/adengine/internal/models"
	"github.com/marketgrid/adengine/internal/observability"
	"github.com/marketgrid/adengine/internal/pacing"
	"github.com/marketgrid/adengine/internal/scoring"
)

var (
	// ErrNoEligiblePlacement means no candidate survived lifecycle, scoring
	// and pacing. It is a legitimate empty-inventory outcome, not a fault.
	ErrNoEligiblePlacement = errors.New("no eligible placement for slot")
	// ErrMissingSurface is the hard validation failure for a request with
	// no surface.
	ErrMissingSurface = errors.New("surface is required")
	// ErrUnknownPlacement is returned when a delivery report references a
	// placement the store doesn't know.
	ErrUnknownPlacement = errors.New("unknown placement")
)

// Selection is a granted delivery decision. The DecisionID is the caller's
// dedup handle when it later confirms the render.
type Selection struct {
	DecisionID  string             `json:"decision_id"`
	Placement   models.Placement   `json:"placement"`
	Creative    *models.Creative   `json:"creative,omitempty"`
	Coupon      *models.Coupon     `json:"coupon,omitempty"`
	Score       float64            `json:"score"`
	Reservation pacing.Reservation `json:"reservation"`
}

// Orchestrator answers selection requests over a pre-loaded entity snapshot.
// It never blocks on network I/O beyond the counter store; entity records
// come from the in-memory data store the admin layer reloads.
type Orchestrator struct {
	store   models.DataStore
	pacer   *pacing.Controller
	logger  *zap.Logger
	metrics observability.MetricsRegistry
	now     func() time.Time
}

// NewOrchestrator constructs an Orchestrator using the real clock.
func NewOrchestrator(store models.DataStore, pacer *pacing.Controller, logger *zap.Logger, metrics observability.MetricsRegistry) *Orchestrator {
	return &Orchestrator{
		store:   store,
		pacer:   pacer,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// SetClock replaces the time source for tests.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// SelectPlacement picks the placement to show in the given surface/position
// right now. Candidates are filtered to effectively-active, ranked, then
// walked in rank order reserving pacing budget; the first granted candidate
// wins. Walking in rank order is what lets score and priority govern who
// gets first claim on scarce hourly budget.
func (o *Orchestrator) SelectPlacement(surface, position string, ctx models.ScoreContext) (*Selection, error) {
	if surface == "" {
		return nil, ErrMissingSurface
	}
	now := o.now()

	candidates := o.store.ListCandidates(surface, position)
	active := candidates[:0:0]
	for i := range candidates {
		p := candidates[i]
		if lifecycle.PlacementState(&p, now) == models.StateActive {
			active = append(active, p)
		}
	}
	if len(active) == 0 {
		o.metrics.IncrementSelections("no_fill")
		return nil, ErrNoEligiblePlacement
	}

	ranked := scoring.Rank(active, ctx, now)
	for _, sp := range ranked {
		res, err := o.pacer.ReserveSlot(&sp.Placement)
		if err != nil {
			o.metrics.IncrementSelections("error")
			return nil, err
		}
		if !res.Granted {
			o.metrics.IncrementReservationDenied(res.Reason)
			continue
		}

		sel := &Selection{
			DecisionID:  uuid.NewString(),
			Placement:   sp.Placement,
			Creative:    o.store.GetCreative(sp.Placement.CreativeID),
			Coupon:      o.activeCoupon(sp.Placement.ID, now),
			Score:       sp.Score,
			Reservation: res,
		}
		o.metrics.IncrementSelections("served")
		o.logger.Debug("placement selected",
			zap.String("decision_id", sel.DecisionID),
			zap.String("placement_id", sp.Placement.ID),
			zap.String("surface", surface),
			zap.String("position", position),
			zap.Float64("score", sp.Score),
		)
		return sel, nil
	}

	o.metrics.IncrementSelections("no_fill")
	return nil, ErrNoEligiblePlacement
}

// activeCoupon returns the first effectively-active coupon linked to the
// placement, in join-priority order. Coupons past their ceilings are still
// returned here; the ceiling is enforced at redemption time.
func (o *Orchestrator) activeCoupon(placementID string, now time.Time) *models.Coupon {
	for _, c := range o.store.ListCouponsByPlacement(placementID) {
		coupon := c
		if lifecycle.CouponState(&coupon, now) == models.StateActive {
			return &coupon
		}
	}
	return nil
}

// RecordDelivery confirms a rendered impression or click for a placement.
// The increment is monotonic; retries are the caller's call, dedup by
// decision ID is the caller's responsibility.
func (o *Orchestrator) RecordDelivery(placementID string, kind models.DeliveryKind) error {
	if o.store.GetPlacement(placementID) == nil {
		return ErrUnknownPlacement
	}
	if err := o.pacer.RecordDelivery(placementID, kind); err != nil {
		return err
	}
	o.metrics.IncrementDeliveries(string(kind))
	return nil
}
