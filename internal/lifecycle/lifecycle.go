// Package lifecycle derives the effective delivery state of placements and
// coupons from their persisted status and flight window, and validates the
// manual transitions the admin layer may request.
//
// Derivation is applied on every read rather than materialized by a cron:
// the same (status, startAt, endAt, now) tuple always maps to the same
// state, which keeps eligibility checks pure and reproducible under an
// injected clock.
package lifecycle

import (
	"errors"
	"time"

	"github.com/marketgrid/adengine/internal/models"
)

// ErrInvalidTransition is returned when a requested manual transition is not
// legal from the current state. The request is rejected synchronously and
// never retried.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// stateRank orders the forward path draft → scheduled → active → expired.
// Paused and archived sit outside the path and are handled explicitly.
var stateRank = map[models.LifecycleState]int{
	models.StateDraft:     0,
	models.StateScheduled: 1,
	models.StateActive:    2,
	models.StateExpired:   3,
}

// EffectiveState maps a record's raw fields to its effective delivery state.
//
// Precedence: archived wins over everything; a closed flight window makes the
// record expired; a future window makes it scheduled; otherwise the manual
// status (active, paused, draft) stands. Unknown or malformed status values
// default to draft, so derivation never fails.
func EffectiveState(status models.LifecycleState, startAt, endAt time.Time, now time.Time) models.LifecycleState {
	if status == models.StateArchived {
		return models.StateArchived
	}
	if !endAt.IsZero() && !now.Before(endAt) {
		return models.StateExpired
	}
	if !startAt.IsZero() && now.Before(startAt) {
		return models.StateScheduled
	}
	switch status {
	case models.StateActive:
		return models.StateActive
	case models.StatePaused:
		return models.StatePaused
	case models.StateDraft, models.StateScheduled:
		return status
	default:
		return models.StateDraft
	}
}

// PlacementState derives the effective state of a placement.
func PlacementState(p *models.Placement, now time.Time) models.LifecycleState {
	if p == nil {
		return models.StateDraft
	}
	return EffectiveState(p.Status, p.StartAt, p.EndAt, now)
}

// CouponState derives the effective state of a coupon.
func CouponState(c *models.Coupon, now time.Time) models.LifecycleState {
	if c == nil {
		return models.StateDraft
	}
	return EffectiveState(c.Status, c.StartAt, c.EndAt, now)
}

// CanTransition reports whether a manual transition from one state to
// another is legal.
//
// Rules: any state may be archived (including expired, which is otherwise
// terminal); active and paused are mutually reachable; forward moves along
// draft → scheduled → active → expired are always legal; everything else is
// rejected.
func CanTransition(from, to models.LifecycleState) bool {
	if from == to {
		return false
	}
	if to == models.StateArchived {
		return from != models.StateArchived
	}
	if from == models.StateArchived {
		return false
	}
	if (from == models.StateActive && to == models.StatePaused) ||
		(from == models.StatePaused && to == models.StateActive) {
		return true
	}
	fromRank, okFrom := stateRank[from]
	toRank, okTo := stateRank[to]
	if !okFrom || !okTo {
		return false
	}
	return toRank > fromRank
}

// Transition validates a manual transition and returns the new status value
// to persist, or ErrInvalidTransition.
func Transition(from, to models.LifecycleState) (models.LifecycleState, error) {
	if !CanTransition(from, to) {
		return from, ErrInvalidTransition
	}
	return to, nil
}
