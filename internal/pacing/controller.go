// Package pacing throttles placement delivery inside the flight window.
//
// Every placement carries one of three pacing modes:
//   - even spreads the remaining impression goal uniformly over the
//     remaining flight hours so the goal isn't exhausted early.
//   - burst applies no smoothing; delivery runs up to the hourly cap while
//     the window is open.
//   - asap ignores hourly smoothing entirely and is meant to exhaust a
//     capped flight as fast as possible.
//
// Redis backs the hourly slot counters and the per-flight totals. Keys are
// bucketed per placement per UTC hour, so each hour's delivery is tracked
// independently and the check-and-increment stays linearizable per
// (placement, hour) without any cross-placement lock.
package pacing

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/db"
	"github.com/marketgrid/adengine/internal/models"
)

// ErrNilRedisStore is returned when the counter store is nil or uninitialized.
var ErrNilRedisStore = errors.New("redis store is nil")

// Denial reasons surfaced in Reservation.Reason for diagnostics.
const (
	ReasonStaleWindow    = "stale_window"
	ReasonNotStarted     = "not_started"
	ReasonCapZero        = "cap_zero"
	ReasonHourCapReached = "hour_cap_reached"
	ReasonGoalReached    = "goal_reached"
)

const (
	// hourCounterTTL outlives the hour bucket by one hour so late
	// RecordDelivery confirmations still find it.
	hourCounterTTL = 2 * time.Hour
	// flightTotalTTL bounds the per-flight counter for open-ended flights.
	flightTotalTTL = 14 * 24 * time.Hour
)

// reserveScript atomically checks the hourly counter against its limit and
// increments it together with the flight total. ARGV[1] is the hourly limit
// (-1 for unlimited), ARGV[2]/ARGV[3] are the TTLs in seconds.
var reserveScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if limit >= 0 and count >= limit then
  return {0, limit - count}
end
local new = redis.call('INCR', KEYS[1])
if new == 1 then
  redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
end
local total = redis.call('INCR', KEYS[2])
if total == 1 then
  redis.call('EXPIRE', KEYS[2], tonumber(ARGV[3]))
end
if limit >= 0 then
  return {1, limit - new}
end
return {1, -1}
`)

// Reservation is the outcome of a slot request. RemainingThisHour is -1 when
// the placement has no effective hourly limit.
type Reservation struct {
	Granted           bool   `json:"granted"`
	RemainingThisHour int64  `json:"remaining_this_hour"`
	Reason            string `json:"reason,omitempty"`
}

// Controller enforces delivery-rate limits using Redis-backed counters.
type Controller struct {
	store  *db.RedisStore
	logger *zap.Logger
	now    func() time.Time
}

// NewController constructs a Controller using the real clock.
func NewController(store *db.RedisStore, logger *zap.Logger) *Controller {
	return &Controller{store: store, logger: logger, now: time.Now}
}

// SetClock replaces the time source. Tests use this to pin the hour bucket.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// ReserveSlot claims one delivery opportunity for the placement in the
// current hour. The counter check-and-increment is atomic with respect to
// concurrent callers for the same placement; a granted slot that never
// converts into a render is simply never confirmed via RecordDelivery.
func (c *Controller) ReserveSlot(p *models.Placement) (Reservation, error) {
	if c.store == nil || c.store.Client == nil {
		return Reservation{}, ErrNilRedisStore
	}
	now := c.now()

	// A reserve after flight end means the orchestrator ranked a stale
	// candidate. Deny and log; this is not an error condition.
	if !p.EndAt.IsZero() && !now.Before(p.EndAt) {
		c.logger.Info("slot reservation after flight end",
			zap.String("placement_id", p.ID),
			zap.Time("end_at", p.EndAt),
		)
		return Reservation{Reason: ReasonStaleWindow}, nil
	}
	if !p.StartAt.IsZero() && now.Before(p.StartAt) {
		return Reservation{Reason: ReasonNotStarted}, nil
	}

	cap, capSet := p.HourlyCap()
	if capSet && cap == 0 {
		// Explicit zero cap is a hard off switch regardless of mode.
		return Reservation{Reason: ReasonCapZero}, nil
	}

	// The flight goal, when set, stops every mode once exhausted.
	if p.ImpressionGoal > 0 {
		total, err := c.store.FlightTotal(p.ID)
		if err != nil {
			return Reservation{}, fmt.Errorf("read flight total: %w", err)
		}
		if total >= int64(p.ImpressionGoal) {
			return Reservation{Reason: ReasonGoalReached}, nil
		}
	}

	limit := c.hourlyLimit(p, now)
	if limit == 0 {
		return Reservation{Reason: ReasonHourCapReached}, nil
	}

	hourKey := fmt.Sprintf("pace:slots:%s:%s", p.ID, db.HourKey(now))
	totalKey := fmt.Sprintf("pace:total:%s", p.ID)
	res, err := reserveScript.Run(c.store.Ctx, c.store.Client,
		[]string{hourKey, totalKey},
		limit,
		int(hourCounterTTL.Seconds()),
		int(flightTotalTTL.Seconds()),
	).Int64Slice()
	if err != nil {
		return Reservation{}, fmt.Errorf("reserve slot: %w", err)
	}
	if len(res) != 2 {
		return Reservation{}, fmt.Errorf("reserve slot: unexpected script reply %v", res)
	}
	r := Reservation{Granted: res[0] == 1, RemainingThisHour: res[1]}
	if !r.Granted {
		r.Reason = ReasonHourCapReached
		if r.RemainingThisHour < 0 {
			r.RemainingThisHour = 0
		}
	}
	return r, nil
}

// hourlyLimit computes the number of slots the placement may claim in the
// current hour. -1 means unlimited.
func (c *Controller) hourlyLimit(p *models.Placement, now time.Time) int64 {
	cap, capSet := p.HourlyCap()

	switch p.PacingMode {
	case models.PacingASAP:
		// No smoothing and no hourly cap; only the zero-cap off switch and
		// the flight goal hold an asap placement back.
		return -1
	case models.PacingBurst:
		if capSet {
			return int64(cap)
		}
		return -1
	case models.PacingEven:
		target := c.evenTarget(p, now)
		if target < 0 {
			if capSet {
				return int64(cap)
			}
			return -1
		}
		if capSet && int64(cap) < target {
			return int64(cap)
		}
		return target
	default:
		// Unknown mode behaves like burst so a bad record degrades to
		// cap-only enforcement instead of unthrottled delivery.
		if capSet {
			return int64(cap)
		}
		return -1
	}
}

// evenTarget spreads the remaining impression goal over the remaining flight
// hours, rounding up so short final hours still deliver. Returns -1 when no
// smoothing target applies (no goal or open-ended window).
//
// The current hour's own grants are added back into the remaining goal so
// the target stays fixed within an hour; the hourly counter, not a shrinking
// target, enforces the in-hour limit.
func (c *Controller) evenTarget(p *models.Placement, now time.Time) int64 {
	if p.ImpressionGoal <= 0 || p.EndAt.IsZero() {
		return -1
	}
	total, err := c.store.FlightTotal(p.ID)
	if err != nil {
		c.logger.Error("redis get flight total", zap.Error(err), zap.String("placement_id", p.ID))
		total = 0
	}
	hourKey := fmt.Sprintf("pace:slots:%s:%s", p.ID, db.HourKey(now))
	hourCount, err := c.store.Client.Get(c.store.Ctx, hourKey).Int64()
	if err != nil && err != redis.Nil {
		c.logger.Error("redis get hour count", zap.Error(err), zap.String("placement_id", p.ID))
		hourCount = 0
	}
	remaining := int64(p.ImpressionGoal) - total + hourCount
	if remaining <= 0 {
		return 0
	}
	hours := int64(math.Ceil(p.EndAt.Sub(now).Hours()))
	if hours < 1 {
		hours = 1
	}
	return int64(math.Ceil(float64(remaining) / float64(hours)))
}

// RecordDelivery confirms that a reserved slot actually rendered. Counters
// are monotonic, so the call is safe to retry, but duplicate confirmations
// double-count unless the caller deduplicates by decision ID.
func (c *Controller) RecordDelivery(placementID string, kind models.DeliveryKind) error {
	if c.store == nil || c.store.Client == nil {
		return ErrNilRedisStore
	}
	if !models.ValidDeliveryKind(kind) {
		return fmt.Errorf("unknown delivery kind %q", kind)
	}
	if err := c.store.IncrementDelivery(placementID, string(kind), c.now()); err != nil {
		c.logger.Error("redis incr delivery", zap.Error(err), zap.String("placement_id", placementID))
		return err
	}
	return nil
}

// TargetHourlyRate returns the pacing-mode rate the placement aims for,
// used by forecasting as the cold-start fallback when no delivery history
// exists. 0 means the mode implies no defined rate.
func TargetHourlyRate(p *models.Placement, now time.Time) float64 {
	cap, capSet := p.HourlyCap()
	switch p.PacingMode {
	case models.PacingEven:
		if p.ImpressionGoal > 0 && !p.EndAt.IsZero() && !p.StartAt.IsZero() {
			hours := p.EndAt.Sub(p.StartAt).Hours()
			if hours >= 1 {
				rate := float64(p.ImpressionGoal) / hours
				if capSet && float64(cap) < rate {
					return float64(cap)
				}
				return rate
			}
		}
		if capSet {
			return float64(cap)
		}
		return 0
	default:
		if capSet {
			return float64(cap)
		}
		return 0
	}
}
