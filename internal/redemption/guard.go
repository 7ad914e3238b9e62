// Package redemption enforces coupon redemption ceilings.
//
// The global and per-user counters live in Redis and are checked and
// incremented inside a single Lua script, so a grant can never leave one
// counter updated without the other and concurrent callers can never push a
// coupon past its ceilings.
package redemption

import (
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/db"
	"github.com/marketgrid/adengine/internal/lifecycle"
	"github.com/marketgrid/adengine/internal/models"
)

// ErrNilRedisStore is returned when the counter store is nil or uninitialized.
var ErrNilRedisStore = errors.New("redis store is nil")

// Reason explains a denied redemption. Denials are typed results, not
// errors; callers must branch on them.
type Reason string

const (
	ReasonGranted             Reason = ""
	ReasonGlobalLimitReached  Reason = "GlobalLimitReached"
	ReasonPerUserLimitReached Reason = "PerUserLimitReached"
	ReasonCouponNotActive     Reason = "CouponNotActive"
)

// Result is the outcome of a redemption attempt.
type Result struct {
	Granted bool   `json:"granted"`
	Reason  Reason `json:"reason,omitempty"`
}

// redeemScript checks both ceilings and increments both counters in one
// atomic step. ARGV[1]/ARGV[2] are the global and per-user limits (0 =
// unlimited), ARGV[3] the per-user key TTL in seconds (0 = none).
var redeemScript = redis.NewScript(`
local maxg = tonumber(ARGV[1])
local maxu = tonumber(ARGV[2])
if maxg > 0 then
  local g = tonumber(redis.call('GET', KEYS[1]) or '0')
  if g >= maxg then
    return {0, 'global'}
  end
end
if maxu > 0 then
  local u = tonumber(redis.call('GET', KEYS[2]) or '0')
  if u >= maxu then
    return {0, 'user'}
  end
end
redis.call('INCR', KEYS[1])
local u = redis.call('INCR', KEYS[2])
if u == 1 and tonumber(ARGV[3]) > 0 then
  redis.call('EXPIRE', KEYS[2], tonumber(ARGV[3]))
end
return {1, 'ok'}
`)

// defaultUserKeyTTL bounds per-user counters for open-ended coupons.
const defaultUserKeyTTL = 30 * 24 * time.Hour

// Guard enforces coupon redemption ceilings atomically.
type Guard struct {
	store  *db.RedisStore
	logger *zap.Logger
	now    func() time.Time
}

// NewGuard constructs a Guard using the real clock.
func NewGuard(store *db.RedisStore, logger *zap.Logger) *Guard {
	return &Guard{store: store, logger: logger, now: time.Now}
}

// SetClock replaces the time source for tests.
func (g *Guard) SetClock(now func() time.Time) {
	g.now = now
}

// TryRedeem attempts to redeem the coupon for the user. A coupon whose
// effective lifecycle state is not active is denied before any counter is
// touched; otherwise both ceilings are checked and both counters bumped in
// one atomic step.
func (g *Guard) TryRedeem(coupon *models.Coupon, userID string) (Result, error) {
	if g.store == nil || g.store.Client == nil {
		return Result{}, ErrNilRedisStore
	}
	if coupon == nil {
		return Result{Reason: ReasonCouponNotActive}, nil
	}

	now := g.now()
	if lifecycle.CouponState(coupon, now) != models.StateActive {
		return Result{Reason: ReasonCouponNotActive}, nil
	}

	userTTL := defaultUserKeyTTL
	if !coupon.EndAt.IsZero() {
		userTTL = coupon.EndAt.Sub(now) + 24*time.Hour
	}

	globalKey := fmt.Sprintf("coupon:redemptions:%d", coupon.ID)
	userKey := fmt.Sprintf("coupon:user:%d:%s", coupon.ID, userID)
	reply, err := redeemScript.Run(g.store.Ctx, g.store.Client,
		[]string{globalKey, userKey},
		coupon.MaxRedemptions,
		coupon.PerUserLimit,
		int(userTTL.Seconds()),
	).Slice()
	if err != nil {
		return Result{}, fmt.Errorf("redeem coupon %d: %w", coupon.ID, err)
	}
	if len(reply) != 2 {
		return Result{}, fmt.Errorf("redeem coupon %d: unexpected script reply %v", coupon.ID, reply)
	}

	granted, _ := reply[0].(int64)
	if granted == 1 {
		g.logger.Debug("coupon redeemed",
			zap.Int("coupon_id", coupon.ID),
			zap.String("user_id", userID),
		)
		return Result{Granted: true}, nil
	}

	switch reply[1] {
	case "user":
		return Result{Reason: ReasonPerUserLimitReached}, nil
	default:
		return Result{Reason: ReasonGlobalLimitReached}, nil
	}
}
