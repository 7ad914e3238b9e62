package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore wraps a redis client and context for counter operations. Redis
// holds all mutable engine state: per-placement hourly delivery counters and
// per-coupon redemption counters. Entity records never live here.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:    context.Background(),
	}

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// HourKey formats an instant into the hourly counter bucket key fragment.
// Counters are bucketed in UTC so a placement's hourly cap doesn't shift
// with server timezones.
func HourKey(t time.Time) string {
	return t.UTC().Format("2006-01-02T15")
}

// deliveryCounterTTL keeps hourly delivery counters long enough for the
// forecasting trailing window plus a day of slack.
const deliveryCounterTTL = 8 * 24 * time.Hour

// IncrementDelivery bumps the hourly counter for a confirmed delivery event
// (impression or click) on a placement. The TTL is applied on first set.
func (r *RedisStore) IncrementDelivery(placementID, kind string, at time.Time) error {
	key := fmt.Sprintf("deliv:%s:%s:%s", kind, placementID, HourKey(at))
	val, err := r.Client.Incr(r.Ctx, key).Result()
	if err != nil {
		return err
	}
	if val == 1 {
		r.Client.Expire(r.Ctx, key, deliveryCounterTTL)
	}
	return nil
}

// DeliveryCount returns the counter for one placement/kind/hour bucket.
// Missing buckets read as zero.
func (r *RedisStore) DeliveryCount(placementID, kind string, hour time.Time) (int64, error) {
	key := fmt.Sprintf("deliv:%s:%s:%s", kind, placementID, HourKey(hour))
	val, err := r.Client.Get(r.Ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

// SumDeliveries sums the hourly counters for a placement and kind over
// [from, to) using a single MGET.
func (r *RedisStore) SumDeliveries(placementID, kind string, from, to time.Time) (int64, error) {
	var keys []string
	for h := from.UTC().Truncate(time.Hour); h.Before(to); h = h.Add(time.Hour) {
		keys = append(keys, fmt.Sprintf("deliv:%s:%s:%s", kind, placementID, HourKey(h)))
	}
	if len(keys) == 0 {
		return 0, nil
	}
	vals, err := r.Client.MGet(r.Ctx, keys...).Result()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, v := range vals {
		if s, ok := v.(string); ok {
			var n int64
			if _, err := fmt.Sscan(s, &n); err == nil {
				total += n
			}
		}
	}
	return total, nil
}

// FlightTotal returns the number of slots reserved for a placement across
// its whole flight. Used by even pacing to compute the remaining goal.
func (r *RedisStore) FlightTotal(placementID string) (int64, error) {
	val, err := r.Client.Get(r.Ctx, fmt.Sprintf("pace:total:%s", placementID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

// RedemptionCount returns the global redemption counter for a coupon.
func (r *RedisStore) RedemptionCount(couponID int) (int64, error) {
	val, err := r.Client.Get(r.Ctx, fmt.Sprintf("coupon:redemptions:%d", couponID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

// UserRedemptionCount returns one user's redemption counter for a coupon.
func (r *RedisStore) UserRedemptionCount(couponID int, userID string) (int64, error) {
	val, err := r.Client.Get(r.Ctx, fmt.Sprintf("coupon:user:%d:%s", couponID, userID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return val, err
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
