package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Discount types for coupons.
const (
	DiscountPercent = "percent"
	DiscountFixed   = "fixed"
)

// Discount is the value a coupon takes off an order.
type Discount struct {
	Type  string          `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// Coupon is a redeemable promotion attached to one or more placements. The
// engine enforces the redemption ceilings; everything else about the coupon
// is managed by the admin layer.
type Coupon struct {
	ID       int            `json:"id"`
	Code     string         `json:"code"`
	Discount Discount       `json:"discount"`
	Status   LifecycleState `json:"status"`
	StartAt  time.Time      `json:"start_at"`
	EndAt    time.Time      `json:"end_at"`
	// MaxRedemptions caps total grants across all users. 0 means unlimited.
	MaxRedemptions int `json:"max_redemptions,omitempty"`
	// PerUserLimit caps grants per user. 0 means unlimited.
	PerUserLimit int `json:"per_user_limit,omitempty"`
	// PlacementIDs links the coupon to placements, ordered by join priority
	// (highest first).
	PlacementIDs []string `json:"placement_ids,omitempty"`
}
