package models

// LifecycleState is the delivery lifecycle of placements and coupons. The
// value persisted on a record is the manually managed status; the effective
// state folds in the flight window and is derived on read.
type LifecycleState string

const (
	StateDraft     LifecycleState = "draft"
	StateScheduled LifecycleState = "scheduled"
	StateActive    LifecycleState = "active"
	StatePaused    LifecycleState = "paused"
	StateExpired   LifecycleState = "expired"
	StateArchived  LifecycleState = "archived"
)

// PacingMode selects how a placement's delivery is throttled inside its
// flight window.
type PacingMode string

const (
	// PacingEven spreads the remaining impression goal uniformly over the
	// remaining flight hours.
	PacingEven PacingMode = "even"
	// PacingBurst applies no smoothing; delivery runs up to the hourly cap.
	PacingBurst PacingMode = "burst"
	// PacingASAP ignores hourly smoothing entirely.
	PacingASAP PacingMode = "asap"
)

// DeliveryKind is a confirmed delivery event type.
type DeliveryKind string

const (
	DeliveryImpression DeliveryKind = "impression"
	DeliveryClick      DeliveryKind = "click"
)

// ValidDeliveryKind reports whether the kind is one the engine counts.
func ValidDeliveryKind(k DeliveryKind) bool {
	return k == DeliveryImpression || k == DeliveryClick
}
