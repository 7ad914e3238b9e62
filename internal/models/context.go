package models

// ScoreContext carries the request-side signals the scoring engine matches
// placements against. All fields are optional; an empty context scores every
// candidate on weight and recency alone.
type ScoreContext struct {
	// KeywordHints and TaxonomyHints are the request's interest signals,
	// matched against the placement's weighted vectors.
	KeywordHints  []string `json:"keyword_hints,omitempty"`
	TaxonomyHints []string `json:"taxonomy_hints,omitempty"`
	// OpportunityType, when set, must match a placement's tag if the
	// placement declares one.
	OpportunityType string `json:"opportunity_type,omitempty"`
	// UserID identifies the viewer for per-user coupon ceilings. Empty for
	// anonymous traffic.
	UserID string `json:"user_id,omitempty"`
	// DeviceType and Country are resolved by the targeting layer from the
	// User-Agent and client IP and folded into TaxonomyHints upstream. Kept
	// separately for logging and analytics.
	DeviceType string `json:"device_type,omitempty"`
	Country    string `json:"country,omitempty"`
}
