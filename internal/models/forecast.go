package models

import "time"

// Forecast scope types. A forecast projects delivery either for every
// placement under a campaign or for every placement competing on a surface.
const (
	ScopeCampaign = "campaign"
	ScopeSurface  = "surface"
)

// ForecastRequest asks for a delivery projection over a horizon.
type ForecastRequest struct {
	ScopeType   string `json:"scope_type"` // ScopeCampaign or ScopeSurface
	ScopeID     string `json:"scope_id"`
	HorizonDays int    `json:"horizon_days"`
}

// ForecastSummary holds the projected totals for the horizon.
type ForecastSummary struct {
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Leads       int64   `json:"leads"`
	Revenue     float64 `json:"revenue"`
	// HourlyRate is the blended impressions-per-hour rate the projection
	// was built from, exposed so reporting can break the totals down.
	HourlyRate float64 `json:"hourly_rate"`
}

// ForecastSnapshot is the derived, read-only projection result. It is
// regenerated on demand and never persisted as source of truth.
type ForecastSnapshot struct {
	ScopeType   string          `json:"scope_type"`
	ScopeID     string          `json:"scope_id"`
	HorizonDays int             `json:"horizon_days"`
	GeneratedAt time.Time       `json:"generated_at"`
	Summary     ForecastSummary `json:"summary"`
	// Assumptions lists every default that stood in for missing history,
	// e.g. the fallback CTR. Never silently substituted.
	Assumptions []string `json:"assumptions,omitempty"`
	// SafetyChecks flags non-fatal conditions such as thin history or a
	// budget too small for the horizon.
	SafetyChecks []string `json:"safety_checks,omitempty"`
	// ActivePlacements is the size of the active set the projection covered.
	ActivePlacements int `json:"active_placements"`
}

// PlacementRates are the trailing per-placement delivery rates a forecast is
// derived from.
type PlacementRates struct {
	PlacementID     string  `json:"placement_id"`
	HourlyRate      float64 `json:"hourly_rate"`
	CTR             float64 `json:"ctr"`
	LeadRate        float64 `json:"lead_rate"`
	RevenuePerClick float64 `json:"revenue_per_click"`
	// HistoryDays is how many distinct days of events backed these rates.
	HistoryDays int `json:"history_days"`
}
