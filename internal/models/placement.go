package models

import "time"

// Placement is the core entity for delivery control: a scheduled assignment
// of one creative to one surface/position for a flight window, with its own
// pacing, weighting and targeting vectors. The engine only ever transitions
// a placement's status value; creation and archival happen in the admin
// layer.
type Placement struct {
	ID         string `json:"id"`
	CreativeID int    `json:"creative_id"`
	CampaignID int    `json:"campaign_id"`
	// Surface and Position name the delivery context this placement competes
	// in (e.g. "seller-dashboard" / "top-banner").
	Surface  string `json:"surface"`
	Position string `json:"position"`
	// Status is the manually managed lifecycle value. The effective delivery
	// state additionally folds in StartAt/EndAt; see the lifecycle package.
	Status     LifecycleState `json:"status"`
	PacingMode PacingMode     `json:"pacing_mode"`
	// Weight is the relative selection strength among competing placements.
	// Must be positive; the admin layer rejects zero or negative weights.
	Weight int `json:"weight"`
	// Priority breaks score ties and gives hard ordering between placements
	// whose scores are indistinguishable. Higher wins.
	Priority int `json:"priority"`
	// StartAt/EndAt delimit the flight window [StartAt, EndAt). A zero EndAt
	// means open-ended.
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
	// MaxImpressionsPerHour caps hourly delivery. nil means uncapped; an
	// explicit 0 makes the placement never eligible (pause-via-cap, distinct
	// from status paused).
	MaxImpressionsPerHour *int `json:"max_impressions_per_hour,omitempty"`
	// ImpressionGoal is the total impression budget for the flight window.
	// Even pacing spreads the remaining goal over the remaining flight
	// hours. 0 means no goal.
	ImpressionGoal int `json:"impression_goal,omitempty"`
	// OpportunityType is an optional targeting tag matched against the
	// request context when present.
	OpportunityType string `json:"opportunity_type,omitempty"`
	// KeywordWeights and TaxonomyWeights are the weighted term vectors the
	// scoring engine matches request hints against.
	KeywordWeights  map[string]float64 `json:"keyword_weights,omitempty"`
	TaxonomyWeights map[string]float64 `json:"taxonomy_weights,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// HourlyCap returns the effective hourly cap and whether one is set.
func (p *Placement) HourlyCap() (int, bool) {
	if p.MaxImpressionsPerHour == nil {
		return 0, false
	}
	return *p.MaxImpressionsPerHour, true
}

// Surface is a named delivery context with zero or more positions that
// placements compete for.
type Surface struct {
	ID        string   `json:"id"`
	Label     string   `json:"label"`
	Positions []string `json:"positions,omitempty"`
}
