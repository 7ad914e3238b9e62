package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Budget is a monetary amount in a single currency. Amounts use decimal to
// avoid float drift when budgets are compared against projected spend.
type Budget struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Campaign groups creatives under a shared objective and budget. Delivery
// rules live on the Placement; the campaign is the reporting and budgeting
// container the admin layer manages.
type Campaign struct {
	ID        int            `json:"id"`
	Name      string         `json:"name"`
	Objective string         `json:"objective"`
	Status    LifecycleState `json:"status"`
	Budget    Budget         `json:"budget"`
	// StartDate/EndDate bound the campaign as a whole. The admin layer
	// guarantees EndDate, when set, is never before StartDate.
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	// KeywordHints seed the default keyword vector for placements created
	// under this campaign.
	KeywordHints []string `json:"keyword_hints,omitempty"`
}

// Creative is the renderable unit a placement schedules. A creative may back
// multiple placements and outlives any individual one.
type Creative struct {
	ID         int            `json:"id"`
	CampaignID int            `json:"campaign_id"`
	Type       string         `json:"type"`
	Status     LifecycleState `json:"status"`
	Headline   string         `json:"headline"`
	Body       string         `json:"body"`
	CTA        string         `json:"cta"`
	MediaURL   string         `json:"media_url,omitempty"`
}
