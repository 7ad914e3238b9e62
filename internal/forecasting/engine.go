// Package forecasting projects future delivery volume for a campaign or
// surface from the engine's own counters. The model is deliberately
// deterministic: trailing rates multiplied out over the horizon, with every
// substituted default surfaced as an explicit assumption.
package forecasting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/lifecycle"
	"github.com/marketgrid/adengine/internal/models"
	"github.com/marketgrid/adengine/internal/pacing"
)

const (
	// DefaultHorizonDays is used when a request leaves the horizon unset.
	DefaultHorizonDays = 14
	maxHorizonDays     = 90
	// trailingWindow is how far back delivery history is read.
	trailingWindow = 7 * 24 * time.Hour
	// minHistoryDays is the history depth below which a safety check fires.
	minHistoryDays = 3
)

// Engine generates forecast snapshots.
type Engine struct {
	store   models.DataStore
	history HistorySource
	logger  *zap.Logger
	// defaultCTR stands in for trailing CTR on cold start. It is always
	// surfaced in the snapshot's assumptions, never silently substituted.
	defaultCTR float64
	now        func() time.Time
}

// NewEngine constructs a forecasting engine.
func NewEngine(store models.DataStore, history HistorySource, logger *zap.Logger, defaultCTR float64) *Engine {
	return &Engine{
		store:      store,
		history:    history,
		logger:     logger,
		defaultCTR: defaultCTR,
		now:        time.Now,
	}
}

// SetClock replaces the time source for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Forecast projects impressions, clicks, leads and revenue for the scope
// over the horizon. Identical counters and clock yield identical snapshots.
func (e *Engine) Forecast(ctx context.Context, req models.ForecastRequest) (*models.ForecastSnapshot, error) {
	if req.HorizonDays == 0 {
		req.HorizonDays = DefaultHorizonDays
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	now := e.now()
	active := e.activeSet(req, now)

	snap := &models.ForecastSnapshot{
		ScopeType:        req.ScopeType,
		ScopeID:          req.ScopeID,
		HorizonDays:      req.HorizonDays,
		GeneratedAt:      now,
		ActivePlacements: len(active),
	}
	if len(active) == 0 {
		snap.SafetyChecks = append(snap.SafetyChecks, "no active placements in scope")
		return snap, nil
	}

	horizonHours := float64(req.HorizonDays) * 24
	var hourlyRate, clicksPerHour, leadsPerHour, revenuePerHour float64
	minDays := -1

	for i := range active {
		p := &active[i]
		rates, err := e.history.PlacementRates(ctx, p.ID, trailingWindow, now)
		if err != nil {
			return nil, fmt.Errorf("placement %s history: %w", p.ID, err)
		}

		if rates.HistoryDays == 0 || rates.HourlyRate == 0 {
			// Cold start: fall back to the pacing-mode target rate and the
			// documented default CTR.
			rates.HourlyRate = pacing.TargetHourlyRate(p, now)
			rates.CTR = e.defaultCTR
			snap.Assumptions = append(snap.Assumptions,
				fmt.Sprintf("placement %s: no delivery history, using pacing target rate %.1f/h and default CTR %.4f", p.ID, rates.HourlyRate, e.defaultCTR))
			rates.HistoryDays = 0
		}

		if minDays < 0 || rates.HistoryDays < minDays {
			minDays = rates.HistoryDays
		}
		hourlyRate += rates.HourlyRate
		clicksPerHour += rates.HourlyRate * rates.CTR
		leadsPerHour += rates.HourlyRate * rates.CTR * rates.LeadRate
		revenuePerHour += rates.HourlyRate * rates.CTR * rates.RevenuePerClick
	}

	snap.Summary = models.ForecastSummary{
		Impressions: int64(hourlyRate * horizonHours),
		Clicks:      int64(clicksPerHour * horizonHours),
		Leads:       int64(leadsPerHour * horizonHours),
		Revenue:     revenuePerHour * horizonHours,
		HourlyRate:  hourlyRate,
	}

	if minDays < minHistoryDays {
		snap.SafetyChecks = append(snap.SafetyChecks,
			fmt.Sprintf("fewer than %d days of delivery history (%d)", minHistoryDays, maxInt(minDays, 0)))
	}
	e.checkGoals(snap, active, now)

	e.logger.Debug("forecast generated",
		zap.String("scope_type", req.ScopeType),
		zap.String("scope_id", req.ScopeID),
		zap.Int("horizon_days", req.HorizonDays),
		zap.Int64("impressions", snap.Summary.Impressions),
		zap.Int("active_placements", len(active)),
	)
	return snap, nil
}

func validateRequest(req models.ForecastRequest) error {
	if req.ScopeID == "" {
		return fmt.Errorf("scope_id is required")
	}
	if req.ScopeType != models.ScopeCampaign && req.ScopeType != models.ScopeSurface {
		return fmt.Errorf("invalid scope_type %q", req.ScopeType)
	}
	if req.HorizonDays < 1 || req.HorizonDays > maxHorizonDays {
		return fmt.Errorf("horizon_days must be between 1 and %d", maxHorizonDays)
	}
	return nil
}

// activeSet resolves the scope to its effectively-active placements, sorted
// by ID so the generated assumptions are stable.
func (e *Engine) activeSet(req models.ForecastRequest, now time.Time) []models.Placement {
	var scoped []models.Placement
	if req.ScopeType == models.ScopeCampaign {
		var campaignID int
		if _, err := fmt.Sscan(req.ScopeID, &campaignID); err == nil {
			scoped = e.store.ListPlacementsByCampaign(campaignID)
		}
	} else {
		scoped = e.store.ListPlacementsBySurface(req.ScopeID)
	}

	active := make([]models.Placement, 0, len(scoped))
	for i := range scoped {
		p := scoped[i]
		if lifecycle.PlacementState(&p, now) == models.StateActive {
			active = append(active, p)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active
}

// checkGoals flags flights whose impression goals or windows run out before
// the horizon does. The flags are advisory; the summary is not reduced.
func (e *Engine) checkGoals(snap *models.ForecastSnapshot, active []models.Placement, now time.Time) {
	horizonEnd := now.Add(time.Duration(snap.HorizonDays) * 24 * time.Hour)

	var goalTotal int64
	goalsSet := true
	for i := range active {
		p := &active[i]
		if p.ImpressionGoal <= 0 {
			goalsSet = false
		}
		goalTotal += int64(p.ImpressionGoal)
		if !p.EndAt.IsZero() && p.EndAt.Before(horizonEnd) {
			snap.SafetyChecks = append(snap.SafetyChecks,
				fmt.Sprintf("placement %s flight ends before horizon (%s)", p.ID, p.EndAt.Format("2006-01-02")))
		}
	}
	if goalsSet && goalTotal > 0 && goalTotal < snap.Summary.Impressions {
		snap.SafetyChecks = append(snap.SafetyChecks,
			fmt.Sprintf("impression budget insufficient for horizon: goals total %d, projected %d", goalTotal, snap.Summary.Impressions))
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
