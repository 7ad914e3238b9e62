package forecasting

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/models"
)

var forecastNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// stubHistory serves canned rates per placement; unknown placements read as
// cold (zero history).
type stubHistory struct {
	rates map[string]models.PlacementRates
}

func (s *stubHistory) PlacementRates(_ context.Context, placementID string, _ time.Duration, _ time.Time) (models.PlacementRates, error) {
	if r, ok := s.rates[placementID]; ok {
		r.PlacementID = placementID
		return r, nil
	}
	return models.PlacementRates{PlacementID: placementID}, nil
}

func newTestEngine(store models.DataStore, history HistorySource) *Engine {
	e := NewEngine(store, history, zap.NewNop(), 0.02)
	e.SetClock(func() time.Time { return forecastNow })
	return e
}

func forecastPlacement(id string, campaignID int, surface string) models.Placement {
	return models.Placement{
		ID:         id,
		CampaignID: campaignID,
		Surface:    surface,
		Status:     models.StateActive,
		PacingMode: models.PacingBurst,
		Weight:     10,
		StartAt:    forecastNow.AddDate(0, 0, -7),
		EndAt:      forecastNow.AddDate(0, 1, 0),
	}
}

func TestForecast_CampaignScopeWithHistory(t *testing.T) {
	store := models.NewTestDataStore()
	require.NoError(t, store.SetPlacements([]models.Placement{
		forecastPlacement("pl-1", 1, "home"),
		forecastPlacement("pl-2", 1, "home"),
		forecastPlacement("pl-other", 2, "home"),
	}))

	history := &stubHistory{rates: map[string]models.PlacementRates{
		"pl-1": {HourlyRate: 10, CTR: 0.05, LeadRate: 0.1, RevenuePerClick: 2, HistoryDays: 7},
		"pl-2": {HourlyRate: 5, CTR: 0.02, HistoryDays: 7},
	}}
	e := newTestEngine(store, history)

	snap, err := e.Forecast(context.Background(), models.ForecastRequest{
		ScopeType:   models.ScopeCampaign,
		ScopeID:     "1",
		HorizonDays: 7,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, snap.ActivePlacements, "campaign scope must exclude other campaigns")
	// 15/h over 7 days = 15 * 168 = 2520 impressions.
	assert.Equal(t, int64(2520), snap.Summary.Impressions)
	// 10*0.05 + 5*0.02 = 0.6 clicks/h over 168h.
	assert.Equal(t, int64(100), snap.Summary.Clicks)
	assert.InDelta(t, 15.0, snap.Summary.HourlyRate, 1e-9)
	assert.Empty(t, snap.Assumptions, "full history needs no assumptions")
}

func TestForecast_ColdStartFallsBackToPacingTarget(t *testing.T) {
	store := models.NewTestDataStore()
	cold := forecastPlacement("pl-cold", 1, "home")
	cold.PacingMode = models.PacingEven
	cold.ImpressionGoal = 1000
	cold.StartAt = forecastNow
	cold.EndAt = forecastNow.Add(100 * time.Hour)
	require.NoError(t, store.SetPlacements([]models.Placement{cold}))

	e := newTestEngine(store, &stubHistory{})

	snap, err := e.Forecast(context.Background(), models.ForecastRequest{
		ScopeType:   models.ScopeCampaign,
		ScopeID:     "1",
		HorizonDays: 1,
	})
	require.NoError(t, err)

	// Pacing target: 1000 impressions over 100 flight hours = 10/h.
	assert.Equal(t, int64(240), snap.Summary.Impressions)

	require.NotEmpty(t, snap.Assumptions, "cold start must surface its assumptions")
	assert.Contains(t, snap.Assumptions[0], "pl-cold")
	assert.Contains(t, snap.Assumptions[0], "no delivery history")
	assert.Contains(t, snap.Assumptions[0], "0.0200", "the default CTR must be named")

	found := false
	for _, c := range snap.SafetyChecks {
		if strings.Contains(c, "days of delivery history") {
			found = true
		}
	}
	assert.True(t, found, "thin history must raise a safety check, got %v", snap.SafetyChecks)
}

func TestForecast_SurfaceScope(t *testing.T) {
	store := models.NewTestDataStore()
	require.NoError(t, store.SetPlacements([]models.Placement{
		forecastPlacement("pl-home", 1, "home"),
		forecastPlacement("pl-search", 1, "search"),
	}))
	history := &stubHistory{rates: map[string]models.PlacementRates{
		"pl-home":   {HourlyRate: 4, HistoryDays: 7},
		"pl-search": {HourlyRate: 100, HistoryDays: 7},
	}}
	e := newTestEngine(store, history)

	snap, err := e.Forecast(context.Background(), models.ForecastRequest{
		ScopeType:   models.ScopeSurface,
		ScopeID:     "home",
		HorizonDays: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, snap.ActivePlacements)
	assert.Equal(t, int64(96), snap.Summary.Impressions, "only the scoped surface may contribute")
}

func TestForecast_ExcludesInactivePlacements(t *testing.T) {
	store := models.NewTestDataStore()
	paused := forecastPlacement("pl-paused", 1, "home")
	paused.Status = models.StatePaused
	expired := forecastPlacement("pl-expired", 1, "home")
	expired.EndAt = forecastNow.Add(-time.Hour)
	require.NoError(t, store.SetPlacements([]models.Placement{paused, expired}))

	e := newTestEngine(store, &stubHistory{})

	snap, err := e.Forecast(context.Background(), models.ForecastRequest{
		ScopeType:   models.ScopeCampaign,
		ScopeID:     "1",
		HorizonDays: 7,
	})
	require.NoError(t, err)
	assert.Zero(t, snap.ActivePlacements)
	assert.Zero(t, snap.Summary.Impressions)
	assert.Contains(t, snap.SafetyChecks, "no active placements in scope")
}

func TestForecast_Idempotent(t *testing.T) {
	store := models.NewTestDataStore()
	require.NoError(t, store.SetPlacements([]models.Placement{forecastPlacement("pl-1", 1, "home")}))
	history := &stubHistory{rates: map[string]models.PlacementRates{
		"pl-1": {HourlyRate: 7, CTR: 0.03, HistoryDays: 7},
	}}
	e := newTestEngine(store, history)

	req := models.ForecastRequest{ScopeType: models.ScopeCampaign, ScopeID: "1", HorizonDays: 14}
	first, err := e.Forecast(context.Background(), req)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.Forecast(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, first, again, "same counters and clock must yield the same snapshot")
	}
}

func TestForecast_FlagsShortFlightAndSmallGoal(t *testing.T) {
	store := models.NewTestDataStore()
	p := forecastPlacement("pl-short", 1, "home")
	p.EndAt = forecastNow.AddDate(0, 0, 3)
	p.ImpressionGoal = 100
	require.NoError(t, store.SetPlacements([]models.Placement{p}))
	history := &stubHistory{rates: map[string]models.PlacementRates{
		"pl-short": {HourlyRate: 10, HistoryDays: 7},
	}}
	e := newTestEngine(store, history)

	snap, err := e.Forecast(context.Background(), models.ForecastRequest{
		ScopeType:   models.ScopeCampaign,
		ScopeID:     "1",
		HorizonDays: 14,
	})
	require.NoError(t, err)

	var flaggedFlight, flaggedGoal bool
	for _, c := range snap.SafetyChecks {
		if strings.Contains(c, "flight ends before horizon") {
			flaggedFlight = true
		}
		if strings.Contains(c, "impression budget insufficient") {
			flaggedGoal = true
		}
	}
	assert.True(t, flaggedFlight, "flight shorter than horizon must be flagged, got %v", snap.SafetyChecks)
	assert.True(t, flaggedGoal, "goal below projection must be flagged, got %v", snap.SafetyChecks)
}

func TestForecast_Validation(t *testing.T) {
	e := newTestEngine(models.NewTestDataStore(), &stubHistory{})

	cases := []struct {
		name string
		req  models.ForecastRequest
	}{
		{"missing scope id", models.ForecastRequest{ScopeType: models.ScopeCampaign, HorizonDays: 7}},
		{"bad scope type", models.ForecastRequest{ScopeType: "publisher", ScopeID: "1", HorizonDays: 7}},
		{"negative horizon", models.ForecastRequest{ScopeType: models.ScopeSurface, ScopeID: "home", HorizonDays: -1}},
		{"horizon too long", models.ForecastRequest{ScopeType: models.ScopeSurface, ScopeID: "home", HorizonDays: 365}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Forecast(context.Background(), tc.req)
			assert.Error(t, err)
		})
	}
}

func TestForecast_DefaultHorizon(t *testing.T) {
	store := models.NewTestDataStore()
	require.NoError(t, store.SetPlacements([]models.Placement{forecastPlacement("pl-1", 1, "home")}))
	e := newTestEngine(store, &stubHistory{rates: map[string]models.PlacementRates{
		"pl-1": {HourlyRate: 1, HistoryDays: 7},
	}})

	snap, err := e.Forecast(context.Background(), models.ForecastRequest{
		ScopeType: models.ScopeCampaign,
		ScopeID:   "1",
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultHorizonDays, snap.HorizonDays)
}
