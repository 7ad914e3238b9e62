package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/analytics"
	"github.com/marketgrid/adengine/internal/config"
	"github.com/marketgrid/adengine/internal/db"
	"github.com/marketgrid/adengine/internal/delivery"
	"github.com/marketgrid/adengine/internal/forecasting"
	"github.com/marketgrid/adengine/internal/models"
	"github.com/marketgrid/adengine/internal/observability"
	"github.com/marketgrid/adengine/internal/pacing"
	"github.com/marketgrid/adengine/internal/redemption"
)

var apiNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	ms        *miniredis.Miniredis
	router    *mux.Router
	dataStore *models.InMemoryDataStore
	analytics *analytics.MockService
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()
	ms, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(ms.Close)

	store := &db.RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: ms.Addr()}),
		Ctx:    context.Background(),
	}
	clock := func() time.Time { return apiNow }
	logger := zap.NewNop()
	metrics := observability.NewNoOpRegistry()

	pacer := pacing.NewController(store, logger)
	pacer.SetClock(clock)
	guard := redemption.NewGuard(store, logger)
	guard.SetClock(clock)

	dataStore := models.NewTestDataStore()
	orch := delivery.NewOrchestrator(dataStore, pacer, logger, metrics)
	orch.SetClock(clock)

	engine := forecasting.NewEngine(dataStore, &forecasting.CounterHistory{Store: store}, logger, 0.02)
	engine.SetClock(clock)

	mock := analytics.NewMockService()
	srv := NewServer(logger, store, nil, mock, nil, dataStore, orch, guard, engine, metrics, config.Config{})

	r := mux.NewRouter()
	srv.RegisterRoutes(r)
	return &testEnv{ms: ms, router: r, dataStore: dataStore, analytics: mock}
}

func (e *testEnv) seedPlacement(t *testing.T) {
	t.Helper()
	require.NoError(t, e.dataStore.SetPlacements([]models.Placement{{
		ID:         "pl-1",
		CreativeID: 1,
		CampaignID: 1,
		Surface:    "home",
		Position:   "top",
		Status:     models.StateActive,
		PacingMode: models.PacingBurst,
		Weight:     10,
		StartAt:    apiNow.Add(-time.Hour),
		EndAt:      apiNow.Add(24 * time.Hour),
	}}))
	require.NoError(t, e.dataStore.SetCreatives([]models.Creative{{
		ID: 1, CampaignID: 1, Headline: "Summer sale", CTA: "Shop now",
	}}))
}

func (e *testEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestSelectHandler_Serves(t *testing.T) {
	env := setupServer(t)
	env.seedPlacement(t)

	rec := env.do("POST", "/select", SelectRequest{Surface: "home", Position: "top"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sel delivery.Selection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sel))
	assert.Equal(t, "pl-1", sel.Placement.ID)
	assert.NotEmpty(t, sel.DecisionID)
	require.NotNil(t, sel.Creative)
	assert.Equal(t, "Summer sale", sel.Creative.Headline)

	events := env.analytics.Recorded()
	require.Len(t, events, 1)
	assert.Equal(t, analytics.EventSelection, events[0].EventType)
	assert.Equal(t, sel.DecisionID, events[0].DecisionID)
}

func TestSelectHandler_MissingSurface(t *testing.T) {
	env := setupServer(t)
	rec := env.do("POST", "/select", SelectRequest{Position: "top"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectHandler_NoFillIs204(t *testing.T) {
	env := setupServer(t)
	rec := env.do("POST", "/select", SelectRequest{Surface: "empty-surface"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, env.analytics.Recorded())
}

func TestSelectHandler_BadJSON(t *testing.T) {
	env := setupServer(t)
	req := httptest.NewRequest("POST", "/select", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeliveryHandler(t *testing.T) {
	env := setupServer(t)
	env.seedPlacement(t)

	rec := env.do("POST", "/delivery", DeliveryRequest{
		DecisionID:  "dec-1",
		PlacementID: "pl-1",
		Kind:        "impression",
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	val, err := env.ms.Get("deliv:impression:pl-1:" + db.HourKey(apiNow))
	require.NoError(t, err)
	assert.Equal(t, "1", val)

	events := env.analytics.Recorded()
	require.Len(t, events, 1)
	assert.Equal(t, "impression", events[0].EventType)
	assert.Equal(t, "home", events[0].Surface)
}

func TestDeliveryHandler_Validation(t *testing.T) {
	env := setupServer(t)
	env.seedPlacement(t)

	rec := env.do("POST", "/delivery", DeliveryRequest{PlacementID: "pl-1", Kind: "view"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown kind must be rejected")

	rec = env.do("POST", "/delivery", DeliveryRequest{Kind: "impression"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing placement_id must be rejected")

	rec = env.do("POST", "/delivery", DeliveryRequest{PlacementID: "ghost", Kind: "click"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown placement must 404")
}

func TestRedeemCouponHandler(t *testing.T) {
	env := setupServer(t)
	require.NoError(t, env.dataStore.SetCoupons([]models.Coupon{{
		ID:             5,
		Code:           "SAVE10",
		Status:         models.StateActive,
		StartAt:        apiNow.Add(-time.Hour),
		EndAt:          apiNow.Add(24 * time.Hour),
		MaxRedemptions: 1,
	}}))

	rec := env.do("POST", "/coupons/5/redeem", RedeemRequest{UserID: "user-a"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res redemption.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Granted)

	// Ceiling hit: typed denial with 409, not an error.
	rec = env.do("POST", "/coupons/5/redeem", RedeemRequest{UserID: "user-b"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Granted)
	assert.Equal(t, redemption.ReasonGlobalLimitReached, res.Reason)
}

func TestRedeemCouponHandler_Validation(t *testing.T) {
	env := setupServer(t)

	rec := env.do("POST", "/coupons/99/redeem", RedeemRequest{UserID: "user-a"})
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown coupon must 404")

	require.NoError(t, env.dataStore.SetCoupons([]models.Coupon{{
		ID: 5, Code: "SAVE10", Status: models.StateActive,
	}}))
	rec = env.do("POST", "/coupons/5/redeem", RedeemRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing user_id must be rejected")
}

func TestForecastHandler(t *testing.T) {
	env := setupServer(t)
	require.NoError(t, env.dataStore.SetPlacements([]models.Placement{{
		ID:                    "pl-1",
		CampaignID:            1,
		Surface:               "home",
		Status:                models.StateActive,
		PacingMode:            models.PacingBurst,
		Weight:                10,
		StartAt:               apiNow.Add(-time.Hour),
		EndAt:                 apiNow.AddDate(0, 1, 0),
		MaxImpressionsPerHour: models.IntPtr(10),
	}}))

	rec := env.do("POST", "/forecast", models.ForecastRequest{
		ScopeType:   models.ScopeCampaign,
		ScopeID:     "1",
		HorizonDays: 7,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var snap models.ForecastSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.ActivePlacements)
	// Cold start: the capped burst target (10/h) backs the projection.
	assert.Equal(t, int64(10*24*7), snap.Summary.Impressions)
	assert.NotEmpty(t, snap.Assumptions)
}

func TestForecastHandler_BadRequest(t *testing.T) {
	env := setupServer(t)
	rec := env.do("POST", "/forecast", models.ForecastRequest{ScopeType: "publisher", ScopeID: "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	env := setupServer(t)
	rec := env.do("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
