package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/config"
	"github.com/marketgrid/adengine/internal/db"
	"github.com/marketgrid/adengine/internal/delivery"
	"github.com/marketgrid/adengine/internal/forecasting"
	"github.com/marketgrid/adengine/internal/lifecycle"
	"github.com/marketgrid/adengine/internal/models"
	"github.com/marketgrid/adengine/internal/observability"
	"github.com/marketgrid/adengine/internal/pacing"
)

// EngineServer exposes the delivery engine over the Model Context Protocol.
type EngineServer struct {
	store    models.DataStore
	redis    *db.RedisStore
	orch     *delivery.Orchestrator
	forecast *forecasting.Engine
	logger   *zap.Logger
}

type SelectPlacementInput struct {
	Surface       string   `json:"surface"`
	Position      string   `json:"position,omitempty"`
	KeywordHints  []string `json:"keyword_hints,omitempty"`
	TaxonomyHints []string `json:"taxonomy_hints,omitempty"`
	UserID        string   `json:"user_id,omitempty"`
}

type SelectPlacementOutput struct {
	Selection *delivery.Selection `json:"selection,omitempty"`
	NoFill    bool                `json:"no_fill,omitempty"`
}

type ForecastInput struct {
	ScopeType   string `json:"scope_type"`
	ScopeID     string `json:"scope_id"`
	HorizonDays int    `json:"horizon_days,omitempty"`
}

type ForecastOutput struct {
	Snapshot *models.ForecastSnapshot `json:"snapshot"`
}

type CouponStatusInput struct {
	CouponID int `json:"coupon_id"`
}

type CouponStatusOutput struct {
	Code            string                `json:"code"`
	State           models.LifecycleState `json:"state"`
	MaxRedemptions  int                   `json:"max_redemptions"`
	RedemptionsUsed int64                 `json:"redemptions_used"`
	Remaining       int64                 `json:"remaining"`
}

// SelectPlacement implements the select_placement tool.
func (s *EngineServer) SelectPlacement(ctx context.Context, req *mcp.CallToolRequest, input SelectPlacementInput) (*mcp.CallToolResult, SelectPlacementOutput, error) {
	scoreCtx := models.ScoreContext{
		KeywordHints:  input.KeywordHints,
		TaxonomyHints: input.TaxonomyHints,
		UserID:        input.UserID,
	}
	sel, err := s.orch.SelectPlacement(input.Surface, input.Position, scoreCtx)
	if err != nil {
		if err == delivery.ErrNoEligiblePlacement {
			return nil, SelectPlacementOutput{NoFill: true}, nil
		}
		return nil, SelectPlacementOutput{}, fmt.Errorf("select placement: %w", err)
	}
	return nil, SelectPlacementOutput{Selection: sel}, nil
}

// Forecast implements the forecast tool.
func (s *EngineServer) Forecast(ctx context.Context, req *mcp.CallToolRequest, input ForecastInput) (*mcp.CallToolResult, ForecastOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	snap, err := s.forecast.Forecast(ctx, models.ForecastRequest{
		ScopeType:   input.ScopeType,
		ScopeID:     input.ScopeID,
		HorizonDays: input.HorizonDays,
	})
	if err != nil {
		return nil, ForecastOutput{}, fmt.Errorf("forecast: %w", err)
	}
	return nil, ForecastOutput{Snapshot: snap}, nil
}

// CouponStatus implements the coupon_status tool.
func (s *EngineServer) CouponStatus(ctx context.Context, req *mcp.CallToolRequest, input CouponStatusInput) (*mcp.CallToolResult, CouponStatusOutput, error) {
	coupon := s.store.GetCoupon(input.CouponID)
	if coupon == nil {
		return nil, CouponStatusOutput{}, fmt.Errorf("unknown coupon %d", input.CouponID)
	}
	used, err := s.redis.RedemptionCount(coupon.ID)
	if err != nil {
		return nil, CouponStatusOutput{}, fmt.Errorf("redemption count: %w", err)
	}

	out := CouponStatusOutput{
		Code:            coupon.Code,
		State:           lifecycle.CouponState(coupon, time.Now()),
		MaxRedemptions:  coupon.MaxRedemptions,
		RedemptionsUsed: used,
	}
	if coupon.MaxRedemptions > 0 {
		out.Remaining = int64(coupon.MaxRedemptions) - used
		if out.Remaining < 0 {
			out.Remaining = 0
		}
	}
	return nil, out, nil
}

func main() {
	// Stdio carries the protocol, so all logging goes to stderr.
	zcfg := zap.NewProductionConfig()
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("adengine-mcp").With(zap.String("service", "adengine-mcp"))

	cfg := config.Load()

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pg.Close()

	store, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		logger.Fatal("connect redis", zap.Error(err))
	}
	defer store.Close()

	dataStore := models.NewInMemoryDataStore()
	campaigns, err := pg.LoadCampaigns()
	if err != nil {
		logger.Fatal("load campaigns", zap.Error(err))
	}
	creatives, err := pg.LoadCreatives()
	if err != nil {
		logger.Fatal("load creatives", zap.Error(err))
	}
	placements, err := pg.LoadPlacements()
	if err != nil {
		logger.Fatal("load placements", zap.Error(err))
	}
	coupons, err := pg.LoadCoupons()
	if err != nil {
		logger.Fatal("load coupons", zap.Error(err))
	}
	surfaces, err := pg.LoadSurfaces()
	if err != nil {
		logger.Fatal("load surfaces", zap.Error(err))
	}
	if err := dataStore.ReloadAll(campaigns, creatives, placements, coupons, surfaces); err != nil {
		logger.Fatal("populate data store", zap.Error(err))
	}
	logger.Info("entity snapshot loaded",
		zap.Int("placements", len(placements)),
		zap.Int("coupons", len(coupons)))

	pacer := pacing.NewController(store, logger)
	orch := delivery.NewOrchestrator(dataStore, pacer, logger, observability.NewNoOpRegistry())
	history := &forecasting.CounterHistory{Store: store}
	forecastEngine := forecasting.NewEngine(dataStore, history, logger, cfg.DefaultCTR)

	engine := &EngineServer{
		store:    dataStore,
		redis:    store,
		orch:     orch,
		forecast: forecastEngine,
		logger:   logger,
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "adengine",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "select_placement",
		Description: "Run a delivery decision for a surface and return the winning placement with its reservation",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"surface": map[string]interface{}{
					"type":        "string",
					"description": "Surface ID to select for",
				},
				"position": map[string]interface{}{
					"type":        "string",
					"description": "Position within the surface (optional)",
				},
				"keyword_hints": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Request keyword signals (optional)",
				},
				"taxonomy_hints": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Request taxonomy signals (optional)",
				},
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "Viewer ID for per-user coupon ceilings (optional)",
				},
			},
			"required": []string{"surface"},
		},
	}, engine.SelectPlacement)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "forecast",
		Description: "Project impressions, clicks, leads and revenue for a campaign or surface scope",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"scope_type": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"campaign", "surface"},
					"description": "Forecast scope",
				},
				"scope_id": map[string]interface{}{
					"type":        "string",
					"description": "Campaign or surface ID",
				},
				"horizon_days": map[string]interface{}{
					"type":        "integer",
					"minimum":     1,
					"maximum":     90,
					"description": "Projection horizon in days (optional, defaults to 14)",
				},
			},
			"required": []string{"scope_type", "scope_id"},
		},
	}, engine.Forecast)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "coupon_status",
		Description: "Report a coupon's effective state and remaining redemption headroom",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"coupon_id": map[string]interface{}{
					"type":        "integer",
					"description": "Coupon ID",
				},
			},
			"required": []string{"coupon_id"},
		},
	}, engine.CouponStatus)

	logger.Info("MCP server running via stdio")
	if err := server.Run(context.Background(), &mcp.StdioTransport{}); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
