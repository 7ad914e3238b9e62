package api

import (
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/analytics"
	"github.com/marketgrid/adengine/internal/config"
	"github.com/marketgrid/adengine/internal/db"
	"github.com/marketgrid/adengine/internal/delivery"
	"github.com/marketgrid/adengine/internal/forecasting"
	"github.com/marketgrid/adengine/internal/geoip"
	"github.com/marketgrid/adengine/internal/models"
	"github.com/marketgrid/adengine/internal/observability"
	"github.com/marketgrid/adengine/internal/redemption"
)

var tracer = otel.Tracer("adengine")

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger         *zap.Logger
	Store          *db.RedisStore
	PG             *db.Postgres
	Analytics      analytics.Service
	GeoIP          *geoip.GeoIP
	DataStore      models.DataStore
	Orchestrator   *delivery.Orchestrator
	Guard          *redemption.Guard
	ForecastEngine *forecasting.Engine
	Metrics        observability.MetricsRegistry
	Config         config.Config
	reloadMu       sync.Mutex
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, store *db.RedisStore, pg *db.Postgres, analyticsSvc analytics.Service, geo *geoip.GeoIP, dataStore models.DataStore, orch *delivery.Orchestrator, guard *redemption.Guard, forecast *forecasting.Engine, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	return &Server{
		Logger:         logger,
		Store:          store,
		PG:             pg,
		Analytics:      analyticsSvc,
		GeoIP:          geo,
		DataStore:      dataStore,
		Orchestrator:   orch,
		Guard:          guard,
		ForecastEngine: forecast,
		Metrics:        metrics,
		Config:         cfg,
	}
}

// RegisterRoutes attaches all handlers to the router.
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/select", s.SelectHandler).Methods("POST")
	r.HandleFunc("/delivery", s.DeliveryHandler).Methods("POST")
	r.HandleFunc("/coupons/{id}/redeem", s.RedeemCouponHandler).Methods("POST")
	r.HandleFunc("/forecast", s.ForecastHandler).Methods("POST")
	r.HandleFunc("/reload", s.ReloadHandler).Methods("POST")
	r.HandleFunc("/health", s.HealthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())
}

// Reload re-reads every entity table from Postgres and swaps the in-memory
// snapshot atomically. Serialized so overlapping triggers cannot interleave
// partial loads.
func (s *Server) Reload() error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	campaigns, err := s.PG.LoadCampaigns()
	if err != nil {
		return err
	}
	creatives, err := s.PG.LoadCreatives()
	if err != nil {
		return err
	}
	placements, err := s.PG.LoadPlacements()
	if err != nil {
		return err
	}
	coupons, err := s.PG.LoadCoupons()
	if err != nil {
		return err
	}
	surfaces, err := s.PG.LoadSurfaces()
	if err != nil {
		return err
	}
	if err := s.DataStore.ReloadAll(campaigns, creatives, placements, coupons, surfaces); err != nil {
		return err
	}

	s.Logger.Info("entity snapshot reloaded",
		zap.Int("campaigns", len(campaigns)),
		zap.Int("creatives", len(creatives)),
		zap.Int("placements", len(placements)),
		zap.Int("coupons", len(coupons)),
		zap.Int("surfaces", len(surfaces)),
	)
	return nil
}
