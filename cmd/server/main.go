package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/analytics"
	"github.com/marketgrid/adengine/internal/api"
	"github.com/marketgrid/adengine/internal/config"
	"github.com/marketgrid/adengine/internal/db"
	"github.com/marketgrid/adengine/internal/delivery"
	"github.com/marketgrid/adengine/internal/forecasting"
	"github.com/marketgrid/adengine/internal/geoip"
	"github.com/marketgrid/adengine/internal/lifecycle"
	"github.com/marketgrid/adengine/internal/models"
	"github.com/marketgrid/adengine/internal/observability"
	"github.com/marketgrid/adengine/internal/pacing"
	"github.com/marketgrid/adengine/internal/redemption"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLogger(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TracingEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	if err := db.Migrate(cfg.PostgresDSN); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	dataStore := models.NewInMemoryDataStore()

	campaigns, err := pg.LoadCampaigns()
	if err != nil {
		return fmt.Errorf("load campaigns: %w", err)
	}
	creatives, err := pg.LoadCreatives()
	if err != nil {
		return fmt.Errorf("load creatives: %w", err)
	}
	placements, err := pg.LoadPlacements()
	if err != nil {
		return fmt.Errorf("load placements: %w", err)
	}
	coupons, err := pg.LoadCoupons()
	if err != nil {
		return fmt.Errorf("load coupons: %w", err)
	}
	surfaces, err := pg.LoadSurfaces()
	if err != nil {
		return fmt.Errorf("load surfaces: %w", err)
	}
	if err := dataStore.ReloadAll(campaigns, creatives, placements, coupons, surfaces); err != nil {
		return fmt.Errorf("populate data store: %w", err)
	}

	store, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	defer store.Close()

	metricsRegistry := observability.NewPrometheusRegistry()

	analyticsSvc, err := analytics.InitClickHouse(cfg.ClickHouseDSN, cfg.CHMaxOpenConns, logger)
	if err != nil {
		return fmt.Errorf("failed to connect clickhouse: %w", err)
	}
	defer analyticsSvc.Close()

	geoSvc, err := geoip.Init(cfg.GeoIPDB)
	if err != nil {
		logger.Warn("geoip unavailable, geo targeting disabled", zap.Error(err))
		geoSvc = nil
	}
	defer func() { _ = geoSvc.Close() }()

	pacer := pacing.NewController(store, logger)
	guard := redemption.NewGuard(store, logger)
	orch := delivery.NewOrchestrator(dataStore, pacer, logger, metricsRegistry)
	history := &forecasting.ClickHouseHistory{DB: analyticsSvc.DB}
	forecastEngine := forecasting.NewEngine(dataStore, history, logger, cfg.DefaultCTR)

	r := mux.NewRouter()
	srvDeps := api.NewServer(logger, store, pg, analyticsSvc, geoSvc, dataStore, orch, guard, forecastEngine, metricsRegistry, cfg)
	srvDeps.RegisterRoutes(r)

	if cfg.SweepInterval > 0 {
		go lifecycle.RunSweep(dataStore, logger, cfg.SweepInterval, time.Now, ctx.Done())
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(r, "adengine"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("delivery engine running", zap.String("addr", srv.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
