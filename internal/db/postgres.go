package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/marketgrid/adengine/internal/models"
)

// Postgres wraps the entity-store connection. The engine only reads entity
// records here; all writes happen in the admin application.
type Postgres struct {
	DB *sql.DB
}

// InitPostgres opens an instrumented Postgres connection pool.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*Postgres, error) {
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	zap.L().Info("Connected to Postgres")
	return &Postgres{DB: sqlDB}, nil
}

// LoadCampaigns reads all campaigns.
func (p *Postgres) LoadCampaigns() ([]models.Campaign, error) {
	rows, err := p.DB.Query(`SELECT id, name, objective, status, budget_amount, budget_currency, start_date, end_date, keyword_hints FROM campaigns`)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	var out []models.Campaign
	for rows.Next() {
		var c models.Campaign
		var amount string
		var start, end sql.NullTime
		if err := rows.Scan(&c.ID, &c.Name, &c.Objective, &c.Status, &amount, &c.Budget.Currency, &start, &end, pq.Array(&c.KeywordHints)); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		if c.Budget.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("campaign %d budget: %w", c.ID, err)
		}
		if start.Valid {
			c.StartDate = start.Time
		}
		if end.Valid {
			c.EndDate = end.Time
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// LoadCreatives reads all creatives.
func (p *Postgres) LoadCreatives() ([]models.Creative, error) {
	rows, err := p.DB.Query(`SELECT id, campaign_id, type, status, headline, body, cta, media_url FROM creatives`)
	if err != nil {
		return nil, fmt.Errorf("query creatives: %w", err)
	}
	defer rows.Close()

	var out []models.Creative
	for rows.Next() {
		var c models.Creative
		var media sql.NullString
		if err := rows.Scan(&c.ID, &c.CampaignID, &c.Type, &c.Status, &c.Headline, &c.Body, &c.CTA, &media); err != nil {
			return nil, fmt.Errorf("scan creative: %w", err)
		}
		c.MediaURL = media.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// LoadSurfaces reads all surfaces.
func (p *Postgres) LoadSurfaces() ([]models.Surface, error) {
	rows, err := p.DB.Query(`SELECT id, label, positions FROM surfaces`)
	if err != nil {
		return nil, fmt.Errorf("query surfaces: %w", err)
	}
	defer rows.Close()

	var out []models.Surface
	for rows.Next() {
		var s models.Surface
		if err := rows.Scan(&s.ID, &s.Label, pq.Array(&s.Positions)); err != nil {
			return nil, fmt.Errorf("scan surface: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LoadPlacements reads all placements, including their weighted term
// vectors.
func (p *Postgres) LoadPlacements() ([]models.Placement, error) {
	rows, err := p.DB.Query(`SELECT id, creative_id, campaign_id, surface, position, status, pacing_mode,
		weight, priority, start_at, end_at, max_impressions_per_hour, impression_goal,
		opportunity_type, keyword_weights, taxonomy_weights, created_at FROM placements`)
	if err != nil {
		return nil, fmt.Errorf("query placements: %w", err)
	}
	defer rows.Close()

	var out []models.Placement
	for rows.Next() {
		var pl models.Placement
		var start, end sql.NullTime
		var hourCap sql.NullInt64
		var oppType sql.NullString
		var kwJSON, taxJSON []byte
		if err := rows.Scan(&pl.ID, &pl.CreativeID, &pl.CampaignID, &pl.Surface, &pl.Position, &pl.Status,
			&pl.PacingMode, &pl.Weight, &pl.Priority, &start, &end, &hourCap, &pl.ImpressionGoal,
			&oppType, &kwJSON, &taxJSON, &pl.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan placement: %w", err)
		}
		if start.Valid {
			pl.StartAt = start.Time
		}
		if end.Valid {
			pl.EndAt = end.Time
		}
		if hourCap.Valid {
			cap := int(hourCap.Int64)
			pl.MaxImpressionsPerHour = &cap
		}
		pl.OpportunityType = oppType.String
		if len(kwJSON) > 0 {
			if err := json.Unmarshal(kwJSON, &pl.KeywordWeights); err != nil {
				return nil, fmt.Errorf("placement %s keyword weights: %w", pl.ID, err)
			}
		}
		if len(taxJSON) > 0 {
			if err := json.Unmarshal(taxJSON, &pl.TaxonomyWeights); err != nil {
				return nil, fmt.Errorf("placement %s taxonomy weights: %w", pl.ID, err)
			}
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}

// LoadCoupons reads all coupons with their linked placements in
// join-priority order.
func (p *Postgres) LoadCoupons() ([]models.Coupon, error) {
	rows, err := p.DB.Query(`SELECT id, code, discount_type, discount_value, status, start_at, end_at, max_redemptions, per_user_limit FROM coupons`)
	if err != nil {
		return nil, fmt.Errorf("query coupons: %w", err)
	}
	defer rows.Close()

	byID := make(map[int]*models.Coupon)
	var order []int
	for rows.Next() {
		var c models.Coupon
		var value string
		var start, end sql.NullTime
		if err := rows.Scan(&c.ID, &c.Code, &c.Discount.Type, &value, &c.Status, &start, &end, &c.MaxRedemptions, &c.PerUserLimit); err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		if c.Discount.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("coupon %d discount: %w", c.ID, err)
		}
		if start.Valid {
			c.StartAt = start.Time
		}
		if end.Valid {
			c.EndAt = end.Time
		}
		byID[c.ID] = &c
		order = append(order, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	linkRows, err := p.DB.Query(`SELECT coupon_id, placement_id FROM coupon_placements ORDER BY coupon_id, priority DESC`)
	if err != nil {
		return nil, fmt.Errorf("query coupon placements: %w", err)
	}
	defer linkRows.Close()
	for linkRows.Next() {
		var couponID int
		var placementID string
		if err := linkRows.Scan(&couponID, &placementID); err != nil {
			return nil, fmt.Errorf("scan coupon placement: %w", err)
		}
		if c, ok := byID[couponID]; ok {
			c.PlacementIDs = append(c.PlacementIDs, placementID)
		}
	}
	if err := linkRows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.Coupon, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

// Close shuts down the connection pool.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}
