package forecasting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/marketgrid/adengine/internal/db"
	"github.com/marketgrid/adengine/internal/models"
)

// HistorySource provides the trailing per-placement delivery rates a
// forecast is derived from.
type HistorySource interface {
	PlacementRates(ctx context.Context, placementID string, window time.Duration, now time.Time) (models.PlacementRates, error)
}

// ClickHouseHistory derives rates from the delivery event stream.
type ClickHouseHistory struct {
	DB *sql.DB
}

// PlacementRates aggregates the trailing window of events for one placement.
func (h *ClickHouseHistory) PlacementRates(ctx context.Context, placementID string, window time.Duration, now time.Time) (models.PlacementRates, error) {
	rates := models.PlacementRates{PlacementID: placementID}
	from := now.Add(-window)

	query := `
	SELECT
		countIf(event_type = 'impression') AS impressions,
		countIf(event_type = 'click') AS clicks,
		countIf(event_type = 'lead') AS leads,
		sumIf(revenue, event_type = 'click') AS revenue,
		uniqExact(toDate(timestamp)) AS history_days
	FROM delivery_events
	WHERE placement_id = ?
	  AND timestamp >= ?
	  AND timestamp < ?`

	var impressions, clicks, leads int64
	var revenue float64
	var days uint64
	row := h.DB.QueryRowContext(ctx, query, placementID, from, now)
	if err := row.Scan(&impressions, &clicks, &leads, &revenue, &days); err != nil {
		return rates, fmt.Errorf("query placement history %s: %w", placementID, err)
	}

	rates.HistoryDays = int(days)
	hours := window.Hours()
	if hours > 0 {
		rates.HourlyRate = float64(impressions) / hours
	}
	if impressions > 0 {
		rates.CTR = float64(clicks) / float64(impressions)
		rates.LeadRate = float64(leads) / float64(impressions)
	}
	if clicks > 0 {
		rates.RevenuePerClick = revenue / float64(clicks)
	}
	return rates, nil
}

// CounterHistory derives rates from the Redis hourly counters. It is the
// fallback when the analytics store is unavailable; the counters only reach
// back as far as their TTL, so HistoryDays is approximated from the hours
// that held any traffic.
type CounterHistory struct {
	Store *db.RedisStore
}

func (h *CounterHistory) PlacementRates(_ context.Context, placementID string, window time.Duration, now time.Time) (models.PlacementRates, error) {
	rates := models.PlacementRates{PlacementID: placementID}
	from := now.Add(-window)

	impressions, err := h.Store.SumDeliveries(placementID, string(models.DeliveryImpression), from, now)
	if err != nil {
		return rates, fmt.Errorf("sum impressions %s: %w", placementID, err)
	}
	clicks, err := h.Store.SumDeliveries(placementID, string(models.DeliveryClick), from, now)
	if err != nil {
		return rates, fmt.Errorf("sum clicks %s: %w", placementID, err)
	}

	hours := window.Hours()
	if hours > 0 {
		rates.HourlyRate = float64(impressions) / hours
	}
	if impressions > 0 {
		rates.CTR = float64(clicks) / float64(impressions)
		rates.HistoryDays = int(window.Hours() / 24)
	}
	return rates, nil
}
