// Package analytics streams delivery events to ClickHouse. The event table
// is the long-horizon history behind forecasting and reporting; the Redis
// counters remain authoritative for pacing and redemption ceilings.
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when the analytics store is not reachable.
// Hot-path callers treat it as fail-open: the delivery proceeds, the event
// is dropped.
var ErrUnavailable = errors.New("analytics unavailable")

// Event types recorded on the stream.
const (
	EventSelection  = "selection"
	EventImpression = "impression"
	EventClick      = "click"
	EventLead       = "lead"
	EventRedemption = "redemption"
)

// EventRecord mirrors a row in the delivery_events table.
type EventRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	EventType   string    `json:"event_type"`
	DecisionID  string    `json:"decision_id"`
	PlacementID string    `json:"placement_id"`
	CampaignID  int32     `json:"campaign_id"`
	Surface     string    `json:"surface"`
	Position    string    `json:"position"`
	UserID      string    `json:"user_id"`
	DeviceType  string    `json:"device_type"`
	Country     string    `json:"country"`
	Revenue     float64   `json:"revenue"`
}

// Service is the interface delivery-time callers record events through.
type Service interface {
	RecordEvent(ctx context.Context, ev EventRecord) error
}

// Analytics wraps a ClickHouse connection.
type Analytics struct {
	DB     *sql.DB
	Logger *zap.Logger
}

const createTableSQL = `CREATE TABLE IF NOT EXISTS delivery_events (
	timestamp    DateTime,
	event_type   String,
	decision_id  String,
	placement_id String,
	campaign_id  Int32,
	surface      String,
	position     String,
	user_id      String,
	device_type  String,
	country      String,
	revenue      Float64
) ENGINE = MergeTree()
ORDER BY (placement_id, event_type, timestamp)
TTL timestamp + INTERVAL 90 DAY`

// InitClickHouse connects to ClickHouse and ensures the events table exists.
func InitClickHouse(dsn string, maxOpenConns int, logger *zap.Logger) (*Analytics, error) {
	ch, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	ch.SetMaxOpenConns(maxOpenConns)
	if err := ch.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := ch.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}
	logger.Info("Connected to ClickHouse")
	return &Analytics{DB: ch, Logger: logger}, nil
}

// RecordEvent inserts one event row. The DSN enables async inserts, so the
// call is cheap enough for the hot path.
func (a *Analytics) RecordEvent(ctx context.Context, ev EventRecord) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	_, err := a.DB.ExecContext(ctx,
		`INSERT INTO delivery_events
		 (timestamp, event_type, decision_id, placement_id, campaign_id, surface, position, user_id, device_type, country, revenue)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Timestamp, ev.EventType, ev.DecisionID, ev.PlacementID, ev.CampaignID,
		ev.Surface, ev.Position, ev.UserID, ev.DeviceType, ev.Country, ev.Revenue,
	)
	if err != nil {
		a.Logger.Error("clickhouse insert event",
			zap.Error(err),
			zap.String("event_type", ev.EventType),
			zap.String("placement_id", ev.PlacementID),
		)
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Close shuts down the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error("clickhouse close", zap.Error(err))
		}
	}
}
