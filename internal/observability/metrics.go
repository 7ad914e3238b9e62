package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adengine_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adengine_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// selection outcomes: served, no_fill, error
	SelectionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adengine_selections_total",
			Help: "Total placement selection requests by outcome",
		},
		[]string{"outcome"},
	)

	// pacing reservation denials by reason
	ReservationDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adengine_reservation_denied_total",
			Help: "Total denied slot reservations by reason",
		},
		[]string{"reason"},
	)

	// confirmed delivery events by kind
	DeliveryCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adengine_deliveries_total",
			Help: "Total confirmed delivery events",
		},
		[]string{"kind"},
	)

	// coupon redemption attempts by outcome
	RedemptionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adengine_redemptions_total",
			Help: "Total coupon redemption attempts by outcome",
		},
		[]string{"outcome"},
	)

	// forecast generation latency
	ForecastLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "adengine_forecast_duration_seconds",
			Help:    "Duration of forecast generation",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		SelectionCount,
		ReservationDenied,
		DeliveryCount,
		RedemptionCount,
		ForecastLatency,
	)
}
