package observability

import "time"

// MetricsRegistry abstracts metric recording so components take an injected
// registry instead of touching the global Prometheus vectors directly.
type MetricsRegistry interface {
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	IncrementSelections(outcome string)
	IncrementReservationDenied(reason string)
	IncrementDeliveries(kind string)
	IncrementRedemptions(outcome string)
	RecordForecastLatency(duration time.Duration)
}

// PrometheusRegistry implements MetricsRegistry on the global Prometheus
// metrics.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry.
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementSelections(outcome string) {
	SelectionCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) IncrementReservationDenied(reason string) {
	ReservationDenied.WithLabelValues(reason).Inc()
}

func (r *PrometheusRegistry) IncrementDeliveries(kind string) {
	DeliveryCount.WithLabelValues(kind).Inc()
}

func (r *PrometheusRegistry) IncrementRedemptions(outcome string) {
	RedemptionCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordForecastLatency(duration time.Duration) {
	ForecastLatency.Observe(duration.Seconds())
}

// NoOpRegistry implements MetricsRegistry with no-op methods for tests.
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry.
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementSelections(outcome string)                                   {}
func (r *NoOpRegistry) IncrementReservationDenied(reason string)                             {}
func (r *NoOpRegistry) IncrementDeliveries(kind string)                                      {}
func (r *NoOpRegistry) IncrementRedemptions(outcome string)                                  {}
func (r *NoOpRegistry) RecordForecastLatency(duration time.Duration)                         {}
