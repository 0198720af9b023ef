package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics (not component- or
// service-specific).
type Metrics struct {
	// Router / service metrics
	ServiceAvailability *prometheus.GaugeVec
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	TimeoutsTotal       *prometheus.CounterVec
	AbortsTotal         *prometheus.CounterVec
	SubscribersGauge    *prometheus.GaugeVec

	// Component metrics
	QueueDepth     *prometheus.GaugeVec
	TimersActive   *prometheus.GaugeVec
	DispatchErrors *prometheus.CounterVec

	// NATS metrics
	NATSConnected      prometheus.Gauge
	NATSRTT            prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all platform metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceAvailability: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "maf",
				Subsystem: "service",
				Name:      "availability",
				Help:      "Service availability as observed by a requester (0=unknown, 1=available, 2=unavailable)",
			},
			[]string{"service_id"},
		),

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "maf",
				Subsystem: "service",
				Name:      "requests_total",
				Help:      "Total requests sent, labeled by outcome status",
			},
			[]string{"service_id", "status"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "maf",
				Subsystem: "service",
				Name:      "request_duration_seconds",
				Help:      "Time from SendRequest to callback invocation",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service_id", "operation_id"},
		),

		TimeoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "maf",
				Subsystem: "service",
				Name:      "timeouts_total",
				Help:      "Total requests that timed out waiting for a response",
			},
			[]string{"service_id"},
		),

		AbortsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "maf",
				Subsystem: "service",
				Name:      "aborts_total",
				Help:      "Total requests explicitly aborted by a requester",
			},
			[]string{"service_id"},
		),

		SubscribersGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "maf",
				Subsystem: "service",
				Name:      "subscribers",
				Help:      "Current number of addresses subscribed to a status/signal operation",
			},
			[]string{"service_id", "operation_id"},
		),

		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "maf",
				Subsystem: "component",
				Name:      "queue_depth",
				Help:      "Current number of items queued for a component's dispatch loop",
			},
			[]string{"component_id"},
		),

		TimersActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "maf",
				Subsystem: "component",
				Name:      "timers_active",
				Help:      "Current number of armed timers owned by a component",
			},
			[]string{"component_id"},
		),

		DispatchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "maf",
				Subsystem: "component",
				Name:      "dispatch_errors_total",
				Help:      "Total errors surfaced while dispatching a queued item",
			},
			[]string{"component_id"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "maf",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "maf",
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "maf",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "maf",
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open, 2=half-open)",
			},
		),
	}
}

// RecordAvailability updates the availability gauge for serviceID.
func (c *Metrics) RecordAvailability(serviceID string, availability float64) {
	c.ServiceAvailability.WithLabelValues(serviceID).Set(availability)
}

// RecordRequest increments the requests counter for serviceID/status.
func (c *Metrics) RecordRequest(serviceID, status string) {
	c.RequestsTotal.WithLabelValues(serviceID, status).Inc()
}

// RecordTimeout increments the timeouts counter for serviceID.
func (c *Metrics) RecordTimeout(serviceID string) {
	c.TimeoutsTotal.WithLabelValues(serviceID).Inc()
}

// RecordAbort increments the aborts counter for serviceID.
func (c *Metrics) RecordAbort(serviceID string) {
	c.AbortsTotal.WithLabelValues(serviceID).Inc()
}

// SetQueueDepth records the current dispatch queue depth for componentID.
func (c *Metrics) SetQueueDepth(componentID string, depth float64) {
	c.QueueDepth.WithLabelValues(componentID).Set(depth)
}

// RecordDispatchError increments the dispatch error counter for componentID.
func (c *Metrics) RecordDispatchError(componentID string) {
	c.DispatchErrors.WithLabelValues(componentID).Inc()
}

// RecordNATSStatus updates the NATS connection gauge.
func (c *Metrics) RecordNATSStatus(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

// RecordNATSRTT records the last observed NATS round-trip time.
func (c *Metrics) RecordNATSRTT(d time.Duration) {
	c.NATSRTT.Set(float64(d.Milliseconds()))
}

// RecordNATSReconnect increments the reconnect counter.
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState records the circuit breaker gauge (0=closed,
// 1=open, 2=half-open).
func (c *Metrics) RecordCircuitBreakerState(state float64) {
	c.NATSCircuitBreaker.Set(state)
}
