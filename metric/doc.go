// Package metric provides Prometheus-based metrics collection and an HTTP
// server for exposing them, for monitoring the router, services and
// components that make up a MAF process.
//
// The package separates core platform metrics (service availability,
// request/timeout/abort counters, component queue depth, NATS health),
// automatically registered by NewMetricsRegistry, from service-specific
// metrics a caller registers through the MetricsRegistrar interface.
//
// # Basic usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry, security.Config{})
//	go func() {
//		if err := server.Start(); err != nil && err != http.ErrServerClosed {
//			log.Printf("metrics server error: %v", err)
//		}
//	}()
//
//	core := registry.CoreMetrics()
//	core.RecordRequest("42", "success")
//	core.SetQueueDepth("100", 3)
//
// All core metrics use the namespace "maf" with subsystems "service",
// "component" and "nats" — e.g. maf_service_requests_total,
// maf_component_queue_depth, maf_nats_connected.
//
// # Service-specific metrics
//
// Callers can register their own collectors under a service name without
// reaching into the underlying *prometheus.Registry directly:
//
//	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "widgets_total"})
//	err := registry.RegisterCounter("widget-provider", "widgets_total", counter)
//
// Registration is idempotent-safe: registering the same serviceName/metricName
// pair twice returns an error rather than panicking, and duplicate
// registrations against the underlying Prometheus registry are surfaced the
// same way.
package metric
