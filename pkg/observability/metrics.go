package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig mirrors the teacher's MetricsConfig shape; the metrics
// backend itself is an external collaborator (spec section 1), so this only
// controls whether collectors are registered and served.
type MetricsConfig struct {
	ServiceName string
	Namespace   string
	Enabled     bool
}

// MetricsProvider registers and updates the router's Prometheus collectors.
// Unlike the teacher, this does not stand up an OpenTelemetry metrics SDK
// pipeline; collectors are registered directly against a private
// prometheus.Registry and served via promhttp.HandlerFor, matching
// original_source/aggregator/src/metrics.rs's REQ_LATENCY/REQ_ERRORS pair,
// extended with route- and sponsorship-level gauges the original tracks
// only in struct fields.
type MetricsProvider struct {
	registry *prometheus.Registry

	RequestLatency   *prometheus.HistogramVec
	RequestErrors    *prometheus.CounterVec
	RouteTotalCost   *prometheus.HistogramVec
	ExecutionLatency *prometheus.HistogramVec
	AdmissionRejects *prometheus.CounterVec
	BreakerOpen      *prometheus.GaugeVec
	SponsorshipSpent *prometheus.GaugeVec
}

// NewMetricsProvider creates and registers the router's metric collectors.
// When cfg.Enabled is false it returns a provider whose methods are safe
// no-ops, matching the teacher's disabled-metrics shortcut.
func NewMetricsProvider(cfg MetricsConfig) (*MetricsProvider, error) {
	if !cfg.Enabled {
		return &MetricsProvider{}, nil
	}

	registry := prometheus.NewRegistry()
	mp := &MetricsProvider{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "request_latency_seconds",
			Help:      "Latency of router operations by service and method.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"service", "method"}),
		RequestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "request_errors_total",
			Help:      "Count of router operation errors by service and method.",
		}, []string{"service", "method"}),
		RouteTotalCost: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "route_total_cost_quote_units",
			Help:      "Scored total_cost of routes selected, in quote-currency units.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"route_kind"}),
		ExecutionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "execution_effects_latency_seconds",
			Help:      "Observed effects latency of executed transactions, by resource path.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"path"}),
		AdmissionRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "admission_rejects_total",
			Help:      "Count of requests rejected by admission control, by reason.",
		}, []string{"reason"}),
		BreakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "circuit_breaker_open",
			Help:      "1 if the circuit breaker for a class is open, else 0.",
		}, []string{"class"}),
		SponsorshipSpent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "sponsorship_budget_spent_gas_units",
			Help:      "Gas units spent against the sponsorship budget, by scope.",
		}, []string{"scope"}),
	}

	for _, c := range []prometheus.Collector{
		mp.RequestLatency, mp.RequestErrors, mp.RouteTotalCost,
		mp.ExecutionLatency, mp.AdmissionRejects, mp.BreakerOpen, mp.SponsorshipSpent,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics collector: %w", err)
		}
	}

	return mp, nil
}

// Handler returns the promhttp handler for this provider's registry, or a
// 404 handler when metrics are disabled.
func (mp *MetricsProvider) Handler() http.Handler {
	if mp.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(mp.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveRequest records a request's latency and, if err is non-nil,
// increments the error counter for the same service/method pair.
func (mp *MetricsProvider) ObserveRequest(service, method string, seconds float64, err error) {
	if mp.RequestLatency == nil {
		return
	}
	mp.RequestLatency.WithLabelValues(service, method).Observe(seconds)
	if err != nil {
		mp.RequestErrors.WithLabelValues(service, method).Inc()
	}
}
