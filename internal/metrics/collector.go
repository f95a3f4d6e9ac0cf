// Package metrics exposes the gateway's Prometheus series. Names, labels
// and buckets are an external contract; do not rename them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the gateway registry and series.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal  *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	fallbacksTotal *prometheus.CounterVec
	costTotal      *prometheus.CounterVec
	latencySeconds *prometheus.HistogramVec
}

// NewCollector creates the collector on a fresh registry. Tests create
// their own collector so counter deltas are isolated.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto{registry}

	return &Collector{
		registry: registry,
		requestsTotal: factory.counterVec(prometheus.CounterOpts{
			Name: "llm_gateway_requests_total",
			Help: "Total number of chat requests by outcome",
		}, []string{"api_key_id", "provider", "status"}),
		errorsTotal: factory.counterVec(prometheus.CounterOpts{
			Name: "llm_gateway_errors_total",
			Help: "Total number of provider attempt errors",
		}, []string{"api_key_id", "provider", "error_type"}),
		fallbacksTotal: factory.counterVec(prometheus.CounterOpts{
			Name: "llm_gateway_fallbacks_total",
			Help: "Total number of fallbacks between providers",
		}, []string{"api_key_id", "from_provider", "to_provider"}),
		costTotal: factory.counterVec(prometheus.CounterOpts{
			Name: "llm_gateway_cost_total",
			Help: "Accumulated cost in USD",
		}, []string{"api_key_id", "provider", "model"}),
		latencySeconds: factory.histogramVec(prometheus.HistogramOpts{
			Name:    "llm_gateway_latency_seconds",
			Help:    "Request latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"api_key_id", "provider"}),
	}
}

// promauto is a tiny registration helper bound to one registry.
type promauto struct{ r *prometheus.Registry }

func (f promauto) counterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	v := prometheus.NewCounterVec(opts, labels)
	f.r.MustRegister(v)
	return v
}

func (f promauto) histogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	v := prometheus.NewHistogramVec(opts, labels)
	f.r.MustRegister(v)
	return v
}

// Handler serves the text exposition for GET /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordRequest increments the request counter; status is "success" or
// "failure".
func (c *Collector) RecordRequest(apiKeyID, provider, status string) {
	c.requestsTotal.WithLabelValues(apiKeyID, provider, status).Inc()
}

// RecordError increments the error counter for one failed attempt.
func (c *Collector) RecordError(apiKeyID, provider, errorType string) {
	c.errorsTotal.WithLabelValues(apiKeyID, provider, errorType).Inc()
}

// RecordFallback increments the fallback counter.
func (c *Collector) RecordFallback(apiKeyID, fromProvider, toProvider string) {
	c.fallbacksTotal.WithLabelValues(apiKeyID, fromProvider, toProvider).Inc()
}

// RecordCost accumulates USD cost.
func (c *Collector) RecordCost(apiKeyID, provider, model string, costUSD float64) {
	c.costTotal.WithLabelValues(apiKeyID, provider, model).Add(costUSD)
}

// RecordLatency observes handler-level latency for one request.
func (c *Collector) RecordLatency(apiKeyID, provider string, seconds float64) {
	c.latencySeconds.WithLabelValues(apiKeyID, provider).Observe(seconds)
}

// Gather exposes the registry for tests.
func (c *Collector) Gather() prometheus.Gatherer { return c.registry }
