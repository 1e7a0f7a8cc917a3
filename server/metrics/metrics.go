package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics encapsulates Prometheus metrics for the server.
type Metrics struct {
	registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  *prometheus.GaugeVec
	ErrorsTotal     *prometheus.CounterVec
	RateLimitHits   *prometheus.CounterVec

	// CompletionsTotal counts completion attempts by result:
	// answer, fallback, repeat, missing_key.
	CompletionsTotal *prometheus.CounterVec

	// CompletionDuration measures upstream completion latency by mode.
	CompletionDuration *prometheus.HistogramVec

	// PromptTokens observes the token size of composed prompts.
	PromptTokens prometheus.Histogram

	// CallbackDeliveries counts outbound callback POSTs by status:
	// delivered, failed, dropped.
	CallbackDeliveries *prometheus.CounterVec

	// CallbackQueueDepth tracks the number of queued callback jobs.
	CallbackQueueDepth prometheus.Gauge

	// BreakerState reports the completion circuit breaker state
	// (0=closed, 1=half-open, 2=open).
	BreakerState prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with a custom registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dearbot_http_requests_total",
				Help: "Total number of HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dearbot_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		ActiveRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dearbot_http_active_requests",
				Help: "Number of currently active HTTP requests",
			},
			[]string{"endpoint"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dearbot_errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"type"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dearbot_rate_limit_hits_total",
				Help: "Total number of rate limit hits by client",
			},
			[]string{"client"},
		),
		CompletionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dearbot_completions_total",
				Help: "Total number of completion dispatches by mode and result",
			},
			[]string{"mode", "result"},
		),
		CompletionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dearbot_completion_duration_seconds",
				Help:    "Duration of upstream completion calls in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
			},
			[]string{"mode"},
		),
		PromptTokens: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dearbot_prompt_tokens",
				Help:    "Token count of composed prompts",
				Buckets: []float64{64, 128, 256, 512, 1024, 2048},
			},
		),
		CallbackDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dearbot_callback_deliveries_total",
				Help: "Total number of outbound callback deliveries by status",
			},
			[]string{"status"},
		),
		CallbackQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dearbot_callback_queue_depth",
				Help: "Number of callback jobs waiting for delivery",
			},
		),
		BreakerState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dearbot_completion_breaker_state",
				Help: "Completion circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
		),
	}

	// Register default Go metrics
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize some default metrics
	m.RequestsTotal.WithLabelValues("/health", "200").Add(0)
	m.RequestsTotal.WithLabelValues("/metrics", "200").Add(0)
	m.RequestDuration.WithLabelValues("/health").Observe(0)

	return m
}

// Handler returns a handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: false, // Disable OpenMetrics format to avoid escaping=values
	})
}
