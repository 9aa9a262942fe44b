// Package metrics holds the prometheus collectors exported on the metrics path.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flowgate"

// Flow exchange outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeSignature      = "signature_rejected"
	OutcomeDecryptFailure = "decrypt_failed"
	OutcomeInternal       = "internal_error"
	OutcomeTooLarge       = "too_large"
)

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	flowRequests        *prometheus.CounterVec
	flowLatency         prometheus.Histogram
	signatureRejections *prometheus.CounterVec
	webhookMessages     *prometheus.CounterVec
	tasks               *prometheus.CounterVec
	rateLimited         *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, plus process and Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		flowRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flow_requests_total",
				Help:      "Total number of flow data exchange requests by outcome",
			},
			[]string{"outcome"},
		),
		flowLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "flow_request_duration_seconds",
				Help:      "Flow data exchange latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		signatureRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signature_rejections_total",
				Help:      "Total number of requests with a missing or invalid signature",
			},
			[]string{"endpoint"},
		),
		webhookMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_messages_total",
				Help:      "Total number of inbound webhook messages by kind",
			},
			[]string{"kind"},
		),
		tasks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "background_tasks_total",
				Help:      "Total number of background tasks by name and result",
			},
			[]string{"task", "result"},
		),
		rateLimited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_rejected_total",
				Help:      "Total number of requests rejected by the per-IP rate limiter",
			},
			[]string{"endpoint"},
		),
	}
}

// RegisterQueueDepth exports the current background queue depth.
func (m *Metrics) RegisterQueueDepth(depth func() int) {
	promauto.With(m.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "background_queue_depth",
			Help:      "Current number of queued background tasks",
		},
		func() float64 { return float64(depth()) },
	)
}

// ObserveFlow records one flow exchange.
func (m *Metrics) ObserveFlow(outcome string, elapsed time.Duration) {
	m.flowRequests.WithLabelValues(outcome).Inc()
	m.flowLatency.Observe(elapsed.Seconds())
}

// SignatureRejected counts a failed signature check.
func (m *Metrics) SignatureRejected(endpoint string) {
	m.signatureRejections.WithLabelValues(endpoint).Inc()
}

// WebhookMessage counts an inbound message by kind.
func (m *Metrics) WebhookMessage(kind string) {
	m.webhookMessages.WithLabelValues(kind).Inc()
}

// TaskFinished counts a finished background task.
func (m *Metrics) TaskFinished(task, result string) {
	m.tasks.WithLabelValues(task, result).Inc()
}

// RateLimited counts a request rejected by the rate limiter.
func (m *Metrics) RateLimited(endpoint string) {
	m.rateLimited.WithLabelValues(endpoint).Inc()
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
