package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	HTTPRequests    *prometheus.CounterVec
	HTTPLatency     *prometheus.HistogramVec
	ModelRequests   *prometheus.CounterVec
	ModelLatency    *prometheus.HistogramVec
	QuotaRejections prometheus.Counter
	GatewayRequests *prometheus.CounterVec
	WebhookEvents   *prometheus.CounterVec
	Errors          *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// New builds an unregistered set of collectors
func New(namespace string) *Metrics {
	return &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution for HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ModelRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_requests_total",
			Help:      "Total language model requests by outcome.",
		}, []string{"status"}),
		ModelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_request_duration_seconds",
			Help:      "Latency distribution for language model calls.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"status"}),
		QuotaRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_rejections_total",
			Help:      "Total ask requests rejected by the monthly quota.",
		}),
		GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_gateway_requests_total",
			Help:      "Total payment gateway requests by operation and status.",
		}, []string{"operation", "status"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Total payment webhook events by outcome.",
		}, []string{"outcome"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total errors grouped by component.",
		}, []string{"component"}),
	}
}

// MustRegister registers every collector with reg
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.HTTPRequests,
		m.HTTPLatency,
		m.ModelRequests,
		m.ModelLatency,
		m.QuotaRejections,
		m.GatewayRequests,
		m.WebhookEvents,
		m.Errors,
	)
}

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = New(namespace)
		metricsInstance.MustRegister(prometheus.DefaultRegisterer)
	})
	return metricsInstance
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveModel records one language model call
func (m *Metrics) ObserveModel(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := outcome(err)
	m.ModelRequests.WithLabelValues(status).Inc()
	m.ModelLatency.WithLabelValues(status).Observe(elapsed.Seconds())
}

// ObserveGateway records one payment gateway call
func (m *Metrics) ObserveGateway(operation string, err error) {
	if m == nil {
		return
	}
	m.GatewayRequests.WithLabelValues(operation, outcome(err)).Inc()
}

// QuotaRejected counts an ask blocked by the quota
func (m *Metrics) QuotaRejected() {
	if m == nil {
		return
	}
	m.QuotaRejections.Inc()
}

// Webhook counts a processed webhook by outcome
func (m *Metrics) Webhook(result string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(result).Inc()
}

// Error counts an error for a component
func (m *Metrics) Error(component string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(component).Inc()
}
