package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/goregistry/pkg/webhook"
)

// Metrics implements webhook.Metrics using Prometheus.
type Metrics struct {
	webhookEventsTotal        *prometheus.CounterVec
	webhookProcessingDuration *prometheus.HistogramVec
	webhookErrorsTotal        *prometheus.CounterVec
	registryActionsTotal      *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation for webhook providers.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		webhookEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Total number of webhook deliveries by topic and outcome.",
		}, []string{"provider", "topic", "status"}),

		webhookProcessingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "processing_duration_seconds",
			Help:      "Duration of webhook processing in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "topic"}),

		webhookErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "errors_total",
			Help:      "Total number of rejected or failed webhook deliveries.",
		}, []string{"provider", "error_type"}),

		registryActionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "registry_actions_total",
			Help:      "Total number of registry actions resolved from webhook deliveries.",
		}, []string{"provider", "action", "status"}),
	}
}

// DefaultMetrics registers metrics on the default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}

func (m *Metrics) RecordWebhookEvent(provider, topic, status string) {
	m.webhookEventsTotal.WithLabelValues(provider, topic, status).Inc()
}

func (m *Metrics) RecordWebhookProcessingDuration(provider, topic string, duration time.Duration) {
	m.webhookProcessingDuration.WithLabelValues(provider, topic).Observe(duration.Seconds())
}

func (m *Metrics) RecordWebhookError(provider, errorType string) {
	m.webhookErrorsTotal.WithLabelValues(provider, errorType).Inc()
}

func (m *Metrics) RecordRegistryAction(provider, action, status string) {
	m.registryActionsTotal.WithLabelValues(provider, action, status).Inc()
}

var _ webhook.Metrics = (*Metrics)(nil)
