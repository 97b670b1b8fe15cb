package webhook

import "time"

// Metrics defines the interface for tracking webhook processing.
// All methods are optional - providers fall back to NoopMetrics.
type Metrics interface {
	// RecordWebhookEvent records a webhook delivery.
	// topic: The storefront topic (e.g., "order.created", "ping")
	// status: "success", "ignored" or "error"
	RecordWebhookEvent(provider, topic, status string)

	// RecordWebhookProcessingDuration records how long it took to process a webhook.
	RecordWebhookProcessingDuration(provider, topic string, duration time.Duration)

	// RecordWebhookError records a rejected or failed delivery.
	// errorType: e.g., "auth_failed", "topic_disabled", "invalid_payload", "registry_error"
	RecordWebhookError(provider, errorType string)

	// RecordRegistryAction records one registry action resolved from a delivery.
	RecordRegistryAction(provider, action, status string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_, _ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookError(_, _ string)                               {}
func (n *NoopMetrics) RecordRegistryAction(_, _, _ string)                          {}
