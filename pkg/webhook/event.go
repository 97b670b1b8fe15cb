package webhook

import (
	"context"
	"time"
)

// Event describes one processed webhook delivery.
// It is passed to the EventCallback after the registry has been updated.
type Event struct {
	// Provider is the provider name ("woocommerce")
	Provider string

	// Topic is the storefront topic (e.g. "order.created")
	Topic string

	// Source is the host the delivery came from
	Source string

	// Response is the summary returned to the storefront
	Response *Response

	// ReceivedAt is when the delivery arrived
	ReceivedAt time.Time

	// Duration is the processing time
	Duration time.Duration
}

// EventCallback receives processed webhook events. It must not block.
type EventCallback func(ctx context.Context, event Event)
