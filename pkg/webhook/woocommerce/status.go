package woocommerce

import "github.com/mihaimyh/goregistry/pkg/registry"

var orderStatus = map[string]registry.Status{
	"completed":  registry.StatusActive,
	"overdue":    registry.StatusActive,
	"pending":    registry.StatusPending,
	"processing": registry.StatusPending,
	"on-hold":    registry.StatusPending,
	"cancelled":  registry.StatusTerminated,
	"refunded":   registry.StatusInactive,
	"failed":     registry.StatusInactive,
	"trash":      registry.StatusTerminated,
}

var subscriptionStatus = map[string]registry.Status{
	"pending":        registry.StatusPending,
	"on-hold":        registry.StatusPending,
	"pause":          registry.StatusPending,
	"active":         registry.StatusActive,
	"trial":          registry.StatusTrial,
	"expired":        registry.StatusExpired,
	"pending-cancel": registry.StatusPendingCancel,
	"suspended":      registry.StatusInactive,
	"cancelled":      registry.StatusInactive,
	"trash":          registry.StatusInactive,
}

// OrderStatus translates an order status. Unknown statuses are pending.
func OrderStatus(status string) registry.Status {
	if s, ok := orderStatus[status]; ok {
		return s
	}
	return registry.StatusPending
}

// SubscriptionStatus translates a subscription status. Unknown statuses are pending.
func SubscriptionStatus(status string) registry.Status {
	if s, ok := subscriptionStatus[status]; ok {
		return s
	}
	return registry.StatusPending
}
