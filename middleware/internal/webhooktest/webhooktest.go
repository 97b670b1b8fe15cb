// Package webhooktest builds a memory-backed WooCommerce provider and signed
// deliveries for the router adapter tests.
package webhooktest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mihaimyh/goregistry/pkg/registry"
	"github.com/mihaimyh/goregistry/pkg/webhook"
	"github.com/mihaimyh/goregistry/pkg/webhook/woocommerce"
	"github.com/mihaimyh/goregistry/storage/memory"
)

const (
	// Secret signs every delivery built by this package.
	Secret = "wc-secret"
	// Source is the storefront URL sent with every delivery.
	Source = "https://shop.example.com/"
	// Namespace is the route prefix the adapter tests mount under.
	Namespace = "/wp-json/softwareregistry/v1"
)

// NewProvider returns a provider writing to an in-memory registry.
func NewProvider(t *testing.T) (*woocommerce.Provider, *registry.Manager) {
	t.Helper()
	manager, err := registry.NewManager(memory.New(), registry.Config{
		Now: func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	provider, err := woocommerce.NewProvider(woocommerce.Config{
		Config:      webhook.Config{WebhookSecret: Secret, RateLimitRequests: -1},
		Registry:    manager,
		ItemMapping: "PRO-.*=pro",
		Now:         func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	return provider, manager
}

// OrderBody is a completed order with one PRO-1 line item.
func OrderBody(id int64) string {
	return fmt.Sprintf(`{
		"id": %d, "status": "completed", "transaction_id": "pay_%d",
		"date_completed_gmt": "2024-03-01T10:00:00", "date_paid_gmt": "2024-03-01T10:00:00",
		"billing": {"first_name": "Ada", "last_name": "Lovelace", "email": "ada@example.com"},
		"line_items": [{"id": 1, "name": "Pro", "sku": "PRO-1", "subtotal": "10.00"}]
	}`, id, id)
}

// SignedRequest builds a signed delivery for topic.
func SignedRequest(path string, topic woocommerce.Topic, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(woocommerce.HeaderSignature, woocommerce.Sign([]byte(Secret), []byte(body)))
	req.Header.Set(woocommerce.HeaderTopic, string(topic))
	req.Header.Set(woocommerce.HeaderSource, Source)
	return req
}

// PingRequest builds the unsigned delivery a storefront sends when a webhook is saved.
func PingRequest(path string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("webhook_id=12"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}
