// Package webhook defines the provider-neutral pieces shared by storefront
// webhook receivers: configuration, error taxonomy, metrics and the response
// summary returned to the storefront.
package webhook

import "net/http"

// Provider is implemented by every storefront webhook receiver.
type Provider interface {
	// Name returns the provider name (e.g., "woocommerce")
	Name() string

	// WebhookHandler returns the HTTP handler serving the provider's endpoints.
	// The implementation handles authentication, parsing and registry updates internally.
	WebhookHandler() http.Handler
}
