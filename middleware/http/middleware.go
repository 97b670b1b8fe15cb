// Package http mounts the storefront webhook endpoints on a net/http ServeMux.
package http

import (
	"net/http"
	"strings"

	"github.com/mihaimyh/goregistry/pkg/webhook/woocommerce"
)

// DefaultNamespace is the route prefix the storefront plugin posts to.
const DefaultNamespace = "/wp-json/softwareregistry/v1"

// Endpoints serves the order and subscription webhooks.
// *woocommerce.Provider implements it.
type Endpoints interface {
	OrderHandler() http.Handler
	SubscriptionHandler() http.Handler
}

// Config holds adapter configuration
type Config struct {
	// Provider serves the webhook endpoints (required)
	Provider Endpoints

	// Namespace is prepended to both endpoint paths
	// Default: DefaultNamespace. Use "/" to mount at the root.
	Namespace string
}

// Routes returns the full order and subscription paths for cfg.
func Routes(cfg Config) (orderPath, subscriptionPath string) {
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	ns = strings.TrimSuffix(ns, "/")
	return ns + woocommerce.OrderPath, ns + woocommerce.SubscriptionPath
}

// Mount registers both endpoints on mux. Method checks stay with the provider,
// so every method is routed.
func Mount(mux *http.ServeMux, cfg Config) {
	if cfg.Provider == nil {
		panic("goregistry/http: Config.Provider is required")
	}
	orderPath, subscriptionPath := Routes(cfg)
	mux.Handle(orderPath, cfg.Provider.OrderHandler())
	mux.Handle(subscriptionPath, cfg.Provider.SubscriptionHandler())
}

// Handler returns a ServeMux serving only the webhook endpoints.
func Handler(cfg Config) http.Handler {
	mux := http.NewServeMux()
	Mount(mux, cfg)
	return mux
}
