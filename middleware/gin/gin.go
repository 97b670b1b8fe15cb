// Package gin mounts the storefront webhook endpoints on a Gin router
package gin

import (
	gongin "github.com/gin-gonic/gin"

	mwhttp "github.com/mihaimyh/goregistry/middleware/http"
)

// Config holds adapter configuration
type Config = mwhttp.Config

// Register adds both webhook routes to r. Every method is routed to the
// provider, which answers non-POST requests itself.
func Register(r gongin.IRoutes, cfg Config) {
	if cfg.Provider == nil {
		panic("goregistry/gin: Config.Provider is required")
	}
	orderPath, subscriptionPath := mwhttp.Routes(cfg)
	r.Any(orderPath, gongin.WrapH(cfg.Provider.OrderHandler()))
	r.Any(subscriptionPath, gongin.WrapH(cfg.Provider.SubscriptionHandler()))
}
