// Package fiber mounts the storefront webhook endpoints on a Fiber router.
// The provider is a net/http handler; requests reach it through Fiber's adaptor.
package fiber

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	mwhttp "github.com/mihaimyh/goregistry/middleware/http"
)

// Config holds adapter configuration
type Config = mwhttp.Config

// Register adds both webhook routes to r.
func Register(r fiber.Router, cfg Config) {
	if cfg.Provider == nil {
		panic("goregistry/fiber: Config.Provider is required")
	}
	orderPath, subscriptionPath := mwhttp.Routes(cfg)
	r.All(orderPath, adaptor.HTTPHandler(cfg.Provider.OrderHandler()))
	r.All(subscriptionPath, adaptor.HTTPHandler(cfg.Provider.SubscriptionHandler()))
}
