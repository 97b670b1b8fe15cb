// Package echo mounts the storefront webhook endpoints on an Echo router
package echo

import (
	"github.com/labstack/echo/v4"

	mwhttp "github.com/mihaimyh/goregistry/middleware/http"
)

// Config holds adapter configuration
type Config = mwhttp.Config

// Router is satisfied by *echo.Echo and *echo.Group.
type Router interface {
	Any(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) []*echo.Route
}

// Register adds both webhook routes to r.
func Register(r Router, cfg Config) {
	if cfg.Provider == nil {
		panic("goregistry/echo: Config.Provider is required")
	}
	orderPath, subscriptionPath := mwhttp.Routes(cfg)
	r.Any(orderPath, echo.WrapHandler(cfg.Provider.OrderHandler()))
	r.Any(subscriptionPath, echo.WrapHandler(cfg.Provider.SubscriptionHandler()))
}
