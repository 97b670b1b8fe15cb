package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mihaimyh/goregistry/pkg/registry"
)

// Reader is the read side of the registry. *registry.Manager implements it.
type Reader interface {
	Get(ctx context.Context, key string) (*registry.Record, error)
	FindByTransactionPrefix(ctx context.Context, prefix string) ([]*registry.Record, error)
}

// Config holds configuration for the registration lookup handler
type Config struct {
	// Registry is the registry to read from (required)
	Registry Reader

	// Authorize reports whether the request may read registrations (required)
	Authorize func(*http.Request) bool

	// GetOrder extracts the storefront order id and host from the request.
	// If nil, reads the "order" and "host" query parameters.
	GetOrder func(*http.Request) (int64, string, error)

	// GetKey extracts the registry key from the request.
	// If nil, reads the "key" query parameter.
	GetKey func(*http.Request) string

	// OnError handles errors (auth, lookup, etc.)
	// If nil, uses default error handling
	OnError func(http.ResponseWriter, *http.Request, error)

	// Now returns the current time (default: time.Now)
	Now func() time.Time
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Registry == nil {
		return fmt.Errorf("registry is required")
	}
	if c.Authorize == nil {
		return fmt.Errorf("authorize is required")
	}
	return nil
}

// NewHandler creates a new registration lookup handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.GetOrder == nil {
		config.GetOrder = OrderFromQuery("order", "host")
	}
	if config.GetKey == nil {
		config.GetKey = func(r *http.Request) string { return r.URL.Query().Get("key") }
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Handler{config: config}, nil
}

// BearerToken returns an Authorize function accepting "Authorization: Bearer <token>".
func BearerToken(token string) func(*http.Request) bool {
	want := []byte(token)
	return func(r *http.Request) bool {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || len(want) == 0 {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) == 1
	}
}

// OrderFromQuery returns a GetOrder function reading two query parameters.
func OrderFromQuery(orderParam, hostParam string) func(*http.Request) (int64, string, error) {
	return func(r *http.Request) (int64, string, error) {
		q := r.URL.Query()
		return parseOrder(q.Get(orderParam), q.Get(hostParam))
	}
}

func parseOrder(order, host string) (int64, string, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(order), 10, 64)
	if err != nil || id <= 0 {
		return 0, "", fmt.Errorf("invalid order id %q", order)
	}
	if strings.TrimSpace(host) == "" {
		return 0, "", fmt.Errorf("host is required")
	}
	return id, host, nil
}
