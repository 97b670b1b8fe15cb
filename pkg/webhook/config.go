package webhook

import (
	"time"

	"github.com/mihaimyh/goregistry/pkg/registry"
)

const (
	// DefaultMaxBodyBytes bounds webhook request bodies.
	DefaultMaxBodyBytes int64 = 1 << 20
	// DefaultRateLimitRequests is the per-IP request budget per window.
	DefaultRateLimitRequests = 120
	// DefaultRateLimitWindow is the rate limiting window.
	DefaultRateLimitWindow = time.Minute
)

// Config defines the settings every provider accepts
type Config struct {
	// WebhookSecret is the shared secret used to verify request signatures.
	WebhookSecret string

	// MaxBodyBytes limits the request body size (default: 1MB)
	MaxBodyBytes int64

	// RateLimitRequests is the number of requests allowed per IP per window (default: 120).
	// A negative value disables rate limiting.
	RateLimitRequests int

	// RateLimitWindow is the rate limiting window (default: 1 minute)
	RateLimitWindow time.Duration

	// Metrics is an optional metrics collector for webhook processing.
	// Use webhook/metrics/prometheus.DefaultMetrics(namespace) for Prometheus metrics.
	Metrics Metrics

	// Logger is an optional structured logger (default: no-op)
	Logger registry.Logger

	// OnEvent is called after every authenticated delivery has been processed.
	OnEvent EventCallback
}

// WithDefaults returns a copy of c with unset fields filled in.
func (c Config) WithDefaults() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.RateLimitRequests == 0 {
		c.RateLimitRequests = DefaultRateLimitRequests
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = DefaultRateLimitWindow
	}
	if c.Metrics == nil {
		c.Metrics = &NoopMetrics{}
	}
	if c.Logger == nil {
		c.Logger = &registry.NoopLogger{}
	}
	return c
}
