package woocommerce

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mihaimyh/goregistry/pkg/registry"
	"github.com/mihaimyh/goregistry/pkg/webhook"
	"github.com/mihaimyh/goregistry/pkg/webhook/internal"
)

const providerName = "woocommerce"

// Endpoint paths relative to the namespace the handler is mounted under.
const (
	OrderPath        = "/wc-order"
	SubscriptionPath = "/wc-subscription"
)

// Config configures the WooCommerce provider.
type Config struct {
	webhook.Config

	// Registry receives the resolved registry actions. Required.
	Registry Registry

	// Endpoints lists the enabled topic toggles (default: DefaultEndpoints).
	Endpoints []Endpoint

	// RegistrationType selects item or order registrations (default: item).
	RegistrationType RegistrationType

	// ItemMapping holds the SKU mapping rules, one "pattern=target,..." per line.
	ItemMapping string

	// OrdersWithSubscriptions decides what happens to orders carrying subscriptions (default: ignore).
	OrdersWithSubscriptions SubscriptionPolicy

	// GracePeriod is added to computed expirations, e.g. "3 days". "None" disables it.
	GracePeriod string

	// Location is the registry time zone (default: UTC).
	Location *time.Location

	// Now overrides the clock.
	Now func() time.Time
}

// Provider receives WooCommerce order and subscription webhooks.
type Provider struct {
	config      Config
	auth        *authenticator
	resolver    *resolver
	rateLimiter *internal.RateLimiter
	now         func() time.Time
}

var _ webhook.Provider = (*Provider)(nil)

// NewProvider creates a WooCommerce provider.
func NewProvider(config Config) (*Provider, error) {
	if config.Registry == nil {
		return nil, webhook.ErrProviderNotConfigured
	}
	config.Config = config.Config.WithDefaults()
	if config.Now == nil {
		config.Now = time.Now
	}

	endpoints, err := NewEndpointSet(config.Endpoints)
	if err != nil {
		return nil, err
	}
	mode, err := ParseRegistrationType(string(config.RegistrationType))
	if err != nil {
		return nil, err
	}
	policy, err := ParseSubscriptionPolicy(string(config.OrdersWithSubscriptions))
	if err != nil {
		return nil, err
	}
	grace, err := ParseGracePeriod(config.GracePeriod)
	if err != nil {
		return nil, err
	}

	var limiter *internal.RateLimiter
	if config.RateLimitRequests > 0 {
		limiter = internal.NewRateLimiter(config.RateLimitRequests, config.RateLimitWindow)
	}

	return &Provider{
		config: config,
		auth: &authenticator{
			secret:    []byte(strings.TrimSpace(config.WebhookSecret)),
			endpoints: endpoints,
		},
		resolver: &resolver{
			registry: config.Registry,
			mapper:   NewMapper(ParseRules(config.ItemMapping, config.Logger)),
			builder:  &builder{calc: NewCalculator(config.Location, grace, config.Now), mode: mode},
			policy:   policy,
			metrics:  config.Metrics,
			logger:   config.Logger,
		},
		rateLimiter: limiter,
		now:         config.Now,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler serves POST OrderPath and POST SubscriptionPath.
func (p *Provider) WebhookHandler() http.Handler {
	r := chi.NewRouter()
	if p.rateLimiter != nil {
		r.Use(p.rateLimiter.Middleware)
	}
	r.Post(OrderPath, p.handleOrder)
	r.Post(SubscriptionPath, p.handleSubscription)
	return r
}

// OrderHandler serves the order endpoint alone, for routers that register paths themselves.
func (p *Provider) OrderHandler() http.Handler {
	return p.limit(http.HandlerFunc(p.handleOrder))
}

// SubscriptionHandler serves the subscription endpoint alone.
func (p *Provider) SubscriptionHandler() http.Handler {
	return p.limit(http.HandlerFunc(p.handleSubscription))
}

func (p *Provider) limit(h http.Handler) http.Handler {
	if p.rateLimiter == nil {
		return h
	}
	return p.rateLimiter.Middleware(h)
}

func (p *Provider) handleOrder(w http.ResponseWriter, r *http.Request) {
	p.handle(w, r, func(ctx context.Context, d *Delivery, body []byte) (*webhook.Response, error) {
		if !d.Topic.IsOrder() {
			return webhook.NewIgnored(string(d.Topic), "", webhook.ErrTopicNotRouted), nil
		}
		order, err := parseOrder(body)
		if err != nil {
			return nil, err
		}
		return p.resolver.processOrder(ctx, d, order)
	})
}

func (p *Provider) handleSubscription(w http.ResponseWriter, r *http.Request) {
	p.handle(w, r, func(ctx context.Context, d *Delivery, body []byte) (*webhook.Response, error) {
		if d.Topic != TopicSubscription {
			return webhook.NewIgnored(string(d.Topic), "", webhook.ErrTopicNotRouted), nil
		}
		sub, err := parseSubscription(body)
		if err != nil {
			return nil, err
		}
		return p.resolver.processSubscription(ctx, d, sub)
	})
}

type processFunc func(ctx context.Context, d *Delivery, body []byte) (*webhook.Response, error)

func (p *Provider) handle(w http.ResponseWriter, r *http.Request, process processFunc) {
	startTime := p.now()
	internal.SetSecurityHeaders(w)
	metrics := p.config.Metrics
	logger := p.config.Logger

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if len(p.auth.secret) == 0 {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	// An empty body goes on to authentication so unsigned deliveries get 401.
	body, err := internal.ReadBodyStrict(w, r, p.config.MaxBodyBytes)
	if err != nil && !errors.Is(err, internal.ErrEmptyBody) {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	if isPing(r, body) {
		w.WriteHeader(http.StatusOK)
		metrics.RecordWebhookEvent(providerName, "ping", webhook.StatusSuccess)
		return
	}

	delivery, err := p.auth.authenticate(r, body)
	if err != nil {
		errorType := "auth_failed"
		if errors.Is(err, webhook.ErrTopicDisabled) {
			errorType = "topic_disabled"
		}
		logger.Warn("webhook rejected",
			registry.Field{Key: "provider", Value: providerName},
			registry.Field{Key: "path", Value: r.URL.Path},
			registry.Field{Key: "topic", Value: r.Header.Get(HeaderTopic)},
			registry.Field{Key: "source", Value: r.Header.Get(HeaderSource)},
			registry.Field{Key: "remote_ip", Value: internal.GetClientIP(r)},
			registry.Field{Key: "error", Value: err.Error()},
		)
		metrics.RecordWebhookError(providerName, errorType)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if delivery.Origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", delivery.Origin)
		w.Header().Add("Vary", "Origin")
	}

	topic := string(delivery.Topic)
	resp, err := process(r.Context(), delivery, body)
	code := http.StatusOK
	switch {
	case errors.Is(err, webhook.ErrMalformedPayload):
		logger.Warn("malformed webhook payload",
			registry.Field{Key: "topic", Value: topic},
			registry.Field{Key: "source", Value: delivery.Host},
			registry.Field{Key: "error", Value: err.Error()},
		)
		metrics.RecordWebhookError(providerName, "invalid_payload")
		resp = &webhook.Response{Action: topic, Status: webhook.StatusError, Message: err.Error()}
		code = http.StatusBadRequest
	case err != nil:
		apiErr := registry.NewAPIError(err)
		logger.Error("webhook processing failed",
			registry.Field{Key: "topic", Value: topic},
			registry.Field{Key: "source", Value: delivery.Host},
			registry.Field{Key: "code", Value: apiErr.Code},
			registry.Field{Key: "error", Value: apiErr.Message},
		)
		metrics.RecordWebhookError(providerName, "processing_error")
		resp = &webhook.Response{Action: topic, Status: webhook.StatusError, Message: apiErr.Message}
		code = apiErr.Code
	case resp.HasErrors():
		code = http.StatusInternalServerError
	}

	if err := internal.WriteJSON(w, code, resp); err != nil {
		logger.Warn("failed to write webhook response", registry.Field{Key: "error", Value: err.Error()})
	}

	duration := p.now().Sub(startTime)
	metrics.RecordWebhookEvent(providerName, topic, resp.Status)
	metrics.RecordWebhookProcessingDuration(providerName, topic, duration)
	logger.Info("webhook processed",
		registry.Field{Key: "topic", Value: topic},
		registry.Field{Key: "source", Value: delivery.Host},
		registry.Field{Key: "resource", Value: resp.Resource},
		registry.Field{Key: "status", Value: resp.Status},
		registry.Field{Key: "duration_ms", Value: duration.Milliseconds()},
	)

	if p.config.OnEvent != nil {
		p.config.OnEvent(r.Context(), webhook.Event{
			Provider:   providerName,
			Topic:      topic,
			Source:     delivery.Host,
			Response:   resp,
			ReceivedAt: startTime,
			Duration:   duration,
		})
	}
}
