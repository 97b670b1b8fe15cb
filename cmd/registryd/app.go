package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mihaimyh/goregistry/internal/config"
	mwhttp "github.com/mihaimyh/goregistry/middleware/http"
	"github.com/mihaimyh/goregistry/pkg/api"
	"github.com/mihaimyh/goregistry/pkg/registry"
	zerologadapter "github.com/mihaimyh/goregistry/pkg/registry/logger/zerolog"
	registryprom "github.com/mihaimyh/goregistry/pkg/registry/metrics/prometheus"
	"github.com/mihaimyh/goregistry/pkg/webhook"
	webhookprom "github.com/mihaimyh/goregistry/pkg/webhook/metrics/prometheus"
	"github.com/mihaimyh/goregistry/pkg/webhook/woocommerce"
	firestorestorage "github.com/mihaimyh/goregistry/storage/firestore"
	"github.com/mihaimyh/goregistry/storage/memory"
	"github.com/mihaimyh/goregistry/storage/postgres"
	redisstorage "github.com/mihaimyh/goregistry/storage/redis"
	"github.com/mihaimyh/goregistry/storage/tiered"
)

// app holds the wired service components.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	metrics  *prometheus.Registry
	storage  registry.Storage
	manager  *registry.Manager
	provider *woocommerce.Provider
	lookup   *api.Handler // nil unless server.admin_token is set
	closers  []func() error
}

// newLogger builds the zerolog logger described by cfg.
func newLogger(cfg config.LoggerConfig, out io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid logger.level %q: %w", cfg.Level, err)
	}
	switch cfg.Format {
	case "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case "json", "":
	default:
		return zerolog.Nop(), fmt.Errorf("invalid logger.format %q", cfg.Format)
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log, metrics: prometheus.NewRegistry()}
	a.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	storage, err := a.openStorage(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	registryMetrics := registryprom.NewMetrics(a.metrics, "registryd")
	if cfg.CircuitBreaker.Enabled {
		cb := registry.NewCircuitBreaker(registry.CircuitBreakerConfig{
			FailureThreshold: cfg.CircuitBreaker.FailureThreshold,
			ResetTimeout:     cfg.CircuitBreaker.ResetTimeout,
			OnStateChange: func(state registry.CircuitBreakerState) {
				registryMetrics.RecordCircuitBreakerStateChange(string(state))
				log.Warn().Str("state", string(state)).Msg("storage circuit breaker changed state")
			},
		})
		storage = registry.NewCircuitBreakerStorage(storage, cb, registryMetrics)
	}
	a.storage = storage

	loc, err := time.LoadLocation(cfg.Registry.Timezone)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("invalid registry.timezone: %w", err)
	}
	term, err := registry.ParsePeriod(cfg.Registry.DefaultTerm)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("invalid registry.default_term: %w", err)
	}

	logger := zerologadapter.NewLogger(log)
	a.manager, err = registry.NewManager(storage, registry.Config{
		DefaultTerm: term,
		Location:    loc,
		Logger:      logger,
		Metrics:     registryMetrics,
		Notifier:    &logNotifier{log: log},
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	endpoints := make([]woocommerce.Endpoint, 0, len(cfg.Webhook.Endpoints))
	for _, e := range cfg.Webhook.Endpoints {
		endpoints = append(endpoints, woocommerce.Endpoint(strings.TrimSpace(e)))
	}

	a.provider, err = woocommerce.NewProvider(woocommerce.Config{
		Config: webhook.Config{
			WebhookSecret:     cfg.Webhook.Secret,
			MaxBodyBytes:      cfg.Webhook.MaxBodyBytes,
			RateLimitRequests: cfg.Webhook.RateLimit.Requests,
			RateLimitWindow:   cfg.Webhook.RateLimit.Window,
			Metrics:           webhookprom.NewMetrics(a.metrics, "registryd"),
			Logger:            logger,
		},
		Registry:                a.manager,
		Endpoints:               endpoints,
		RegistrationType:        woocommerce.RegistrationType(cfg.Webhook.RegistrationType),
		ItemMapping:             cfg.Webhook.ItemMapping,
		OrdersWithSubscriptions: woocommerce.SubscriptionPolicy(cfg.Webhook.OrdersWithSubscriptions),
		GracePeriod:             cfg.Webhook.GracePeriod,
		Location:                loc,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	if cfg.Server.AdminToken != "" {
		a.lookup, err = api.NewHandler(api.Config{
			Registry:  a.manager,
			Authorize: api.BearerToken(cfg.Server.AdminToken),
			GetKey:    func(r *http.Request) string { return chi.URLParam(r, "key") },
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	if cfg.Webhook.Secret == "" {
		log.Warn().Msg("webhook.secret is empty; deliveries will be answered with 503")
	}
	return a, nil
}

// openStorage connects the backend named by registry.storage.
func (a *app) openStorage(ctx context.Context) (registry.Storage, error) {
	switch a.cfg.Registry.Storage {
	case "memory":
		a.log.Warn().Msg("using in-memory storage; registrations are lost on restart")
		return memory.New(), nil
	case "redis":
		return a.openRedis()
	case "postgres":
		return a.openPostgres(ctx)
	case "firestore":
		client, err := firestore.NewClient(ctx, a.cfg.Firestore.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return firestorestorage.New(client, firestorestorage.Config{
			RecordsCollection:      a.cfg.Firestore.RecordsCollection,
			TransactionsCollection: a.cfg.Firestore.TransactionsCollection,
		})
	case "tiered":
		cold, err := a.openPostgres(ctx)
		if err != nil {
			return nil, err
		}
		hot, err := a.openRedis()
		if err != nil {
			return nil, err
		}
		s, err := tiered.New(tiered.Config{
			Hot:            hot,
			Cold:           cold,
			AsyncSync:      a.cfg.Registry.Tiered.Async,
			SyncBufferSize: a.cfg.Registry.Tiered.BufferSize,
			AsyncErrorHandler: func(err error) {
				a.log.Error().Err(err).Msg("cache refresh failed")
			},
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown registry.storage %q", a.cfg.Registry.Storage)
	}
}

func (a *app) openRedis() (*redisstorage.Storage, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	s, err := redisstorage.New(client, redisstorage.Config{KeyPrefix: a.cfg.Redis.KeyPrefix})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	a.closers = append(a.closers, s.Close)
	return s, nil
}

func (a *app) openPostgres(ctx context.Context) (*postgres.Storage, error) {
	pgConfig := postgres.DefaultConfig()
	pgConfig.ConnectionString = a.cfg.Postgres.DSN
	pgConfig.AutoMigrate = a.cfg.Postgres.AutoMigrate
	if a.cfg.Postgres.MaxConns > 0 {
		pgConfig.MaxConns = a.cfg.Postgres.MaxConns
	}
	if a.cfg.Postgres.MinConns > 0 {
		pgConfig.MinConns = a.cfg.Postgres.MinConns
	}
	s, err := postgres.New(ctx, pgConfig)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error { s.Close(); return nil })
	return s, nil
}

// Close releases storage connections in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// router serves the webhook endpoints and a health check.
func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	orderPath, subscriptionPath := mwhttp.Routes(mwhttp.Config{Namespace: a.cfg.Server.Namespace})
	r.Handle(orderPath, a.provider.OrderHandler())
	r.Handle(subscriptionPath, a.provider.SubscriptionHandler())

	if a.lookup != nil {
		r.Route("/admin/registrations", func(r chi.Router) {
			r.Get("/", a.lookup.GetOrderRegistrations)
			r.Get("/{key}", a.lookup.GetRegistration)
		})
	}
	return r
}

// requestLogger logs one line per request at debug level.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// logNotifier records client notifications in the service log.
type logNotifier struct {
	log zerolog.Logger
}

func (n *logNotifier) NotifyClient(_ context.Context, rec *registry.Record, action registry.Action) error {
	n.log.Info().
		Str("registry_key", rec.Key).
		Str("transaction_id", rec.TransactionID).
		Str("email", rec.Email).
		Str("action", string(action)).
		Msg("client notification")
	return nil
}
