// Package config loads registryd configuration from a YAML file, a .env file
// and REGISTRY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // registry.timezone must resolve without system zoneinfo

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the registryd service configuration.
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logger         LoggerConfig         `mapstructure:"logger"`
	Webhook        WebhookConfig        `mapstructure:"webhook"`
	Registry       RegistryConfig       `mapstructure:"registry"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Postgres       PostgresConfig       `mapstructure:"postgres"`
	Firestore      FirestoreConfig      `mapstructure:"firestore"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Namespace       string        `mapstructure:"namespace"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AdminToken enables the /admin/registrations lookup API when set.
	AdminToken string `mapstructure:"admin_token"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WebhookConfig struct {
	Secret                  string          `mapstructure:"secret"`
	Endpoints               []string        `mapstructure:"endpoints"`
	RegistrationType        string          `mapstructure:"registration_type"`
	ItemMapping             string          `mapstructure:"item_mapping"`
	OrdersWithSubscriptions string          `mapstructure:"orders_with_subscriptions"`
	GracePeriod             string          `mapstructure:"grace_period"`
	MaxBodyBytes            int64           `mapstructure:"max_body_bytes"`
	RateLimit               RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type RegistryConfig struct {
	Timezone    string       `mapstructure:"timezone"`
	DefaultTerm string       `mapstructure:"default_term"`
	Storage     string       `mapstructure:"storage"`
	Tiered      TieredConfig `mapstructure:"tiered"`
}

type TieredConfig struct {
	Async      bool `mapstructure:"async"`
	BufferSize int  `mapstructure:"buffer_size"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type PostgresConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxConns    int32  `mapstructure:"max_conns"`
	MinConns    int32  `mapstructure:"min_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type FirestoreConfig struct {
	ProjectID              string `mapstructure:"project_id"`
	RecordsCollection      string `mapstructure:"records_collection"`
	TransactionsCollection string `mapstructure:"transactions_collection"`
}

// Storage backends accepted by registry.storage.
var storages = map[string]bool{"memory": true, "redis": true, "postgres": true, "firestore": true, "tiered": true}

// Load reads configuration. An explicit file must exist; without one, config.yaml
// is looked up in ., ./configs and /etc/registryd and may be absent. A .env file
// in the working directory is applied to the environment first.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/registryd")
	}

	v.SetEnvPrefix("REGISTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks settings that cannot be caught later by the components.
func (c *Config) Validate() error {
	if !storages[c.Registry.Storage] {
		return fmt.Errorf("unknown registry.storage %q", c.Registry.Storage)
	}
	if _, err := time.LoadLocation(c.Registry.Timezone); err != nil {
		return fmt.Errorf("invalid registry.timezone: %w", err)
	}
	if (c.Registry.Storage == "postgres" || c.Registry.Storage == "tiered") && c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required for " + c.Registry.Storage + " storage")
	}
	if c.Registry.Storage == "firestore" && c.Firestore.ProjectID == "" {
		return errors.New("firestore.project_id is required for firestore storage")
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.namespace", "/wp-json/softwareregistry/v1")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.admin_token", "")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	// Webhook defaults
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.endpoints", []string{"create", "revise", "deactivate", "activate"})
	v.SetDefault("webhook.registration_type", "item")
	v.SetDefault("webhook.item_mapping", "")
	v.SetDefault("webhook.orders_with_subscriptions", "ignore")
	v.SetDefault("webhook.grace_period", "None")
	v.SetDefault("webhook.max_body_bytes", 1<<20)
	v.SetDefault("webhook.rate_limit.requests", 120)
	v.SetDefault("webhook.rate_limit.window", time.Minute)

	// Registry defaults
	v.SetDefault("registry.timezone", "UTC")
	v.SetDefault("registry.default_term", "1 year")
	v.SetDefault("registry.storage", "memory")
	v.SetDefault("registry.tiered.async", false)
	v.SetDefault("registry.tiered.buffer_size", 1000)

	// Circuit breaker defaults
	v.SetDefault("circuit_breaker.enabled", false)
	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.reset_timeout", 30*time.Second)

	// Backend defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "registry:")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.auto_migrate", false)
	v.SetDefault("firestore.project_id", "")
	v.SetDefault("firestore.records_collection", "registry_records")
	v.SetDefault("firestore.transactions_collection", "registry_transactions")
}
