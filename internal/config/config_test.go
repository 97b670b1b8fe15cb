package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "/wp-json/softwareregistry/v1", cfg.Server.Namespace)
	assert.Equal(t, []string{"create", "revise", "deactivate", "activate"}, cfg.Webhook.Endpoints)
	assert.Equal(t, "item", cfg.Webhook.RegistrationType)
	assert.Equal(t, "ignore", cfg.Webhook.OrdersWithSubscriptions)
	assert.Equal(t, "None", cfg.Webhook.GracePeriod)
	assert.Equal(t, int64(1<<20), cfg.Webhook.MaxBodyBytes)
	assert.Equal(t, time.Minute, cfg.Webhook.RateLimit.Window)
	assert.Equal(t, "memory", cfg.Registry.Storage)
	assert.Equal(t, "1 year", cfg.Registry.DefaultTerm)
	assert.Equal(t, 30*time.Second, cfg.CircuitBreaker.ResetTimeout)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "registryd.yaml", `
server:
  port: 9000
webhook:
  secret: s3cret
  endpoints: [create, subscription]
  registration_type: order
  grace_period: 3 days
  item_mapping: |
    PRO-.*=pro
    BUNDLE=pkgA,pkgB
  rate_limit:
    window: 30s
registry:
  timezone: Europe/Bucharest
  storage: redis
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Webhook.Secret)
	assert.Equal(t, []string{"create", "subscription"}, cfg.Webhook.Endpoints)
	assert.Equal(t, "order", cfg.Webhook.RegistrationType)
	assert.Equal(t, "3 days", cfg.Webhook.GracePeriod)
	assert.Equal(t, "PRO-.*=pro\nBUNDLE=pkgA,pkgB\n", cfg.Webhook.ItemMapping)
	assert.Equal(t, 30*time.Second, cfg.Webhook.RateLimit.Window)
	assert.Equal(t, "Europe/Bucharest", cfg.Registry.Timezone)
	assert.Equal(t, "redis", cfg.Registry.Storage)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REGISTRY_WEBHOOK_SECRET", "from-env")
	t.Setenv("REGISTRY_SERVER_PORT", "7070")
	t.Setenv("REGISTRY_WEBHOOK_ENDPOINTS", "create,deactivate")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Webhook.Secret)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"create", "deactivate"}, cfg.Webhook.Endpoints)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, ".env", "REGISTRY_LOGGER_LEVEL=debug\n")
	t.Cleanup(func() { _ = os.Unsetenv("REGISTRY_LOGGER_LEVEL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{Registry: RegistryConfig{Storage: "memory", Timezone: "UTC"}}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown storage", func(c *Config) { c.Registry.Storage = "mysql" }, `unknown registry.storage "mysql"`},
		{"bad timezone", func(c *Config) { c.Registry.Timezone = "Mars/Olympus" }, "invalid registry.timezone"},
		{"postgres without dsn", func(c *Config) { c.Registry.Storage = "postgres" }, "postgres.dsn is required"},
		{"tiered without dsn", func(c *Config) { c.Registry.Storage = "tiered" }, "postgres.dsn is required"},
		{"firestore without project", func(c *Config) { c.Registry.Storage = "firestore" }, "firestore.project_id is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
