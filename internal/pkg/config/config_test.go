package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.RateLimit.Backend)
	assert.Equal(t, 20, cfg.RateLimit.IP.Max)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.Customer.Window)
	assert.Equal(t, "hosted", cfg.Gateway.Mode)
	assert.Empty(t, cfg.Gateway.APIKey)
	assert.Empty(t, cfg.HTTP.TrustedProxies)
}

func TestDefaultsRequireGatewayCredentials(t *testing.T) {
	t.Setenv("STOREFRONT_AUTH_JWT_SECRET", "0123456789abcdef")

	cfg, err := Load("")
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway.api_key")
}

func TestSandboxNeedsLocalEnvironment(t *testing.T) {
	t.Setenv("STOREFRONT_AUTH_JWT_SECRET", "0123456789abcdef")
	t.Setenv("STOREFRONT_GATEWAY_MODE", "sandbox")

	cfg, err := Load("")
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sandbox is refused")

	cfg.Telemetry.Environment = "local"
	assert.NoError(t, cfg.Validate())
}

func TestTrustedPrefixes(t *testing.T) {
	h := HTTPConfig{TrustedProxies: []string{"10.0.0.0/8", " 192.0.2.7 ", "", "2001:db8::/32"}}
	prefixes, err := h.TrustedPrefixes()
	require.NoError(t, err)
	require.Len(t, prefixes, 3)
	assert.Equal(t, "192.0.2.7/32", prefixes[1].String())

	_, err = HTTPConfig{TrustedProxies: []string{"proxy.internal"}}.TrustedPrefixes()
	assert.Error(t, err)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ratelimit:
  backend: redis
  ip:
    max: 3
    window: 1m
gateway:
  mode: hosted
  base_url: https://pay.example.com
`), 0o600))

	t.Setenv("STOREFRONT_GATEWAY_API_KEY", "key-from-env")
	t.Setenv("STOREFRONT_REDIS_ADDR", "localhost:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.RateLimit.Backend)
	assert.Equal(t, 3, cfg.RateLimit.IP.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.IP.Window)
	assert.Equal(t, "key-from-env", cfg.Gateway.APIKey)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		cfg.Auth.JWTSecret = "0123456789abcdef"
		cfg.Gateway.BaseURL = "https://pay.example.com"
		cfg.Gateway.APIKey = "key"
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, "auth.jwt_secret"},
		{"hosted without key", func(c *Config) { c.Gateway.Mode = "hosted"; c.Gateway.APIKey = "" }, "gateway.api_key"},
		{"unknown backend", func(c *Config) { c.RateLimit.Backend = "memcached" }, "ratelimit.backend"},
		{"redis without addr", func(c *Config) { c.RateLimit.Backend = "redis" }, "redis.addr"},
		{"zero ip max", func(c *Config) { c.RateLimit.IP.Max = 0 }, "ratelimit.ip"},
		{"sandbox in production", func(c *Config) { c.Gateway.Mode = "sandbox" }, "gateway.mode sandbox"},
		{"bad trusted proxy", func(c *Config) { c.HTTP.TrustedProxies = []string{"not-an-ip"} }, "http.trusted_proxies"},
		{"bad currency", func(c *Config) { c.Gateway.Currency = "DOLLAR" }, "gateway.currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
