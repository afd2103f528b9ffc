// Package config builds the process configuration once at start-up from an
// optional YAML file and STOREFRONT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "STOREFRONT"

type Config struct {
	ServiceName string          `mapstructure:"service_name"`
	HTTP        HTTPConfig      `mapstructure:"http"`
	GRPC        GRPCConfig      `mapstructure:"grpc"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Log         LogConfig       `mapstructure:"log"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Auth        AuthConfig      `mapstructure:"auth"`
	RateLimit   RateLimitConfig `mapstructure:"ratelimit"`
	Audit       AuditConfig     `mapstructure:"audit"`
	Gateway     GatewayConfig   `mapstructure:"gateway"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// TrustedProxies lists the peers, as addresses or CIDR prefixes, whose
	// X-Forwarded-For, X-Real-IP and True-Client-IP headers are believed.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// TrustedPrefixes parses TrustedProxies. A bare address becomes a single
// host prefix.
func (h HTTPConfig) TrustedPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(h.TrustedProxies))
	for _, raw := range h.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if p, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("http.trusted_proxies: %q is not an address or prefix", raw)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// TelemetryConfig leaves tracing off when Endpoint is empty.
type TelemetryConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Environment string `mapstructure:"environment"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type LimitConfig struct {
	Max      int           `mapstructure:"max"`
	Window   time.Duration `mapstructure:"window"`
	BlockFor time.Duration `mapstructure:"block_for"`
}

type RateLimitConfig struct {
	// Backend is "sqlite" or "redis".
	Backend  string      `mapstructure:"backend"`
	IP       LimitConfig `mapstructure:"ip"`
	Customer LimitConfig `mapstructure:"customer"`
}

type AuditConfig struct {
	// AlertChannel is the Redis channel alerts are published to. Empty
	// disables publishing.
	AlertChannel     string        `mapstructure:"alert_channel"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	FailureWindow    time.Duration `mapstructure:"failure_window"`
}

// sandboxEnvironments are the telemetry environments allowed to run the
// sandbox gateway, which reports every session paid.
var sandboxEnvironments = map[string]bool{"local": true, "test": true}

type GatewayConfig struct {
	// Mode is "hosted" or "sandbox". Sandbox must be chosen explicitly.
	Mode      string        `mapstructure:"mode"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	ReturnURL string        `mapstructure:"return_url"`
	Currency  string        `mapstructure:"currency"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "storefront-integrity")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("http.trusted_proxies", []string{})
	v.SetDefault("grpc.addr", ":9090")

	v.SetDefault("database.path", "storefront.db")
	v.SetDefault("redis.addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.environment", "production")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("ratelimit.backend", "sqlite")
	v.SetDefault("ratelimit.ip.max", 20)
	v.SetDefault("ratelimit.ip.window", 10*time.Minute)
	v.SetDefault("ratelimit.ip.block_for", 30*time.Minute)
	v.SetDefault("ratelimit.customer.max", 10)
	v.SetDefault("ratelimit.customer.window", 10*time.Minute)
	v.SetDefault("ratelimit.customer.block_for", 30*time.Minute)

	v.SetDefault("audit.alert_channel", "security:alerts")
	v.SetDefault("audit.failure_threshold", 5)
	v.SetDefault("audit.failure_window", 15*time.Minute)

	v.SetDefault("gateway.mode", "hosted")
	v.SetDefault("gateway.base_url", "")
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.return_url", "")
	v.SetDefault("gateway.currency", "USD")
	v.SetDefault("gateway.timeout", 10*time.Second)
}

// Load reads path when it is not empty, then applies environment overrides
// such as STOREFRONT_GATEWAY_API_KEY for gateway.api_key.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &cfg, nil
}

// Validate reports every problem that should stop the process from serving.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if _, err := c.HTTP.TrustedPrefixes(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 16 bytes"))
	}

	switch c.RateLimit.Backend {
	case "sqlite":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis rate limit backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("ratelimit.backend %q is not sqlite or redis", c.RateLimit.Backend))
	}
	errs = append(errs, c.RateLimit.IP.validate("ratelimit.ip"), c.RateLimit.Customer.validate("ratelimit.customer"))

	if c.Audit.FailureThreshold <= 0 || c.Audit.FailureWindow <= 0 {
		errs = append(errs, errors.New("audit.failure_threshold and audit.failure_window must be positive"))
	}

	switch c.Gateway.Mode {
	case "sandbox":
		if !sandboxEnvironments[c.Telemetry.Environment] {
			errs = append(errs, fmt.Errorf("gateway.mode sandbox is refused in environment %q, use local or test", c.Telemetry.Environment))
		}
	case "hosted":
		if c.Gateway.BaseURL == "" || c.Gateway.APIKey == "" {
			errs = append(errs, errors.New("gateway.base_url and gateway.api_key are required in hosted mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("gateway.mode %q is not sandbox or hosted", c.Gateway.Mode))
	}
	if len(c.Gateway.Currency) != 3 {
		errs = append(errs, fmt.Errorf("gateway.currency %q is not a three letter code", c.Gateway.Currency))
	}

	return errors.Join(errs...)
}

func (l LimitConfig) validate(name string) error {
	if l.Max <= 0 || l.Window <= 0 || l.BlockFor < 0 {
		return fmt.Errorf("%s: max and window must be positive", name)
	}
	return nil
}
