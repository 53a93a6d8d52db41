package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/oriys/cachebridge/internal/engine"
	"github.com/oriys/cachebridge/internal/observability"
)

// DaemonConfig holds daemon-specific settings
type DaemonConfig struct {
	HTTPAddr  string `yaml:"http_addr"`
	GRPCAddr  string `yaml:"grpc_addr"` // empty disables the gRPC health server
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text, json
	AccessLog string `yaml:"access_log"` // "" off, "-" stdout, else a JSON lines file
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// AuthConfig enables HMAC-signed bearer tokens on the /v1 API.
type AuthConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Secret   string `yaml:"secret"`
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`
}

// RateLimitConfig throttles /v1 per token subject or client address.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	// RedisAddr shares buckets between instances; empty keeps them local.
	RedisAddr string `yaml:"redis_addr"`
}

// Config is the central configuration struct embedding all component configs
type Config struct {
	Daemon    DaemonConfig           `yaml:"daemon"`
	Metrics   MetricsConfig          `yaml:"metrics"`
	Tracing   observability.Config   `yaml:"tracing"`
	Auth      AuthConfig             `yaml:"auth"`
	RateLimit RateLimitConfig        `yaml:"rate_limit"`
	Caches    map[string]engine.Spec `yaml:"caches"`
}

// DefaultCache is the configuration name used when a caller does not pick
// one.
const DefaultCache = "default"

// DefaultConfig returns a Config with sensible defaults: a single in-memory
// cache named "default".
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			HTTPAddr:  ":8080",
			LogLevel:  "info",
			LogFormat: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "cachebridge",
		},
		Tracing: observability.DefaultConfig(),
		Auth: AuthConfig{
			Issuer:   "cachebridge",
			Audience: "cachebridge-clients",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
		},
		Caches: map[string]engine.Spec{
			DefaultCache: {Engine: engine.KindMemory},
		},
	}
}

// LoadFromFile loads configuration from a YAML file. Sections missing from
// the file keep their defaults; a caches section replaces the default
// cache set.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	cfg.Caches = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Caches) == 0 {
		cfg.Caches = DefaultConfig().Caches
	}

	return cfg, nil
}

// Load reads path when set, applies environment overrides and validates
// the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("CACHEBRIDGE_HTTP_ADDR"); v != "" {
		cfg.Daemon.HTTPAddr = v
	}
	if v := os.Getenv("CACHEBRIDGE_GRPC_ADDR"); v != "" {
		cfg.Daemon.GRPCAddr = v
	}
	if v := os.Getenv("CACHEBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}
	if v := os.Getenv("CACHEBRIDGE_LOG_FORMAT"); v != "" {
		cfg.Daemon.LogFormat = v
	}
	if v := os.Getenv("CACHEBRIDGE_ACCESS_LOG"); v != "" {
		cfg.Daemon.AccessLog = v
	}
	if v, ok := envBool("CACHEBRIDGE_METRICS_ENABLED"); ok {
		cfg.Metrics.Enabled = v
	}
	if v, ok := envBool("CACHEBRIDGE_TRACING_ENABLED"); ok {
		cfg.Tracing.Enabled = v
	}
	if v := os.Getenv("CACHEBRIDGE_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
	if v := os.Getenv("CACHEBRIDGE_RATE_LIMIT_REDIS_ADDR"); v != "" {
		cfg.RateLimit.RedisAddr = v
		cfg.RateLimit.Enabled = true
	}
	if v := os.Getenv("CACHEBRIDGE_AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
		cfg.Auth.Enabled = true
	}
	// Fill in connection settings for caches that leave them empty.
	redisAddr := os.Getenv("CACHEBRIDGE_REDIS_ADDR")
	redisPassword := os.Getenv("CACHEBRIDGE_REDIS_PASSWORD")
	postgresDSN := os.Getenv("CACHEBRIDGE_POSTGRES_DSN")
	for name, spec := range cfg.Caches {
		switch spec.Engine {
		case engine.KindRedis:
			if spec.Redis.Addr == "" {
				spec.Redis.Addr = redisAddr
			}
			if spec.Redis.Password == "" {
				spec.Redis.Password = redisPassword
			}
		case engine.KindPostgres:
			if spec.Postgres.DSN == "" {
				spec.Postgres.DSN = postgresDSN
			}
		}
		cfg.Caches[name] = spec
	}
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Validate checks the whole configuration, including references between
// caches.
func (c *Config) Validate() error {
	var errs []error

	switch c.Daemon.LogLevel {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("daemon.log_level: unknown level %q", c.Daemon.LogLevel))
	}
	switch c.Daemon.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("daemon.log_format: unknown format %q", c.Daemon.LogFormat))
	}
	if c.Auth.Enabled && c.Auth.Secret == "" {
		errs = append(errs, errors.New("auth.secret is required when auth is enabled"))
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("rate_limit.requests_per_second must be positive when rate limiting is enabled"))
	}
	if c.Tracing.Enabled && (c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1) {
		errs = append(errs, fmt.Errorf("tracing.sample_rate must be within [0, 1], got %v", c.Tracing.SampleRate))
	}

	if len(c.Caches) == 0 {
		errs = append(errs, errors.New("at least one cache must be configured"))
	}
	for name, spec := range c.Caches {
		if err := spec.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("caches.%s: %w", name, err))
			continue
		}
		if spec.Engine != engine.KindTiered {
			continue
		}
		for _, layer := range []string{spec.Tiered.L1, spec.Tiered.L2} {
			ref, ok := c.Caches[layer]
			switch {
			case layer == name:
				errs = append(errs, fmt.Errorf("caches.%s: tiered engine cannot reference itself", name))
			case !ok:
				errs = append(errs, fmt.Errorf("caches.%s: tiered layer %q is not configured", name, layer))
			case ref.Engine == engine.KindTiered:
				errs = append(errs, fmt.Errorf("caches.%s: tiered layer %q cannot itself be tiered", name, layer))
			}
		}
		if spec.Tiered.Invalidation && c.Caches[spec.Tiered.L2].Engine != engine.KindRedis {
			errs = append(errs, fmt.Errorf("caches.%s: invalidation requires a redis l2", name))
		}
	}
	return errors.Join(errs...)
}

// CacheNames returns the configured cache names.
func (c *Config) CacheNames() []string {
	names := make([]string, 0, len(c.Caches))
	for name := range c.Caches {
		names = append(names, name)
	}
	return names
}
