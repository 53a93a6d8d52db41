package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/oriys/cachebridge/internal/engine"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cachebridge.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Caches[DefaultCache].Engine != engine.KindMemory {
		t.Fatalf("expected a memory default cache, got %+v", cfg.Caches)
	}
	if cfg.Tracing.Enabled {
		t.Fatalf("tracing should be off by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
daemon:
  http_addr: ":9090"
  log_format: json
tracing:
  enabled: true
  sample_rate: 0.5
caches:
  local:
    engine: memory
    duration: 120
    prefix: "app_"
  shared:
    engine: redis
    duration: 0
    redis:
      addr: "localhost:6379"
      db: 2
  hot:
    engine: tiered
    tiered:
      l1: local
      l2: shared
      l1_ttl: 5s
      invalidation: true
  guarded:
    engine: bolt
    bolt:
      path: /tmp/cache.db
    breaker:
      error_pct: 50
      window: 30s
      open_duration: 1m
`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Daemon.HTTPAddr != ":9090" || cfg.Daemon.LogFormat != "json" {
		t.Fatalf("unexpected daemon config %+v", cfg.Daemon)
	}
	if cfg.Daemon.LogLevel != "info" {
		t.Fatalf("expected default log level to survive, got %q", cfg.Daemon.LogLevel)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.SampleRate != 0.5 || cfg.Tracing.Endpoint != "localhost:4318" {
		t.Fatalf("unexpected tracing config %+v", cfg.Tracing)
	}
	if _, ok := cfg.Caches[DefaultCache]; ok {
		t.Fatalf("a caches section should replace the default cache set")
	}

	local := cfg.Caches["local"]
	if local.Settings("local").Duration != 120 || local.Prefix != "app_" {
		t.Fatalf("unexpected local spec %+v", local)
	}
	if shared := cfg.Caches["shared"]; shared.Settings("shared").Duration != 0 || shared.Redis.DB != 2 {
		t.Fatalf("expected explicit zero duration and db 2, got %+v", shared)
	}
	if hot := cfg.Caches["hot"]; hot.Tiered.L1TTL != 5*time.Second || !hot.Tiered.Invalidation {
		t.Fatalf("unexpected tiered spec %+v", hot.Tiered)
	}
	if b := cfg.Caches["guarded"].Breaker; b.ErrorPct != 50 || b.Window != 30*time.Second || b.OpenDuration != time.Minute {
		t.Fatalf("unexpected breaker spec %+v", b)
	}
}

func TestLoadFromFile_WithoutCaches(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, "daemon:\n  log_level: debug\n"))
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if _, ok := cfg.Caches[DefaultCache]; !ok {
		t.Fatalf("expected the default cache when none are configured")
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := LoadFromFile(writeConfig(t, "caches: [not, a, map]")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CACHEBRIDGE_HTTP_ADDR", ":7000")
	t.Setenv("CACHEBRIDGE_LOG_LEVEL", "debug")
	t.Setenv("CACHEBRIDGE_METRICS_ENABLED", "false")
	t.Setenv("CACHEBRIDGE_TRACING_ENABLED", "true")
	t.Setenv("CACHEBRIDGE_AUTH_SECRET", "s3cret")
	t.Setenv("CACHEBRIDGE_REDIS_ADDR", "redis:6379")
	t.Setenv("CACHEBRIDGE_POSTGRES_DSN", "postgres://cache@db/cache")

	cfg := DefaultConfig()
	cfg.Caches["shared"] = engine.Spec{Engine: engine.KindRedis}
	cfg.Caches["pinned"] = engine.Spec{Engine: engine.KindRedis, Redis: engine.RedisConfig{Addr: "other:6379"}}
	cfg.Caches["sql"] = engine.Spec{Engine: engine.KindPostgres}
	LoadFromEnv(cfg)

	if cfg.Daemon.HTTPAddr != ":7000" || cfg.Daemon.LogLevel != "debug" {
		t.Fatalf("unexpected daemon config %+v", cfg.Daemon)
	}
	if cfg.Metrics.Enabled || !cfg.Tracing.Enabled {
		t.Fatalf("expected metrics off and tracing on")
	}
	if !cfg.Auth.Enabled || cfg.Auth.Secret != "s3cret" {
		t.Fatalf("expected auth enabled by secret, got %+v", cfg.Auth)
	}
	if cfg.Caches["shared"].Redis.Addr != "redis:6379" {
		t.Fatalf("expected env redis addr, got %q", cfg.Caches["shared"].Redis.Addr)
	}
	if cfg.Caches["pinned"].Redis.Addr != "other:6379" {
		t.Fatalf("explicit addr must win over env, got %q", cfg.Caches["pinned"].Redis.Addr)
	}
	if cfg.Caches["sql"].Postgres.DSN != "postgres://cache@db/cache" {
		t.Fatalf("expected env dsn, got %q", cfg.Caches["sql"].Postgres.DSN)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.Daemon.LogLevel = "loud" }, "log_level"},
		{"log format", func(c *Config) { c.Daemon.LogFormat = "xml" }, "log_format"},
		{"auth secret", func(c *Config) { c.Auth.Enabled = true }, "auth.secret"},
		{"no caches", func(c *Config) { c.Caches = nil }, "at least one cache"},
		{"bad engine", func(c *Config) { c.Caches["x"] = engine.Spec{Engine: "nope"} }, "caches.x"},
		{"dangling layer", func(c *Config) {
			c.Caches["t"] = engine.Spec{Engine: engine.KindTiered, Tiered: engine.TieredSpec{L1: "default", L2: "gone"}}
		}, `"gone" is not configured`},
		{"nested tiered", func(c *Config) {
			c.Caches["t1"] = engine.Spec{Engine: engine.KindTiered, Tiered: engine.TieredSpec{L1: "default", L2: "default"}}
			c.Caches["t2"] = engine.Spec{Engine: engine.KindTiered, Tiered: engine.TieredSpec{L1: "default", L2: "t1"}}
		}, "cannot itself be tiered"},
		{"invalidation without redis", func(c *Config) {
			c.Caches["t"] = engine.Spec{Engine: engine.KindTiered, Tiered: engine.TieredSpec{L1: "default", L2: "default", Invalidation: true}}
		}, "requires a redis l2"},
		{"rate limit", func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.RequestsPerSecond = 0
		}, "requests_per_second"},
		{"sample rate", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SampleRate = 2
		}, "sample_rate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("CACHEBRIDGE_LOG_LEVEL", "")
	t.Setenv("CACHEBRIDGE_REDIS_ADDR", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.CacheNames()) != 1 {
		t.Fatalf("expected the default cache, got %v", cfg.CacheNames())
	}

	_, err = Load(writeConfig(t, "caches:\n  x:\n    engine: redis\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected validation error from Load, got %v", err)
	}
}
