package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/oriys/cachebridge/internal/circuitbreaker"
	"github.com/oriys/cachebridge/internal/logging"
)

// Engine kinds accepted in a Spec.
const (
	KindMemory   = "memory"
	KindLRU      = "lru"
	KindRedis    = "redis"
	KindBolt     = "bolt"
	KindPostgres = "postgres"
	KindSQLite   = "sqlite"
	KindTiered   = "tiered"
	KindNull     = "null"
)

// Kinds lists every engine kind.
var Kinds = []string{KindMemory, KindLRU, KindRedis, KindBolt, KindPostgres, KindSQLite, KindTiered, KindNull}

// TieredSpec names the configurations used as layers of a tiered engine.
type TieredSpec struct {
	L1           string        `yaml:"l1"`
	L2           string        `yaml:"l2"`
	L1TTL        time.Duration `yaml:"l1_ttl"`
	Invalidation bool          `yaml:"invalidation"` // requires a redis L2
}

// BreakerSpec enables the circuit breaker decorator.
type BreakerSpec struct {
	ErrorPct       float64       `yaml:"error_pct"`
	MinRequests    int           `yaml:"min_requests"`
	Window         time.Duration `yaml:"window"`
	OpenDuration   time.Duration `yaml:"open_duration"`
	HalfOpenProbes int           `yaml:"half_open_probes"`
}

func (b BreakerSpec) config() circuitbreaker.Config {
	return circuitbreaker.Config{
		ErrorPct:       b.ErrorPct,
		MinRequests:    b.MinRequests,
		WindowDuration: b.Window,
		OpenDuration:   b.OpenDuration,
		HalfOpenProbes: b.HalfOpenProbes,
	}
}

// Spec describes one named cache configuration.
type Spec struct {
	Engine   string         `yaml:"engine"`
	Duration *int           `yaml:"duration"` // seconds; nil means DefaultDuration
	Prefix   string         `yaml:"prefix"`
	Capacity int            `yaml:"capacity"` // lru only
	Redis    RedisConfig    `yaml:"redis"`
	Bolt     BoltConfig     `yaml:"bolt"`
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Tiered   TieredSpec     `yaml:"tiered"`
	Breaker  BreakerSpec    `yaml:"breaker"`
}

// Settings returns the seed settings of the definition registered under
// name. Without an explicit prefix the name becomes the prefix, so that
// configurations sharing a backend or a layer never clear each other.
func (s Spec) Settings(name string) Settings {
	d := DefaultDuration
	if s.Duration != nil {
		d = *s.Duration
	}
	prefix := s.Prefix
	if prefix == "" && name != "" {
		prefix = name + "_"
	}
	return Settings{Duration: d, Prefix: prefix}
}

// Validate checks the definition in isolation. References between definitions are
// checked by Build.
func (s Spec) Validate() error {
	switch s.Engine {
	case KindMemory, KindLRU, KindNull, KindSQLite:
	case KindRedis:
		if s.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required")
		}
	case KindBolt:
		if s.Bolt.Path == "" {
			return fmt.Errorf("bolt.path is required")
		}
	case KindPostgres:
		if s.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required")
		}
	case KindTiered:
		if s.Tiered.L1 == "" || s.Tiered.L2 == "" {
			return fmt.Errorf("tiered.l1 and tiered.l2 are required")
		}
	case "":
		return fmt.Errorf("engine is required")
	default:
		return fmt.Errorf("unknown engine %q (valid: %v)", s.Engine, Kinds)
	}
	return nil
}

// BuildOptions tunes Build.
type BuildOptions struct {
	// Breakers holds the per-configuration circuit breakers. A fresh
	// registry is used when nil.
	Breakers *circuitbreaker.Registry
	// OnBreakerChange is notified of every breaker transition.
	OnBreakerChange func(name string, from, to circuitbreaker.State)
}

// Build opens one engine per spec and registers it under its name. Tiered
// specs are built after the configurations they reference. Invalidation
// listeners run until ctx is cancelled or the registry is closed.
func Build(ctx context.Context, specs map[string]Spec, opts BuildOptions) (*Registry, error) {
	if opts.Breakers == nil {
		opts.Breakers = circuitbreaker.NewRegistry()
	}

	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ti, tj := specs[names[i]].Engine == KindTiered, specs[names[j]].Engine == KindTiered
		if ti != tj {
			return tj
		}
		return names[i] < names[j]
	})

	reg := NewRegistry()
	for _, name := range names {
		spec := specs[name]
		if err := spec.Validate(); err != nil {
			_ = reg.Close()
			return nil, fmt.Errorf("cache %q: %w", name, err)
		}
		e, err := open(ctx, reg, name, spec)
		if err != nil {
			_ = reg.Close()
			return nil, fmt.Errorf("cache %q: %w", name, err)
		}
		if b := opts.Breakers.Get(name, spec.Breaker.config()); b != nil {
			if opts.OnBreakerChange != nil {
				b.OnStateChange(func(from, to circuitbreaker.State) {
					opts.OnBreakerChange(name, from, to)
				})
			}
			e = WithBreaker(e, b)
		}
		if err := reg.SetConfig(name, e); err != nil {
			_ = e.Close()
			_ = reg.Close()
			return nil, err
		}
		logging.ForCache(name).Info("cache engine ready", "engine", spec.Engine, "duration", spec.Settings(name).Duration)
	}
	return reg, nil
}

func open(ctx context.Context, reg *Registry, name string, spec Spec) (Engine, error) {
	s := spec.Settings(name)
	switch spec.Engine {
	case KindMemory:
		return NewMemoryEngine(s), nil
	case KindLRU:
		return NewLRUEngine(s, spec.Capacity)
	case KindNull:
		return NewNullEngine(s), nil
	case KindRedis:
		e := NewRedisEngine(s, spec.Redis)
		if err := e.Ping(ctx); err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("connect redis %s: %w", spec.Redis.Addr, err)
		}
		return e, nil
	case KindBolt:
		return NewBoltEngine(s, spec.Bolt)
	case KindPostgres:
		return NewPostgresEngine(ctx, s, spec.Postgres)
	case KindSQLite:
		return NewSQLiteEngine(s, spec.SQLite)
	case KindTiered:
		return openTiered(ctx, reg, name, spec)
	}
	return nil, fmt.Errorf("unknown engine %q", spec.Engine)
}

func openTiered(ctx context.Context, reg *Registry, name string, spec Spec) (Engine, error) {
	l1, err := reg.Engine(spec.Tiered.L1)
	if err != nil {
		return nil, fmt.Errorf("tiered l1: %w", err)
	}
	l2, err := reg.Engine(spec.Tiered.L2)
	if err != nil {
		return nil, fmt.Errorf("tiered l2: %w", err)
	}
	t, err := NewTieredEngine(spec.Settings(name), l1, l2, spec.Tiered.L1TTL)
	if err != nil {
		return nil, err
	}
	if spec.Tiered.Invalidation {
		r, ok := root(l2).(*RedisEngine)
		if !ok {
			return nil, fmt.Errorf("tiered invalidation requires a redis l2, got %T", root(l2))
		}
		inv := NewInvalidator(name, l1, t.Prefix(), r.Client())
		t.UseInvalidator(inv)
		go inv.Start(ctx)
	}
	return t, nil
}
