package ratelimit

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/oriys/cachebridge/internal/logging"
)

// FallbackBackend answers from local buckets while its primary (Redis)
// fails, and switches back once a background probe succeeds.
type FallbackBackend struct {
	primary   Backend
	local     *LocalTokenBucketBackend
	degraded  atomic.Bool
	probing   atomic.Bool
	lastProbe atomic.Int64 // unix nanoseconds
}

// NewFallbackBackend wraps primary with local buckets.
func NewFallbackBackend(primary Backend) *FallbackBackend {
	return &FallbackBackend{
		primary: primary,
		local:   NewLocalTokenBucketBackend(),
	}
}

// probeInterval is the minimum time between probes of a failed primary.
const probeInterval = 5 * time.Second

func (f *FallbackBackend) CheckRateLimit(ctx context.Context, key string, maxTokens int, refillRate float64, requested int) (bool, int, error) {
	if f.degraded.Load() {
		if time.Since(time.Unix(0, f.lastProbe.Load())) > probeInterval && f.probing.CompareAndSwap(false, true) {
			go f.probe()
		}
		return f.local.CheckRateLimit(ctx, key, maxTokens, refillRate, requested)
	}

	allowed, remaining, err := f.primary.CheckRateLimit(ctx, key, maxTokens, refillRate, requested)
	if err != nil {
		logging.Op().Warn("rate limit backend failed, using local buckets", "error", err)
		f.lastProbe.Store(time.Now().UnixNano())
		f.degraded.Store(true)
		return f.local.CheckRateLimit(ctx, key, maxTokens, refillRate, requested)
	}
	return allowed, remaining, nil
}

func (f *FallbackBackend) probe() {
	defer f.probing.Store(false)
	f.lastProbe.Store(time.Now().UnixNano())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := f.primary.CheckRateLimit(ctx, "probe", 1, 1, 0); err != nil {
		return
	}
	logging.Op().Info("rate limit backend recovered")
	f.degraded.Store(false)
}

// Degraded reports whether local buckets are in use.
func (f *FallbackBackend) Degraded() bool {
	return f.degraded.Load()
}

// LocalTokenBucketBackend implements Backend using in-memory token buckets.
// Buckets idle for longer than localBucketTTL are dropped.
type LocalTokenBucketBackend struct {
	mu      sync.Mutex
	buckets *ttlcache.Cache[string, *localBucket]
}

const (
	localBucketTTL      = 10 * time.Minute
	localBucketCapacity = 100_000
)

type localBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewLocalTokenBucketBackend creates a local in-memory token bucket backend.
func NewLocalTokenBucketBackend() *LocalTokenBucketBackend {
	return &LocalTokenBucketBackend{
		buckets: ttlcache.New(
			ttlcache.WithTTL[string, *localBucket](localBucketTTL),
			ttlcache.WithCapacity[string, *localBucket](localBucketCapacity),
		),
	}
}

func (l *LocalTokenBucketBackend) CheckRateLimit(_ context.Context, key string, maxTokens int, refillRate float64, requested int) (bool, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	var b *localBucket
	if item := l.buckets.Get(key); item != nil {
		b = item.Value()
	} else {
		b = &localBucket{
			tokens:     float64(maxTokens),
			lastRefill: now,
		}
		l.buckets.Set(key, b, ttlcache.DefaultTTL)
	}

	// Refill tokens based on elapsed time
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(float64(maxTokens), b.tokens+elapsed*refillRate)
		b.lastRefill = now
	}

	if b.tokens >= float64(requested) {
		b.tokens -= float64(requested)
		return true, int(b.tokens), nil
	}
	return false, int(b.tokens), nil
}
