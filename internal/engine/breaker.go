package engine

import (
	"context"
	"errors"
	"time"

	"github.com/oriys/cachebridge/internal/circuitbreaker"
)

// BreakerEngine fails fast with circuitbreaker.ErrOpen while its backend
// keeps erroring. Only errors count as failures; a false success flag from
// the backend does not. Settings are delegated to the inner engine.
type BreakerEngine struct {
	inner   Engine
	breaker *circuitbreaker.Breaker
}

// WithBreaker decorates e. A nil breaker returns e unchanged.
func WithBreaker(e Engine, b *circuitbreaker.Breaker) Engine {
	if b == nil {
		return e
	}
	return &BreakerEngine{inner: e, breaker: b}
}

func (b *BreakerEngine) Unwrap() Engine { return b.inner }

func guarded[T any](b *BreakerEngine, ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if !b.breaker.Allow() {
		return zero, circuitbreaker.ErrOpen
	}
	v, err := fn()
	switch {
	case err == nil:
		b.breaker.RecordSuccess()
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// the caller gave up, the backend is not at fault
	default:
		b.breaker.RecordFailure()
	}
	return v, err
}

func (b *BreakerEngine) Read(ctx context.Context, key string) (any, error) {
	return guarded(b, ctx, func() (any, error) { return b.inner.Read(ctx, key) })
}

func (b *BreakerEngine) Write(ctx context.Context, key string, value any) (bool, error) {
	return guarded(b, ctx, func() (bool, error) { return b.inner.Write(ctx, key, value) })
}

func (b *BreakerEngine) Delete(ctx context.Context, key string) (bool, error) {
	return guarded(b, ctx, func() (bool, error) { return b.inner.Delete(ctx, key) })
}

func (b *BreakerEngine) Clear(ctx context.Context, scoped bool) (bool, error) {
	return guarded(b, ctx, func() (bool, error) { return b.inner.Clear(ctx, scoped) })
}

// ClearPrefix is available when the inner engine supports it.
func (b *BreakerEngine) ClearPrefix(ctx context.Context, prefix string) (bool, error) {
	pc, ok := b.inner.(PrefixClearer)
	if !ok {
		return false, errors.New("engine: inner engine cannot clear by prefix")
	}
	return guarded(b, ctx, func() (bool, error) { return pc.ClearPrefix(ctx, prefix) })
}

func (b *BreakerEngine) ReadMany(ctx context.Context, keys []string) (map[string]any, error) {
	return guarded(b, ctx, func() (map[string]any, error) { return b.inner.ReadMany(ctx, keys) })
}

func (b *BreakerEngine) WriteMany(ctx context.Context, values map[string]any) (bool, error) {
	return guarded(b, ctx, func() (bool, error) { return b.inner.WriteMany(ctx, values) })
}

func (b *BreakerEngine) DeleteMany(ctx context.Context, keys []string) (bool, error) {
	return guarded(b, ctx, func() (bool, error) { return b.inner.DeleteMany(ctx, keys) })
}

// WriteTTL is available when the inner engine supports it.
func (b *BreakerEngine) WriteTTL(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	w, ok := b.inner.(TTLWriter)
	if !ok {
		return false, errors.New("engine: inner engine cannot write with explicit ttl")
	}
	return guarded(b, ctx, func() (bool, error) { return w.WriteTTL(ctx, key, value, ttl) })
}

func (b *BreakerEngine) WriteManyTTL(ctx context.Context, values map[string]any, ttl time.Duration) (bool, error) {
	w, ok := b.inner.(TTLWriter)
	if !ok {
		return false, errors.New("engine: inner engine cannot write with explicit ttl")
	}
	return guarded(b, ctx, func() (bool, error) { return w.WriteManyTTL(ctx, values, ttl) })
}

func (b *BreakerEngine) GetConfig(name string) any        { return b.inner.GetConfig(name) }
func (b *BreakerEngine) SetConfig(name string, value any) { b.inner.SetConfig(name, value) }

// Ping bypasses the breaker so health checks always reach the backend.
func (b *BreakerEngine) Ping(ctx context.Context) error { return b.inner.Ping(ctx) }

func (b *BreakerEngine) Close() error { return b.inner.Close() }
