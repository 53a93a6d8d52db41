package engine

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/maypok86/otter"
)

// DefaultCapacity bounds an LRUEngine when no capacity is configured.
const DefaultCapacity = 10000

// lruForever stands in for "no expiration": otter requires a positive TTL
// when variable expiration is enabled.
const lruForever = 10 * 365 * 24 * time.Hour

// LRUEngine is a bounded in-process engine. When full, entries are evicted
// by otter's admission policy before their expiration.
type LRUEngine struct {
	*Base
	items  otter.CacheWithVariableTTL[string, any]
	closed atomic.Bool
}

// NewLRUEngine creates a bounded engine holding at most capacity entries.
func NewLRUEngine(s Settings, capacity int) (*LRUEngine, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	items, err := otter.MustBuilder[string, any](capacity).
		WithVariableTTL().
		Build()
	if err != nil {
		return nil, fmt.Errorf("build lru cache: %w", err)
	}
	return &LRUEngine{Base: newBase(s), items: items}, nil
}

func (e *LRUEngine) Read(_ context.Context, key string) (any, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	v, ok := e.items.Get(e.key(key))
	if !ok {
		return Miss, nil
	}
	return v, nil
}

func (e *LRUEngine) Write(ctx context.Context, key string, value any) (bool, error) {
	return e.WriteTTL(ctx, key, value, e.Duration())
}

// WriteTTL reports false when the admission policy rejected the entry.
func (e *LRUEngine) WriteTTL(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if e.closed.Load() {
		return false, ErrClosed
	}
	if ttl <= 0 {
		ttl = lruForever
	}
	return e.items.Set(e.key(key), value, ttl), nil
}

func (e *LRUEngine) Delete(_ context.Context, key string) (bool, error) {
	if e.closed.Load() {
		return false, ErrClosed
	}
	e.items.Delete(e.key(key))
	return true, nil
}

func (e *LRUEngine) Clear(ctx context.Context, scoped bool) (bool, error) {
	if e.closed.Load() {
		return false, ErrClosed
	}
	if !scoped {
		e.items.Clear()
		return true, nil
	}
	return e.ClearPrefix(ctx, "")
}

func (e *LRUEngine) ClearPrefix(_ context.Context, prefix string) (bool, error) {
	if e.closed.Load() {
		return false, ErrClosed
	}
	prefix = e.key(prefix)
	var doomed []string
	e.items.Range(func(k string, _ any) bool {
		if strings.HasPrefix(k, prefix) {
			doomed = append(doomed, k)
		}
		return true
	})
	for _, k := range doomed {
		e.items.Delete(k)
	}
	return true, nil
}

func (e *LRUEngine) ReadMany(ctx context.Context, keys []string) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		v, err := e.Read(ctx, k)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (e *LRUEngine) WriteMany(ctx context.Context, values map[string]any) (bool, error) {
	return e.WriteManyTTL(ctx, values, e.Duration())
}

func (e *LRUEngine) WriteManyTTL(ctx context.Context, values map[string]any, ttl time.Duration) (bool, error) {
	success := true
	for k, v := range values {
		ok, err := e.WriteTTL(ctx, k, v, ttl)
		if err != nil {
			return false, err
		}
		success = success && ok
	}
	return success, nil
}

func (e *LRUEngine) DeleteMany(ctx context.Context, keys []string) (bool, error) {
	for _, k := range keys {
		if _, err := e.Delete(ctx, k); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (e *LRUEngine) Ping(_ context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (e *LRUEngine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.items.Close()
	return nil
}
