package engine

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryEngine keeps entries in process. It is the default engine when no
// external store is configured. Values are stored as-is, without copying.
type MemoryEngine struct {
	*Base
	items  *ttlcache.Cache[string, any]
	closed atomic.Bool
}

// NewMemoryEngine creates an in-memory engine and starts its expiry loop.
func NewMemoryEngine(s Settings) *MemoryEngine {
	items := ttlcache.New[string, any](
		ttlcache.WithDisableTouchOnHit[string, any](),
	)
	go items.Start()
	return &MemoryEngine{Base: newBase(s), items: items}
}

func (e *MemoryEngine) Read(_ context.Context, key string) (any, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	item := e.items.Get(e.key(key))
	if item == nil || item.IsExpired() {
		return Miss, nil
	}
	return item.Value(), nil
}

func (e *MemoryEngine) Write(ctx context.Context, key string, value any) (bool, error) {
	return e.WriteTTL(ctx, key, value, e.Duration())
}

func (e *MemoryEngine) WriteTTL(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if e.closed.Load() {
		return false, ErrClosed
	}
	e.items.Set(e.key(key), value, memoryTTL(ttl))
	return true, nil
}

func (e *MemoryEngine) Delete(_ context.Context, key string) (bool, error) {
	if e.closed.Load() {
		return false, ErrClosed
	}
	e.items.Delete(e.key(key))
	return true, nil
}

func (e *MemoryEngine) Clear(ctx context.Context, scoped bool) (bool, error) {
	if e.closed.Load() {
		return false, ErrClosed
	}
	if !scoped {
		e.items.DeleteAll()
		return true, nil
	}
	return e.ClearPrefix(ctx, "")
}

func (e *MemoryEngine) ClearPrefix(_ context.Context, prefix string) (bool, error) {
	if e.closed.Load() {
		return false, ErrClosed
	}
	prefix = e.key(prefix)
	for _, k := range e.items.Keys() {
		if strings.HasPrefix(k, prefix) {
			e.items.Delete(k)
		}
	}
	return true, nil
}

func (e *MemoryEngine) ReadMany(ctx context.Context, keys []string) (map[string]any, error) {
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

func (e *MemoryEngine) WriteMany(ctx context.Context, values map[string]any) (bool, error) {
	return e.WriteManyTTL(ctx, values, e.Duration())
}

func (e *MemoryEngine) WriteManyTTL(ctx context.Context, values map[string]any, ttl time.Duration) (bool, error) {
	for k, v := range values {
		if ok, err := e.WriteTTL(ctx, k, v, ttl); !ok || err != nil {
			return false, err
		}
	}
	return true, nil
}

func (e *MemoryEngine) DeleteMany(ctx context.Context, keys []string) (bool, error) {
	for _, k := range keys {
		if ok, err := e.Delete(ctx, k); !ok || err != nil {
			return false, err
		}
	}
	return true, nil
}

// Len returns the number of stored entries, expired ones included until the
// expiry loop collects them.
func (e *MemoryEngine) Len() int { return e.items.Len() }

func (e *MemoryEngine) Ping(_ context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (e *MemoryEngine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.items.Stop()
	e.items.DeleteAll()
	return nil
}

func memoryTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttlcache.NoTTL
	}
	return ttl
}
