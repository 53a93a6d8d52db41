// Package bridge exposes a cache engine under the simple-cache contract:
// get/set/delete with an optional per-call TTL, bulk variants, clear and
// has.
//
// Engines only know a global expiration setting, so a per-call TTL is
// emulated by overriding the engine's duration setting for the length of
// the write and restoring the value captured when the Bridge was created.
// Overrides are serialized per engine: a TTL write holds the engine's guard
// exclusively while writes using the default duration share it, so neither
// can observe the other's setting. Reads, deletes and clear do not depend on
// the duration and run unguarded.
//
// Keys are accepted as any so that non-string keys can be rejected with
// ErrInvalidKey instead of being silently converted. Validation always
// happens before the engine is touched; engine errors are returned as-is.
package bridge

import (
	"context"
	"sync"

	"github.com/oriys/cachebridge/internal/engine"
	"github.com/oriys/cachebridge/internal/logging"
)

// SimpleCache is the standardized cache contract implemented by Bridge.
type SimpleCache interface {
	// Get returns the cached value for key, or def on a miss.
	Get(ctx context.Context, key any, def any) (any, error)
	// Set stores value under key. ttl is nil (engine default), an integer
	// number of seconds or a time.Duration. Durations are truncated to whole
	// seconds, but a positive one under a second is rounded up to 1.
	Set(ctx context.Context, key any, value any, ttl any) (bool, error)
	Delete(ctx context.Context, key any) (bool, error)
	// Clear removes the keys of this cache configuration only.
	Clear(ctx context.Context) (bool, error)
	// GetMultiple returns one entry per requested key, def for misses.
	GetMultiple(ctx context.Context, keys any, def any) (map[string]any, error)
	SetMultiple(ctx context.Context, values any, ttl any) (bool, error)
	DeleteMultiple(ctx context.Context, keys any) (bool, error)
	// Has reports whether Get(key, false) yields a truthy value, so a
	// stored falsy value reads as absent.
	Has(ctx context.Context, key any) (bool, error)
}

// Operation names reported to observers.
const (
	OpGet            = "get"
	OpSet            = "set"
	OpDelete         = "delete"
	OpClear          = "clear"
	OpGetMultiple    = "get_multiple"
	OpSetMultiple    = "set_multiple"
	OpDeleteMultiple = "delete_multiple"
	OpHas            = "has"
)

// Bridge adapts one engine to SimpleCache.
type Bridge struct {
	name             string
	engine           engine.Engine
	originalDuration int
	guard            *sync.RWMutex
	observer         Observer
}

var _ SimpleCache = (*Bridge)(nil)

// Option configures a Bridge.
type Option func(*Bridge)

// WithObserver reports every operation to o.
func WithObserver(o Observer) Option {
	return func(b *Bridge) {
		if o != nil {
			b.observer = o
		}
	}
}

// New resolves the engine registered under name and captures its current
// duration setting.
func New(reg *engine.Registry, name string, opts ...Option) (*Bridge, error) {
	e, err := reg.Engine(name)
	if err != nil {
		return nil, err
	}
	return NewWithEngine(name, e, opts...), nil
}

// NewWithEngine wraps an already resolved engine.
func NewWithEngine(name string, e engine.Engine, opts ...Option) *Bridge {
	guard := engine.Guard(e)
	// an override in flight on a shared engine must not be captured
	guard.RLock()
	original := engine.Seconds(e.GetConfig(engine.SettingDuration))
	guard.RUnlock()

	b := &Bridge{
		name:             name,
		engine:           e,
		originalDuration: original,
		guard:            guard,
		observer:         nopObserver{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the cache configuration name.
func (b *Bridge) Name() string { return b.name }

// Engine returns the wrapped engine.
func (b *Bridge) Engine() engine.Engine { return b.engine }

// OriginalDuration returns the duration setting captured at construction.
func (b *Bridge) OriginalDuration() int { return b.originalDuration }

func (b *Bridge) Get(ctx context.Context, key any, def any) (v any, err error) {
	ctx, done := b.observer.Start(ctx, b.name, OpGet)
	defer func() { done(err) }()
	return b.get(ctx, key, def)
}

func (b *Bridge) get(ctx context.Context, key any, def any) (any, error) {
	k, err := validKey(key)
	if err != nil {
		return nil, err
	}
	v, err := b.engine.Read(ctx, k)
	if err != nil {
		return nil, err
	}
	if engine.IsMiss(v) {
		b.observer.Lookup(ctx, b.name, 0, 1)
		return def, nil
	}
	b.observer.Lookup(ctx, b.name, 1, 0)
	return v, nil
}

func (b *Bridge) Set(ctx context.Context, key any, value any, ttl any) (ok bool, err error) {
	ctx, done := b.observer.Start(ctx, b.name, OpSet)
	defer func() { done(err) }()

	k, err := validKey(key)
	if err != nil {
		return false, err
	}
	if ttl == nil {
		b.guard.RLock()
		defer b.guard.RUnlock()
		return b.engine.Write(ctx, k, value)
	}

	secs, err := ttlSeconds(ttl)
	if err != nil {
		return false, err
	}
	b.guard.Lock()
	defer b.guard.Unlock()
	defer b.override(ctx, secs)()
	return b.engine.Write(ctx, k, value)
}

func (b *Bridge) Delete(ctx context.Context, key any) (ok bool, err error) {
	ctx, done := b.observer.Start(ctx, b.name, OpDelete)
	defer func() { done(err) }()

	k, err := validKey(key)
	if err != nil {
		return false, err
	}
	return b.engine.Delete(ctx, k)
}

func (b *Bridge) Clear(ctx context.Context) (ok bool, err error) {
	ctx, done := b.observer.Start(ctx, b.name, OpClear)
	defer func() { done(err) }()
	return b.engine.Clear(ctx, true)
}

func (b *Bridge) GetMultiple(ctx context.Context, keys any, def any) (out map[string]any, err error) {
	ctx, done := b.observer.Start(ctx, b.name, OpGetMultiple)
	defer func() { done(err) }()

	ks, err := keyList(keys)
	if err != nil {
		return nil, err
	}
	values, err := b.engine.ReadMany(ctx, ks)
	if err != nil {
		return nil, err
	}

	out = make(map[string]any, len(ks))
	hits, misses := 0, 0
	for _, k := range ks {
		v, found := values[k]
		if !found || engine.IsMiss(v) {
			out[k] = def
			misses++
			continue
		}
		out[k] = v
		hits++
	}
	b.observer.Lookup(ctx, b.name, hits, misses)
	return out, nil
}

func (b *Bridge) SetMultiple(ctx context.Context, values any, ttl any) (ok bool, err error) {
	ctx, done := b.observer.Start(ctx, b.name, OpSetMultiple)
	defer func() { done(err) }()

	vs, err := valueMap(values)
	if err != nil {
		return false, err
	}
	if ttl == nil {
		b.guard.RLock()
		defer b.guard.RUnlock()
		return b.engine.WriteMany(ctx, vs)
	}

	secs, err := ttlSeconds(ttl)
	if err != nil {
		return false, err
	}
	b.guard.Lock()
	defer b.guard.Unlock()
	defer b.override(ctx, secs)()
	return b.engine.WriteMany(ctx, vs)
}

func (b *Bridge) DeleteMultiple(ctx context.Context, keys any) (ok bool, err error) {
	ctx, done := b.observer.Start(ctx, b.name, OpDeleteMultiple)
	defer func() { done(err) }()

	ks, err := keyList(keys)
	if err != nil {
		return false, err
	}
	return b.engine.DeleteMany(ctx, ks)
}

func (b *Bridge) Has(ctx context.Context, key any) (ok bool, err error) {
	ctx, done := b.observer.Start(ctx, b.name, OpHas)
	defer func() { done(err) }()

	v, err := b.get(ctx, key, false)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// override sets the engine duration to secs and returns the func that
// restores the captured original. Must be called with the guard held
// exclusively.
func (b *Bridge) override(ctx context.Context, secs int) func() {
	b.engine.SetConfig(engine.SettingDuration, secs)
	b.observer.Override(ctx, b.name, secs)
	logging.Op().Debug("engine duration overridden", "cache", b.name, "duration", secs, "original", b.originalDuration)
	return func() {
		b.engine.SetConfig(engine.SettingDuration, b.originalDuration)
	}
}
