// Package engine defines the cache engines a bridge can be put in front of.
//
// An engine stores and retrieves entries, enforces expiration and owns its
// serialization. Its expiration is driven by a single shared "duration"
// setting rather than a per-call TTL: every write reads the current value
// of that setting. Engines report a lookup miss with the Miss sentinel
// instead of an error.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Setting names understood by every engine.
const (
	SettingDuration = "duration"
	SettingPrefix   = "prefix"
)

const (
	DefaultDuration = 3600
	DefaultPrefix   = "cb_"
)

var (
	// ErrClosed is returned by engines that have been closed.
	ErrClosed = errors.New("engine: closed")
	// ErrUnknownConfig is returned when a configuration name is not registered.
	ErrUnknownConfig = errors.New("engine: unknown cache configuration")
	// ErrDuplicateConfig is returned when a configuration name is registered twice.
	ErrDuplicateConfig = errors.New("engine: cache configuration already exists")
)

type missType struct{}

func (missType) String() string { return "engine.Miss" }

// Miss is returned by Read and ReadMany for keys that have no live entry.
var Miss = missType{}

// IsMiss reports whether v is the Miss sentinel.
func IsMiss(v any) bool {
	_, ok := v.(missType)
	return ok
}

// Engine is a cache engine with a global expiration setting.
// Implementations must be safe for concurrent use.
type Engine interface {
	// Read returns the stored value or Miss.
	Read(ctx context.Context, key string) (any, error)

	// Write stores value using the engine's current duration setting.
	Write(ctx context.Context, key string, value any) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) (bool, error)

	// Clear removes entries. When scoped is true only keys belonging to
	// this engine's configuration (its prefix) are removed, otherwise the
	// whole backing store is flushed.
	Clear(ctx context.Context, scoped bool) (bool, error)

	// ReadMany returns one entry per key, Miss for absent keys.
	ReadMany(ctx context.Context, keys []string) (map[string]any, error)

	// WriteMany stores every value using the current duration setting.
	WriteMany(ctx context.Context, values map[string]any) (bool, error)

	// DeleteMany removes every key.
	DeleteMany(ctx context.Context, keys []string) (bool, error)

	// GetConfig returns the named setting or nil when it is unknown.
	GetConfig(name string) any

	// SetConfig overwrites the named setting.
	SetConfig(name string, value any)

	// Ping verifies connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close releases all resources held by the engine.
	Close() error
}

// TTLWriter is implemented by engines that can also write with an explicit
// expiration, bypassing the duration setting. Composite engines use it to
// drive their children without mutating the children's settings.
type TTLWriter interface {
	WriteTTL(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	WriteManyTTL(ctx context.Context, values map[string]any, ttl time.Duration) (bool, error)
}

// PrefixClearer is implemented by engines that can remove the subset of
// their own keys starting with prefix. Clear(ctx, true) is
// ClearPrefix(ctx, ""). Composite engines use it to clear only their share
// of a layer.
type PrefixClearer interface {
	ClearPrefix(ctx context.Context, prefix string) (bool, error)
}

// clearScope removes the keys of e starting with prefix.
func clearScope(ctx context.Context, e Engine, prefix string) (bool, error) {
	if prefix == "" {
		return e.Clear(ctx, true)
	}
	pc, ok := e.(PrefixClearer)
	if !ok {
		return false, fmt.Errorf("engine: %T cannot clear by prefix", e)
	}
	return pc.ClearPrefix(ctx, prefix)
}

// Wrapper is implemented by decorators that delegate their settings to an
// inner engine.
type Wrapper interface {
	Unwrap() Engine
}

// Settings seeds an engine's configuration.
type Settings struct {
	Duration int    // default expiration in seconds, <= 0 means no expiration
	Prefix   string // key namespace used for storage and scoped clears
}

func (s Settings) withDefaults() Settings {
	if s.Prefix == "" {
		s.Prefix = DefaultPrefix
	}
	return s
}

// Base holds the mutable settings shared by every engine implementation.
type Base struct {
	mu       sync.RWMutex
	settings map[string]any
}

func newBase(s Settings) *Base {
	s = s.withDefaults()
	return &Base{settings: map[string]any{
		SettingDuration: s.Duration,
		SettingPrefix:   s.Prefix,
	}}
}

// GetConfig returns the named setting or nil.
func (b *Base) GetConfig(name string) any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings[name]
}

// SetConfig overwrites the named setting. The duration setting is
// normalized to whole seconds.
func (b *Base) SetConfig(name string, value any) {
	if name == SettingDuration {
		value = Seconds(value)
	}
	b.mu.Lock()
	b.settings[name] = value
	b.mu.Unlock()
}

// Duration returns the current duration setting as a time.Duration.
func (b *Base) Duration() time.Duration {
	return time.Duration(Seconds(b.GetConfig(SettingDuration))) * time.Second
}

// Prefix returns the key namespace.
func (b *Base) Prefix() string {
	p, _ := b.GetConfig(SettingPrefix).(string)
	return p
}

func (b *Base) key(k string) string {
	return b.Prefix() + k
}

// Seconds converts a duration setting value to whole seconds.
// Unsupported types yield 0.
func Seconds(v any) int {
	switch d := v.(type) {
	case int:
		return d
	case int8:
		return int(d)
	case int16:
		return int(d)
	case int32:
		return int(d)
	case int64:
		return int(d)
	case uint:
		return int(d)
	case uint8:
		return int(d)
	case uint16:
		return int(d)
	case uint32:
		return int(d)
	case uint64:
		return int(d)
	case float32:
		return int(d)
	case float64:
		return int(d)
	case time.Duration:
		return int(d / time.Second)
	default:
		return 0
	}
}

var guards sync.Map // Engine -> *sync.RWMutex

// Guard returns the lock that serializes duration overrides on e.
// Decorators are unwrapped so that every handle over the same settings
// shares one lock. Engines must be comparable (pointer types).
func Guard(e Engine) *sync.RWMutex {
	mu, _ := guards.LoadOrStore(root(e), &sync.RWMutex{})
	return mu.(*sync.RWMutex)
}

func forgetGuard(e Engine) {
	guards.Delete(root(e))
}

func root(e Engine) Engine {
	for {
		w, ok := e.(Wrapper)
		if !ok {
			return e
		}
		e = w.Unwrap()
	}
}

func expiresAt(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
