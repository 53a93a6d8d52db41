package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// TieredEngine composes a fast L1 engine (typically in-memory) with a
// shared L2 engine (typically Redis). Reads check L1 first, falling through
// to L2 on miss and populating L1 on L2 hit. Writes go to both layers: L2
// with the tiered engine's own duration setting, L1 with at most l1TTL.
// Concurrent L2 lookups for the same key are collapsed into one.
//
// The layers are usually configurations of their own, so the tiered engine
// stores under its prefix inside each layer's namespace and a scoped clear
// only removes that share. The layers must implement TTLWriter and
// PrefixClearer so their own settings are never touched.
type TieredEngine struct {
	*Base
	l1, l2 Engine
	w1, w2 TTLWriter
	c1, c2 PrefixClearer
	l1TTL  time.Duration
	group  singleflight.Group
	inv    *Invalidator
}

// NewTieredEngine creates a two-level engine.
// l1TTL controls how long items live in L1 (default: 10s).
func NewTieredEngine(s Settings, l1, l2 Engine, l1TTL time.Duration) (*TieredEngine, error) {
	w1, ok := l1.(TTLWriter)
	if !ok {
		return nil, fmt.Errorf("tiered: l1 engine %T cannot write with explicit ttl", l1)
	}
	w2, ok := l2.(TTLWriter)
	if !ok {
		return nil, fmt.Errorf("tiered: l2 engine %T cannot write with explicit ttl", l2)
	}
	c1, ok := l1.(PrefixClearer)
	if !ok {
		return nil, fmt.Errorf("tiered: l1 engine %T cannot clear by prefix", l1)
	}
	c2, ok := l2.(PrefixClearer)
	if !ok {
		return nil, fmt.Errorf("tiered: l2 engine %T cannot clear by prefix", l2)
	}
	if l1TTL <= 0 {
		l1TTL = 10 * time.Second
	}
	return &TieredEngine{
		Base:  newBase(s),
		l1:    l1,
		l2:    l2,
		w1:    w1,
		w2:    w2,
		c1:    c1,
		c2:    c2,
		l1TTL: l1TTL,
	}, nil
}

// UseInvalidator makes every mutation publish the affected keys so that
// other instances evict them from their L1.
func (t *TieredEngine) UseInvalidator(inv *Invalidator) {
	t.inv = inv
}

func (t *TieredEngine) localTTL(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < t.l1TTL {
		return ttl
	}
	return t.l1TTL
}

func (t *TieredEngine) keys(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = t.key(k)
	}
	return out
}

func (t *TieredEngine) values(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[t.key(k)] = v
	}
	return out
}

func (t *TieredEngine) Read(ctx context.Context, key string) (any, error) {
	k := t.key(key)
	v, err := t.l1.Read(ctx, k)
	if err == nil && !IsMiss(v) {
		return v, nil
	}

	// L1 miss or failure, try L2
	v, err, _ = t.group.Do(k, func() (any, error) {
		v, err := t.l2.Read(ctx, k)
		if err != nil || IsMiss(v) {
			return v, err
		}
		_, _ = t.w1.WriteTTL(ctx, k, v, t.l1TTL)
		return v, nil
	})
	return v, err
}

func (t *TieredEngine) Write(ctx context.Context, key string, value any) (bool, error) {
	return t.WriteTTL(ctx, key, value, t.Duration())
}

func (t *TieredEngine) WriteTTL(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	k := t.key(key)
	_, _ = t.w1.WriteTTL(ctx, k, value, t.localTTL(ttl))
	ok, err := t.w2.WriteTTL(ctx, k, value, ttl)
	t.publish(ctx, k)
	return ok, err
}

func (t *TieredEngine) Delete(ctx context.Context, key string) (bool, error) {
	k := t.key(key)
	_, _ = t.l1.Delete(ctx, k)
	ok, err := t.l2.Delete(ctx, k)
	t.publish(ctx, k)
	return ok, err
}

// Clear removes this engine's share of both layers, or flushes both layers
// entirely when scoped is false.
func (t *TieredEngine) Clear(ctx context.Context, scoped bool) (bool, error) {
	if scoped {
		return t.ClearPrefix(ctx, "")
	}
	_, _ = t.l1.Clear(ctx, false)
	ok, err := t.l2.Clear(ctx, false)
	if t.inv != nil {
		t.inv.PublishClear(ctx)
	}
	return ok, err
}

func (t *TieredEngine) ClearPrefix(ctx context.Context, prefix string) (bool, error) {
	p := t.key(prefix)
	_, _ = t.c1.ClearPrefix(ctx, p)
	ok, err := t.c2.ClearPrefix(ctx, p)
	if t.inv != nil {
		t.inv.PublishClear(ctx)
	}
	return ok, err
}

func (t *TieredEngine) ReadMany(ctx context.Context, keys []string) (map[string]any, error) {
	stored := t.keys(keys)
	found, err := t.l1.ReadMany(ctx, stored)
	if err != nil {
		found = make(map[string]any, len(keys))
	}

	out := make(map[string]any, len(keys))
	var missing []string
	for i, k := range keys {
		v, ok := found[stored[i]]
		if !ok || IsMiss(v) {
			missing = append(missing, stored[i])
			continue
		}
		out[k] = v
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := t.l2.ReadMany(ctx, missing)
	if err != nil {
		return nil, err
	}
	hits := make(map[string]any, len(fetched))
	for _, sk := range missing {
		v, ok := fetched[sk]
		if !ok {
			v = Miss
		}
		out[strings.TrimPrefix(sk, t.Prefix())] = v
		if !IsMiss(v) {
			hits[sk] = v
		}
	}
	if len(hits) > 0 {
		_, _ = t.w1.WriteManyTTL(ctx, hits, t.l1TTL)
	}
	return out, nil
}

func (t *TieredEngine) WriteMany(ctx context.Context, values map[string]any) (bool, error) {
	return t.WriteManyTTL(ctx, values, t.Duration())
}

func (t *TieredEngine) WriteManyTTL(ctx context.Context, values map[string]any, ttl time.Duration) (bool, error) {
	stored := t.values(values)
	_, _ = t.w1.WriteManyTTL(ctx, stored, t.localTTL(ttl))
	ok, err := t.w2.WriteManyTTL(ctx, stored, ttl)
	keys := make([]string, 0, len(stored))
	for k := range stored {
		keys = append(keys, k)
	}
	t.publish(ctx, keys...)
	return ok, err
}

func (t *TieredEngine) DeleteMany(ctx context.Context, keys []string) (bool, error) {
	stored := t.keys(keys)
	_, _ = t.l1.DeleteMany(ctx, stored)
	ok, err := t.l2.DeleteMany(ctx, stored)
	t.publish(ctx, stored...)
	return ok, err
}

func (t *TieredEngine) Ping(ctx context.Context) error {
	if err := t.l1.Ping(ctx); err != nil {
		return err
	}
	return t.l2.Ping(ctx)
}

// Close stops the invalidator. The layers are owned by the registry and
// closed there.
func (t *TieredEngine) Close() error {
	if t.inv != nil {
		return t.inv.Close()
	}
	return nil
}

func (t *TieredEngine) publish(ctx context.Context, keys ...string) {
	if t.inv == nil || len(keys) == 0 {
		return
	}
	t.inv.Publish(ctx, keys...)
}
