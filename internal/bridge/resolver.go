package bridge

import (
	"sync"

	"github.com/oriys/cachebridge/internal/engine"
)

// Resolver hands out one Bridge per cache configuration, created on first
// use. Every Bridge captures its engine's duration once, so sharing them
// keeps the restored value stable across callers.
type Resolver struct {
	reg  *engine.Registry
	opts []Option

	mu      sync.RWMutex
	bridges map[string]*Bridge
}

// NewResolver creates bridges over reg with opts.
func NewResolver(reg *engine.Registry, opts ...Option) *Resolver {
	return &Resolver{reg: reg, opts: opts, bridges: make(map[string]*Bridge)}
}

// Get returns the bridge for name, creating it if needed.
func (r *Resolver) Get(name string) (*Bridge, error) {
	r.mu.RLock()
	b, ok := r.bridges[name]
	r.mu.RUnlock()
	if ok {
		return b, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.bridges[name]; ok {
		return b, nil
	}
	b, err := New(r.reg, name, r.opts...)
	if err != nil {
		return nil, err
	}
	r.bridges[name] = b
	return b, nil
}

// Registry returns the engine registry bridges are resolved from.
func (r *Resolver) Registry() *engine.Registry { return r.reg }

// Names lists the configured cache names.
func (r *Resolver) Names() []string { return r.reg.Configured() }
