package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry resolves engines by configuration name. An engine is registered
// once and the same handle is returned to every caller.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// SetConfig registers e under name.
func (r *Registry) SetConfig(name string, e Engine) error {
	if name == "" {
		return fmt.Errorf("engine: configuration name is required")
	}
	if e == nil {
		return fmt.Errorf("engine: nil engine for %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.engines[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateConfig, name)
	}
	r.engines[name] = e
	r.order = append(r.order, name)
	return nil
}

// Engine returns the engine registered under name.
func (r *Registry) Engine(name string) (Engine, error) {
	r.mu.RLock()
	e, ok := r.engines[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConfig, name)
	}
	return e, nil
}

// Configured returns the registered names in lexical order.
func (r *Registry) Configured() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Close closes every engine in reverse registration order, so composite
// engines are closed before the engines they wrap.
func (r *Registry) Close() error {
	r.mu.Lock()
	order := r.order
	engines := r.engines
	r.order = nil
	r.engines = make(map[string]Engine)
	r.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		e := engines[order[i]]
		forgetGuard(e)
		if err := e.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", order[i], err))
		}
	}
	return errors.Join(errs...)
}
