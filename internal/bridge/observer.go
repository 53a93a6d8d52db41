package bridge

import "context"

// Observer is notified of bridge activity. Implementations must be safe for
// concurrent use.
type Observer interface {
	// Start is called before an operation runs. The returned func is called
	// with the operation's error once it completes.
	Start(ctx context.Context, cache, op string) (context.Context, func(err error))
	// Lookup reports the hits and misses of a read.
	Lookup(ctx context.Context, cache string, hits, misses int)
	// Override reports a per-call TTL applied through the duration setting.
	Override(ctx context.Context, cache string, seconds int)
}

type nopObserver struct{}

func (nopObserver) Start(ctx context.Context, _, _ string) (context.Context, func(error)) {
	return ctx, func(error) {}
}
func (nopObserver) Lookup(context.Context, string, int, int) {}
func (nopObserver) Override(context.Context, string, int)    {}

type multiObserver []Observer

// Observers fans out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	switch len(m) {
	case 0:
		return nopObserver{}
	case 1:
		return m[0]
	}
	return m
}

func (m multiObserver) Start(ctx context.Context, cache, op string) (context.Context, func(error)) {
	dones := make([]func(error), len(m))
	for i, o := range m {
		ctx, dones[i] = o.Start(ctx, cache, op)
	}
	return ctx, func(err error) {
		for i := len(dones) - 1; i >= 0; i-- {
			dones[i](err)
		}
	}
}

func (m multiObserver) Lookup(ctx context.Context, cache string, hits, misses int) {
	for _, o := range m {
		o.Lookup(ctx, cache, hits, misses)
	}
}

func (m multiObserver) Override(ctx context.Context, cache string, seconds int) {
	for _, o := range m {
		o.Override(ctx, cache, seconds)
	}
}
