package engine

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oriys/cachebridge/internal/logging"
	"github.com/oriys/cachebridge/internal/observability"
)

// InvalidationChannel is the Redis Pub/Sub channel prefix used for L1
// invalidation signals. The configuration name is appended so that tiered
// engines of different configurations do not evict each other's keys.
const InvalidationChannel = "cachebridge:invalidate:"

type invalidation struct {
	Origin string                     `json:"origin"`
	Keys   []string                   `json:"keys,omitempty"`
	Clear  bool                       `json:"clear,omitempty"`
	Trace  observability.TraceContext `json:"trace,omitzero"`
}

// Invalidator listens for invalidation signals over Redis Pub/Sub and evicts
// the corresponding keys from a local engine (the L1 of a tiered engine).
// A clear signal only removes the local keys under scope. Signals published
// by the same Invalidator are ignored.
type Invalidator struct {
	local   Engine
	scope   string
	client  *redis.Client
	channel string
	origin  string

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// NewInvalidator creates an invalidator for the named configuration whose
// keys are stored in local under scope.
func NewInvalidator(name string, local Engine, scope string, client *redis.Client) *Invalidator {
	return &Invalidator{
		local:   local,
		scope:   scope,
		client:  client,
		channel: InvalidationChannel + name,
		origin:  uuid.NewString(),
	}
}

// Start begins listening for invalidation signals. It blocks until the
// context is cancelled or Close is called.
func (ci *Invalidator) Start(ctx context.Context) {
	subCtx, cancel := context.WithCancel(ctx)
	ci.mu.Lock()
	if ci.closed {
		ci.mu.Unlock()
		cancel()
		return
	}
	ci.cancel = cancel
	ci.mu.Unlock()

	pubsub := ci.client.Subscribe(subCtx, ci.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			ci.apply(subCtx, msg.Payload)
		}
	}
}

func (ci *Invalidator) apply(ctx context.Context, payload string) {
	var sig invalidation
	if err := json.Unmarshal([]byte(payload), &sig); err != nil {
		logging.Op().Warn("malformed invalidation signal", "channel", ci.channel, "error", err)
		return
	}
	if sig.Origin == ci.origin {
		return
	}

	ctx, span := observability.StartConsumerSpan(observability.Resume(ctx, sig.Trace), "cache.invalidate",
		observability.AttrKeys.Int(len(sig.Keys)),
	)
	defer span.End()

	var err error
	if sig.Clear {
		_, err = clearScope(ctx, ci.local, ci.scope)
	} else if len(sig.Keys) > 0 {
		_, err = ci.local.DeleteMany(ctx, sig.Keys)
	}
	if err != nil {
		observability.SetSpanError(span, err)
		logging.Op().Warn("apply invalidation failed", "channel", ci.channel, "error", err)
	}
}

// Publish announces that keys changed.
func (ci *Invalidator) Publish(ctx context.Context, keys ...string) {
	ci.send(ctx, invalidation{Origin: ci.origin, Keys: keys})
}

// PublishClear announces that the whole configuration was cleared.
func (ci *Invalidator) PublishClear(ctx context.Context) {
	ci.send(ctx, invalidation{Origin: ci.origin, Clear: true})
}

func (ci *Invalidator) send(ctx context.Context, sig invalidation) {
	sig.Trace = observability.Carry(ctx)
	data, err := json.Marshal(sig)
	if err != nil {
		return
	}
	if err := ci.client.Publish(ctx, ci.channel, data).Err(); err != nil {
		logging.Op().Warn("publish invalidation failed", "channel", ci.channel, "error", err)
	}
}

// Close stops the invalidation listener.
func (ci *Invalidator) Close() error {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	if ci.closed {
		return nil
	}
	ci.closed = true
	if ci.cancel != nil {
		ci.cancel()
	}
	return nil
}
