package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// BridgeObserver wraps every bridge operation in an internal span. It
// satisfies bridge.Observer.
type BridgeObserver struct{}

func (BridgeObserver) Start(ctx context.Context, cache, op string) (context.Context, func(error)) {
	if !Enabled() {
		return ctx, func(error) {}
	}
	ctx, span := StartSpan(ctx, "cache."+op, AttrCache.String(cache), AttrOperation.String(op))
	return ctx, func(err error) {
		if err != nil {
			SetSpanError(span, err)
		} else {
			SetSpanOK(span)
		}
		span.End()
	}
}

func (BridgeObserver) Lookup(ctx context.Context, _ string, hits, misses int) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	if hits+misses == 1 {
		span.SetAttributes(AttrHit.Bool(hits == 1))
		return
	}
	span.SetAttributes(AttrHits.Int(hits), AttrMisses.Int(misses))
}

func (BridgeObserver) Override(ctx context.Context, _ string, seconds int) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(AttrTTL.Int(seconds))
	}
}
