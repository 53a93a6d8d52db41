package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attributes set by cachebridge.
var (
	AttrCache     = attribute.Key("cachebridge.cache")
	AttrOperation = attribute.Key("cachebridge.op")
	AttrHit       = attribute.Key("cachebridge.hit")
	AttrHits      = attribute.Key("cachebridge.hits")
	AttrMisses    = attribute.Key("cachebridge.misses")
	AttrTTL       = attribute.Key("cachebridge.ttl_seconds")
	AttrKeys      = attribute.Key("cachebridge.keys")
)

func start(ctx context.Context, kind trace.SpanKind, name string, attrs []attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

// StartSpan starts an internal span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return start(ctx, trace.SpanKindInternal, name, attrs)
}

// StartConsumerSpan starts a span for a message received from a peer, such
// as an invalidation signal.
func StartConsumerSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return start(ctx, trace.SpanKindConsumer, name, attrs)
}

// SetSpanError records err on span and marks it failed.
func SetSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func SetSpanOK(span trace.Span) { span.SetStatus(codes.Ok, "") }
