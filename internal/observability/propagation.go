package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TraceContext carries the W3C trace headers inside messages exchanged
// between instances, such as invalidation signals. It is its own
// TextMapCarrier.
type TraceContext struct {
	TraceParent string `json:"traceparent,omitempty"`
	TraceState  string `json:"tracestate,omitempty"`
}

var _ propagation.TextMapCarrier = (*TraceContext)(nil)

func (tc *TraceContext) Get(key string) string {
	switch key {
	case "traceparent":
		return tc.TraceParent
	case "tracestate":
		return tc.TraceState
	}
	return ""
}

func (tc *TraceContext) Set(key, value string) {
	switch key {
	case "traceparent":
		tc.TraceParent = value
	case "tracestate":
		tc.TraceState = value
	}
}

func (tc *TraceContext) Keys() []string { return []string{"traceparent", "tracestate"} }

// Carry captures the span of ctx for sending to another instance. The
// result is empty when tracing is off.
func Carry(ctx context.Context) TraceContext {
	var tc TraceContext
	if Enabled() {
		otel.GetTextMapPropagator().Inject(ctx, &tc)
	}
	return tc
}

// Resume returns ctx with the remote span described by tc as its parent.
func Resume(ctx context.Context, tc TraceContext) context.Context {
	if tc.TraceParent == "" {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, &tc)
}

// SpanIDs returns the hex trace and span IDs of the span in ctx, or empty
// strings when there is none.
func SpanIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	if sc.HasSpanID() {
		spanID = sc.SpanID().String()
	}
	return traceID, spanID
}
