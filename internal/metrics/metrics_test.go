package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/oriys/cachebridge/internal/bridge"
	"github.com/oriys/cachebridge/internal/circuitbreaker"
)

func TestResult(t *testing.T) {
	wrapped := fmt.Errorf("read: %w", circuitbreaker.ErrOpen)
	cases := map[error]string{
		nil:                    ResultOK,
		bridge.ErrInvalidKey:   ResultInvalid,
		circuitbreaker.ErrOpen: ResultRejected,
		wrapped:                ResultRejected,
		errors.New("dial tcp"): ResultError,
	}
	for err, want := range cases {
		if got := Result(err); got != want {
			t.Fatalf("Result(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestStats_Snapshot(t *testing.T) {
	s := &Stats{startTime: time.Now()}
	o := NewObserver(s)
	ctx := context.Background()

	_, done := o.Start(ctx, "b", bridge.OpGet)
	o.Lookup(ctx, "b", 1, 0)
	done(nil)

	_, done = o.Start(ctx, "a", bridge.OpGetMultiple)
	o.Lookup(ctx, "a", 1, 3)
	done(nil)

	_, done = o.Start(ctx, "a", bridge.OpSet)
	o.Override(ctx, "a", 10)
	done(errors.New("boom"))

	_, done = o.Start(ctx, "a", bridge.OpGet)
	done(bridge.ErrInvalidKey)

	snap := s.Snapshot()
	if snap.Operations != 4 || snap.Failures != 1 {
		t.Fatalf("unexpected totals %+v", snap)
	}
	if snap.Hits != 2 || snap.Misses != 3 || snap.Overrides != 1 {
		t.Fatalf("unexpected lookup totals %+v", snap)
	}
	if snap.HitRatio != 0.4 {
		t.Fatalf("expected hit ratio 0.4, got %v", snap.HitRatio)
	}
	if len(snap.Caches) != 2 || snap.Caches[0].Name != "a" || snap.Caches[1].Name != "b" {
		t.Fatalf("expected caches sorted by name, got %+v", snap.Caches)
	}
	a := snap.Caches[0]
	if a.Operations != 3 || a.Failures != 1 || a.Invalid != 1 || a.Overrides != 1 {
		t.Fatalf("unexpected cache a stats %+v", a)
	}
	if a.HitRatio != 0.25 {
		t.Fatalf("expected a hit ratio 0.25, got %v", a.HitRatio)
	}
}

func TestPrometheus(t *testing.T) {
	InitPrometheus("cbtest", nil)
	defer func() { promMetrics = nil }()

	s := &Stats{startTime: time.Now()}
	o := NewObserver(s)
	ctx := context.Background()

	_, done := o.Start(ctx, "default", bridge.OpGet)
	o.Lookup(ctx, "default", 2, 1)
	done(nil)
	_, done = o.Start(ctx, "default", bridge.OpSet)
	o.Override(ctx, "default", 5)
	done(nil)
	_, done = o.Start(ctx, "default", bridge.OpDelete)
	done(bridge.ErrInvalidKey)
	RecordBreakerTransition("default", circuitbreaker.StateClosed, circuitbreaker.StateOpen)

	if got := testutil.ToFloat64(promMetrics.operationsTotal.WithLabelValues("default", bridge.OpGet, ResultOK)); got != 1 {
		t.Fatalf("expected 1 get, got %v", got)
	}
	if got := testutil.ToFloat64(promMetrics.lookupsTotal.WithLabelValues("default", "hit")); got != 2 {
		t.Fatalf("expected 2 hits, got %v", got)
	}
	if got := testutil.ToFloat64(promMetrics.lookupsTotal.WithLabelValues("default", "miss")); got != 1 {
		t.Fatalf("expected 1 miss, got %v", got)
	}
	if got := testutil.ToFloat64(promMetrics.ttlOverridesTotal.WithLabelValues("default")); got != 1 {
		t.Fatalf("expected 1 override, got %v", got)
	}
	if got := testutil.ToFloat64(promMetrics.invalidArgumentsTotal.WithLabelValues("default", bridge.OpDelete)); got != 1 {
		t.Fatalf("expected 1 invalid argument, got %v", got)
	}
	if got := testutil.ToFloat64(promMetrics.breakerState.WithLabelValues("default")); got != float64(circuitbreaker.StateOpen) {
		t.Fatalf("expected open breaker gauge, got %v", got)
	}

	rec := httptest.NewRecorder()
	PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "cbtest_operations_total") {
		t.Fatalf("expected operations counter in exposition")
	}
}

func TestPrometheusHandler_Uninitialized(t *testing.T) {
	promMetrics = nil
	rec := httptest.NewRecorder()
	PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	// recording without collectors must not panic
	RecordPrometheusOperation("x", "get", ResultOK, time.Millisecond)
	SetBreakerState("x", circuitbreaker.StateClosed)
}
