package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oriys/cachebridge/internal/circuitbreaker"
)

type flakyEngine struct {
	*MemoryEngine
	err   error
	calls int
}

func (f *flakyEngine) Read(ctx context.Context, key string) (any, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.MemoryEngine.Read(ctx, key)
}

func TestBreakerEngine_TripsAndFailsFast(t *testing.T) {
	inner := &flakyEngine{MemoryEngine: NewMemoryEngine(Settings{}), err: errors.New("connection refused")}
	defer inner.Close()
	b := circuitbreaker.New(circuitbreaker.Config{
		ErrorPct:       50,
		MinRequests:    2,
		WindowDuration: time.Minute,
		OpenDuration:   time.Hour,
	})
	e := WithBreaker(inner, b)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := e.Read(ctx, "k"); err == nil || errors.Is(err, circuitbreaker.ErrOpen) {
			t.Fatalf("expected backend error on call %d, got %v", i, err)
		}
	}
	if b.State() != circuitbreaker.StateOpen {
		t.Fatalf("expected open breaker, got %v", b.State())
	}
	if _, err := e.Read(ctx, "k"); !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("open breaker must not reach the backend, calls=%d", inner.calls)
	}
	if err := e.Ping(ctx); err != nil {
		t.Fatalf("Ping should bypass the breaker: %v", err)
	}
}

func TestBreakerEngine_CancelledCallsDoNotCount(t *testing.T) {
	inner := &flakyEngine{MemoryEngine: NewMemoryEngine(Settings{}), err: context.Canceled}
	defer inner.Close()
	b := circuitbreaker.New(circuitbreaker.Config{ErrorPct: 1, WindowDuration: time.Minute, OpenDuration: time.Hour})
	e := WithBreaker(inner, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		_, _ = e.Read(ctx, "k")
	}
	if b.State() != circuitbreaker.StateClosed {
		t.Fatalf("cancelled calls should not trip the breaker, state=%v", b.State())
	}
}

func TestBreakerEngine_DelegatesSettingsAndTTL(t *testing.T) {
	inner := NewMemoryEngine(Settings{Duration: 5})
	defer inner.Close()
	e := WithBreaker(inner, circuitbreaker.New(circuitbreaker.Config{ErrorPct: 50, WindowDuration: time.Minute, OpenDuration: time.Minute}))

	e.SetConfig(SettingDuration, 9)
	if inner.GetConfig(SettingDuration) != 9 {
		t.Fatalf("settings should be delegated, got %v", inner.GetConfig(SettingDuration))
	}
	w, ok := e.(TTLWriter)
	if !ok {
		t.Fatalf("decorator should expose TTLWriter")
	}
	if _, err := w.WriteTTL(context.Background(), "k", "v", time.Minute); err != nil {
		t.Fatalf("WriteTTL failed: %v", err)
	}
	if v, _ := inner.Read(context.Background(), "k"); v != "v" {
		t.Fatalf("expected write to reach the inner engine, got %v", v)
	}

	if WithBreaker(inner, nil) != Engine(inner) {
		t.Fatalf("nil breaker should return the engine unchanged")
	}
}
