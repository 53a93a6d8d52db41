package circuitbreaker

import (
	"testing"
	"time"
)

func testConfig(open time.Duration) Config {
	return Config{
		ErrorPct:       50,
		WindowDuration: 10 * time.Second,
		OpenDuration:   open,
		HalfOpenProbes: 1,
	}
}

func trip(t *testing.T, b *Breaker) {
	t.Helper()
	b.RecordFailure()
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}
}

func TestBreaker_ClosedAllowsCalls(t *testing.T) {
	b := New(testConfig(5 * time.Second))

	if !b.Allow() {
		t.Fatal("closed breaker should allow calls")
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %v", b.State())
	}
}

func TestBreaker_TripsOnErrorRate(t *testing.T) {
	b := New(testConfig(5 * time.Second))

	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	// 66% errors against a 50% threshold
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}
	if b.Allow() {
		t.Fatal("open breaker should reject calls")
	}
}

func TestBreaker_MinRequestsDelaysTrip(t *testing.T) {
	cfg := testConfig(5 * time.Second)
	cfg.MinRequests = 5
	b := New(cfg)

	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed below MinRequests, got %v", b.State())
	}
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("expected open at MinRequests, got %v", b.State())
	}
}

func TestBreaker_HalfOpenAfterOpenDuration(t *testing.T) {
	b := New(testConfig(10 * time.Millisecond))
	trip(t, b)

	time.Sleep(20 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("should allow a probe in half-open state")
	}
	if b.Allow() {
		t.Fatal("should allow only one probe")
	}
}

func TestBreaker_ClosesAfterSuccessfulProbe(t *testing.T) {
	b := New(testConfig(10 * time.Millisecond))
	trip(t, b)
	time.Sleep(20 * time.Millisecond)

	b.Allow()
	b.RecordSuccess()

	if b.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %v", b.State())
	}
}

func TestBreaker_ReopensOnFailedProbe(t *testing.T) {
	b := New(testConfig(10 * time.Millisecond))
	trip(t, b)
	time.Sleep(20 * time.Millisecond)

	b.Allow()
	b.RecordFailure()

	if b.State() != StateOpen {
		t.Fatalf("expected open after failed probe, got %v", b.State())
	}
}

func TestBreaker_OnStateChange(t *testing.T) {
	b := New(testConfig(10 * time.Millisecond))

	var seen []State
	b.OnStateChange(func(_, to State) { seen = append(seen, to) })

	trip(t, b)
	time.Sleep(20 * time.Millisecond)
	b.Allow()
	b.RecordSuccess()

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(seen) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("transition %d: expected %v, got %v", i, want[i], seen[i])
		}
	}
}

func TestRegistry_CreatesBreakerOnDemand(t *testing.T) {
	r := NewRegistry()
	cfg := testConfig(5 * time.Second)

	b1 := r.Get("shared", cfg)
	if b1 == nil {
		t.Fatal("expected non-nil breaker")
	}
	if b2 := r.Get("shared", cfg); b1 != b2 {
		t.Fatal("expected same breaker instance for the same cache")
	}

	r.Remove("shared")
	if b3 := r.Get("shared", cfg); b3 == b1 {
		t.Fatal("expected a fresh breaker after Remove")
	}
}

func TestRegistry_NilForDisabledConfig(t *testing.T) {
	r := NewRegistry()

	if b := r.Get("shared", Config{}); b != nil {
		t.Fatal("expected nil breaker for zero config")
	}
	if b := r.Get("shared", Config{ErrorPct: 50}); b != nil {
		t.Fatal("expected nil breaker without window/open duration")
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry()
	cfg := testConfig(5 * time.Second)

	r.Get("shared", cfg)
	trip(t, r.Get("sql", cfg))

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snap))
	}
	if snap["shared"] != "closed" {
		t.Fatalf("expected closed, got %s", snap["shared"])
	}
	if snap["sql"] != "open" {
		t.Fatalf("expected open, got %s", snap["sql"])
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
