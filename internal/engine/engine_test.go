package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// runContract exercises the behavior every persistent engine shares. Values
// are strings so that engines with a JSON codec round-trip them unchanged.
func runContract(t *testing.T, e Engine) {
	t.Helper()
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		v, err := e.Read(ctx, "absent")
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if !IsMiss(v) {
			t.Fatalf("expected Miss, got %v", v)
		}
	})

	t.Run("write and read", func(t *testing.T) {
		ok, err := e.Write(ctx, "key1", "value1")
		if err != nil || !ok {
			t.Fatalf("Write failed: %v %v", ok, err)
		}
		v, err := e.Read(ctx, "key1")
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		if v != "value1" {
			t.Fatalf("expected 'value1', got %v", v)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		_, _ = e.Write(ctx, "over", "a")
		_, _ = e.Write(ctx, "over", "b")
		if v, _ := e.Read(ctx, "over"); v != "b" {
			t.Fatalf("expected 'b', got %v", v)
		}
	})

	t.Run("delete", func(t *testing.T) {
		_, _ = e.Write(ctx, "del", "v")
		if ok, err := e.Delete(ctx, "del"); err != nil || !ok {
			t.Fatalf("Delete failed: %v %v", ok, err)
		}
		if v, _ := e.Read(ctx, "del"); !IsMiss(v) {
			t.Fatalf("expected Miss after delete, got %v", v)
		}
		if _, err := e.Delete(ctx, "never-written"); err != nil {
			t.Fatalf("Delete of absent key should not fail: %v", err)
		}
	})

	t.Run("many", func(t *testing.T) {
		ok, err := e.WriteMany(ctx, map[string]any{"m1": "one", "m2": "two"})
		if err != nil || !ok {
			t.Fatalf("WriteMany failed: %v %v", ok, err)
		}
		got, err := e.ReadMany(ctx, []string{"m1", "m2", "m3"})
		if err != nil {
			t.Fatalf("ReadMany failed: %v", err)
		}
		if got["m1"] != "one" || got["m2"] != "two" || !IsMiss(got["m3"]) {
			t.Fatalf("unexpected ReadMany result: %v", got)
		}
		if ok, err := e.DeleteMany(ctx, []string{"m1", "m3"}); err != nil || !ok {
			t.Fatalf("DeleteMany failed: %v %v", ok, err)
		}
		got, _ = e.ReadMany(ctx, []string{"m1", "m2"})
		if !IsMiss(got["m1"]) || got["m2"] != "two" {
			t.Fatalf("unexpected result after DeleteMany: %v", got)
		}
		if got, err := e.ReadMany(ctx, nil); err != nil || len(got) != 0 {
			t.Fatalf("expected empty ReadMany, got %v (%v)", got, err)
		}
	})

	t.Run("structured value", func(t *testing.T) {
		_, _ = e.Write(ctx, "doc", map[string]any{"name": "x"})
		v, _ := e.Read(ctx, "doc")
		m, ok := v.(map[string]any)
		if !ok || m["name"] != "x" {
			t.Fatalf("expected map round trip, got %#v", v)
		}
	})

	t.Run("settings", func(t *testing.T) {
		orig := e.GetConfig(SettingDuration)
		e.SetConfig(SettingDuration, 42)
		if got := e.GetConfig(SettingDuration); got != 42 {
			t.Fatalf("expected duration 42, got %v", got)
		}
		e.SetConfig(SettingDuration, orig)
		if e.GetConfig("unknown") != nil {
			t.Fatalf("expected nil for unknown setting")
		}
	})

	t.Run("scoped clear", func(t *testing.T) {
		_, _ = e.Write(ctx, "c1", "v")
		if ok, err := e.Clear(ctx, true); err != nil || !ok {
			t.Fatalf("Clear failed: %v %v", ok, err)
		}
		if v, _ := e.Read(ctx, "c1"); !IsMiss(v) {
			t.Fatalf("expected Miss after clear, got %v", v)
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := e.Ping(ctx); err != nil {
			t.Fatalf("Ping failed: %v", err)
		}
	})
}

// runExpiry checks that writes honor the duration setting in effect at
// write time.
func runExpiry(t *testing.T, e Engine) {
	t.Helper()
	ctx := context.Background()
	orig := e.GetConfig(SettingDuration)
	defer e.SetConfig(SettingDuration, orig)

	e.SetConfig(SettingDuration, 1)
	if _, err := e.Write(ctx, "short", "v"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	e.SetConfig(SettingDuration, 0)
	if _, err := e.Write(ctx, "forever", "v"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	time.Sleep(2100 * time.Millisecond)

	if v, _ := e.Read(ctx, "short"); !IsMiss(v) {
		t.Fatalf("expected short-lived entry to expire, got %v", v)
	}
	if v, _ := e.Read(ctx, "forever"); v != "v" {
		t.Fatalf("expected entry without expiration to survive, got %v", v)
	}
}

// runScopedClear checks that two engines sharing a store only clear their
// own namespace.
func runScopedClear(t *testing.T, a, b Engine) {
	t.Helper()
	ctx := context.Background()
	_, _ = a.Write(ctx, "shared", "a")
	_, _ = b.Write(ctx, "shared", "b")

	if _, err := a.Clear(ctx, true); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if v, _ := a.Read(ctx, "shared"); !IsMiss(v) {
		t.Fatalf("expected a's key cleared, got %v", v)
	}
	if v, _ := b.Read(ctx, "shared"); v != "b" {
		t.Fatalf("expected b's key to survive a scoped clear, got %v", v)
	}

	pc, ok := b.(PrefixClearer)
	if !ok {
		t.Fatalf("%T cannot clear by prefix", b)
	}
	_, _ = b.Write(ctx, "t_one", "1")
	_, _ = b.Write(ctx, "t%_two", "2")
	if _, err := pc.ClearPrefix(ctx, "t_"); err != nil {
		t.Fatalf("ClearPrefix failed: %v", err)
	}
	if v, _ := b.Read(ctx, "t_one"); !IsMiss(v) {
		t.Fatalf("expected t_one cleared, got %v", v)
	}
	for k, want := range map[string]any{"shared": "b", "t%_two": "2"} {
		if v, _ := b.Read(ctx, k); v != want {
			t.Fatalf("ClearPrefix removed %q outside its prefix, got %v", k, v)
		}
	}
}

func TestMemoryEngine_Contract(t *testing.T) {
	e := NewMemoryEngine(Settings{Duration: 60})
	defer e.Close()
	runContract(t, e)
}

func TestLRUEngine_Contract(t *testing.T) {
	e, err := NewLRUEngine(Settings{Duration: 60}, 100)
	if err != nil {
		t.Fatalf("NewLRUEngine failed: %v", err)
	}
	defer e.Close()
	runContract(t, e)
}

func TestBoltEngine_Contract(t *testing.T) {
	e, err := NewBoltEngine(Settings{Duration: 60}, BoltConfig{Path: filepath.Join(t.TempDir(), "cache.db")})
	if err != nil {
		t.Fatalf("NewBoltEngine failed: %v", err)
	}
	defer e.Close()
	runContract(t, e)
}

func TestBoltEngine_Expiry(t *testing.T) {
	e, err := NewBoltEngine(Settings{Duration: 60}, BoltConfig{Path: filepath.Join(t.TempDir(), "cache.db")})
	if err != nil {
		t.Fatalf("NewBoltEngine failed: %v", err)
	}
	defer e.Close()
	runExpiry(t, e)
}

func TestBoltEngine_ClearUnscoped(t *testing.T) {
	e, err := NewBoltEngine(Settings{Prefix: "x_"}, BoltConfig{Path: filepath.Join(t.TempDir(), "cache.db"), Bucket: "entries"})
	if err != nil {
		t.Fatalf("NewBoltEngine failed: %v", err)
	}
	defer e.Close()
	ctx := context.Background()
	_, _ = e.Write(ctx, "k", "v")
	if _, err := e.Clear(ctx, false); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if v, _ := e.Read(ctx, "k"); !IsMiss(v) {
		t.Fatalf("expected Miss after flush, got %v", v)
	}
	if err := e.Ping(ctx); err != nil {
		t.Fatalf("bucket should be recreated: %v", err)
	}
}

func TestBoltEngine_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	e, err := NewBoltEngine(Settings{}, BoltConfig{Path: path})
	if err != nil {
		t.Fatalf("NewBoltEngine failed: %v", err)
	}
	_, _ = e.Write(ctx, "durable", "yes")
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	e, err = NewBoltEngine(Settings{}, BoltConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer e.Close()
	if v, _ := e.Read(ctx, "durable"); v != "yes" {
		t.Fatalf("expected value to survive reopen, got %v", v)
	}
}

func TestSQLiteEngine_Contract(t *testing.T) {
	e, err := NewSQLiteEngine(Settings{Duration: 60}, SQLiteConfig{})
	if err != nil {
		t.Fatalf("NewSQLiteEngine failed: %v", err)
	}
	defer e.Close()
	runContract(t, e)
}

func TestSQLiteEngine_Expiry(t *testing.T) {
	e, err := NewSQLiteEngine(Settings{Duration: 60}, SQLiteConfig{Path: filepath.Join(t.TempDir(), "cache.sqlite")})
	if err != nil {
		t.Fatalf("NewSQLiteEngine failed: %v", err)
	}
	defer e.Close()
	runExpiry(t, e)
}

func TestSQLiteEngine_ScopedClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.sqlite")
	a, err := NewSQLiteEngine(Settings{Prefix: "a_"}, SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("NewSQLiteEngine failed: %v", err)
	}
	defer a.Close()
	b, err := NewSQLiteEngine(Settings{Prefix: "b_"}, SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("NewSQLiteEngine failed: %v", err)
	}
	defer b.Close()
	runScopedClear(t, a, b)
}

func TestNullEngine(t *testing.T) {
	e := NewNullEngine(Settings{})
	ctx := context.Background()

	if ok, err := e.Write(ctx, "k", "v"); err != nil || !ok {
		t.Fatalf("Write failed: %v %v", ok, err)
	}
	if v, _ := e.Read(ctx, "k"); !IsMiss(v) {
		t.Fatalf("expected Miss, got %v", v)
	}
	got, _ := e.ReadMany(ctx, []string{"a", "b"})
	if len(got) != 2 || !IsMiss(got["a"]) || !IsMiss(got["b"]) {
		t.Fatalf("expected all misses, got %v", got)
	}
	if e.GetConfig(SettingDuration) != 0 || e.GetConfig(SettingPrefix) != DefaultPrefix {
		t.Fatalf("unexpected settings %v/%v", e.GetConfig(SettingDuration), e.GetConfig(SettingPrefix))
	}
}

func TestSeconds(t *testing.T) {
	cases := []struct {
		in   any
		want int
	}{
		{30, 30},
		{int64(5), 5},
		{uint16(9), 9},
		{2.9, 2},
		{3 * time.Second, 3},
		{"60", 0},
		{nil, 0},
	}
	for _, c := range cases {
		if got := Seconds(c.in); got != c.want {
			t.Fatalf("Seconds(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestBase_DurationNormalized(t *testing.T) {
	b := newBase(Settings{Duration: 10})
	b.SetConfig(SettingDuration, 90*time.Second)
	if got := b.GetConfig(SettingDuration); got != 90 {
		t.Fatalf("expected 90, got %v", got)
	}
	if b.Duration() != 90*time.Second {
		t.Fatalf("expected 90s, got %v", b.Duration())
	}
	if b.Prefix() != DefaultPrefix || b.key("k") != DefaultPrefix+"k" {
		t.Fatalf("unexpected key %q", b.key("k"))
	}
}

func TestGuard_SharedAcrossWrappers(t *testing.T) {
	e := NewMemoryEngine(Settings{})
	defer e.Close()
	other := NewMemoryEngine(Settings{})
	defer other.Close()

	wrapped := &BreakerEngine{inner: e}
	if Guard(e) != Guard(wrapped) {
		t.Fatalf("decorator should share the guard of its inner engine")
	}
	if Guard(e) == Guard(other) {
		t.Fatalf("distinct engines must not share a guard")
	}
	g := Guard(e)
	forgetGuard(e)
	if Guard(e) == g {
		t.Fatalf("expected a fresh guard after forgetGuard")
	}
}
