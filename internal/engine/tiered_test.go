package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestTiered(t *testing.T, l1TTL time.Duration) (*TieredEngine, *MemoryEngine, *MemoryEngine) {
	t.Helper()
	l1 := NewMemoryEngine(Settings{})
	l2 := NewMemoryEngine(Settings{})
	te, err := NewTieredEngine(Settings{Duration: 60, Prefix: "t_"}, l1, l2, l1TTL)
	if err != nil {
		t.Fatalf("NewTieredEngine failed: %v", err)
	}
	t.Cleanup(func() {
		te.Close()
		l1.Close()
		l2.Close()
	})
	return te, l1, l2
}

func TestTieredEngine_Contract(t *testing.T) {
	te, _, _ := newTestTiered(t, 10*time.Second)
	runContract(t, te)
}

func TestTieredEngine_L2Fallthrough(t *testing.T) {
	te, l1, l2 := newTestTiered(t, 10*time.Second)
	ctx := context.Background()

	// Write value directly in L2 (simulating L1 miss)
	if _, err := l2.Write(ctx, te.key("key2"), "value2"); err != nil {
		t.Fatalf("L2 Write failed: %v", err)
	}

	// Should miss L1, hit L2, and populate L1
	v, err := te.Read(ctx, "key2")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if v != "value2" {
		t.Fatalf("expected 'value2', got %v", v)
	}

	// Now L1 should have the value
	if v, _ := l1.Read(ctx, te.key("key2")); v != "value2" {
		t.Fatalf("L1 should be populated after L2 hit, got %v", v)
	}
}

func TestTieredEngine_L1TTLCapsLocalCopy(t *testing.T) {
	te, l1, l2 := newTestTiered(t, 20*time.Millisecond)
	ctx := context.Background()

	if _, err := te.Write(ctx, "k", "v"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)

	if v, _ := l1.Read(ctx, te.key("k")); !IsMiss(v) {
		t.Fatalf("expected L1 copy expired, got %v", v)
	}
	if v, _ := l2.Read(ctx, te.key("k")); v != "v" {
		t.Fatalf("expected L2 copy to live on the tiered duration, got %v", v)
	}
}

func TestTieredEngine_DurationSettingDrivesL2(t *testing.T) {
	te, _, l2 := newTestTiered(t, time.Minute)
	ctx := context.Background()

	te.SetConfig(SettingDuration, 1)
	_, _ = te.Write(ctx, "short", "v")
	te.SetConfig(SettingDuration, 60)

	if l2.GetConfig(SettingDuration) != 0 {
		t.Fatalf("children settings must not change, got %v", l2.GetConfig(SettingDuration))
	}
	time.Sleep(1100 * time.Millisecond)
	if v, _ := l2.Read(ctx, te.key("short")); !IsMiss(v) {
		t.Fatalf("expected L2 entry to expire after 1s, got %v", v)
	}
}

func TestTieredEngine_DeleteAndClearBothLayers(t *testing.T) {
	te, l1, l2 := newTestTiered(t, time.Minute)
	ctx := context.Background()

	_, _ = te.WriteMany(ctx, map[string]any{"a": "1", "b": "2", "c": "3"})
	_, _ = te.Delete(ctx, "a")
	_, _ = te.DeleteMany(ctx, []string{"b"})

	for _, layer := range []Engine{l1, l2} {
		got, _ := layer.ReadMany(ctx, te.keys([]string{"a", "b", "c"}))
		if !IsMiss(got[te.key("a")]) || !IsMiss(got[te.key("b")]) || got[te.key("c")] != "3" {
			t.Fatalf("unexpected layer content %v", got)
		}
		// the layer's own keys live next to the tiered share
		_, _ = layer.Write(ctx, "own", "kept")
	}

	_, _ = te.Clear(ctx, true)
	for _, layer := range []Engine{l1, l2} {
		if v, _ := layer.Read(ctx, te.key("c")); !IsMiss(v) {
			t.Fatalf("expected cleared layer, got %v", v)
		}
		if v, _ := layer.Read(ctx, "own"); v != "kept" {
			t.Fatalf("scoped clear must keep the layer's own keys, got %v", v)
		}
	}
}

func TestTieredEngine_ReadManyMixesLayers(t *testing.T) {
	te, l1, l2 := newTestTiered(t, time.Minute)
	ctx := context.Background()

	_, _ = l1.Write(ctx, te.key("local"), "L1")
	_, _ = l2.Write(ctx, te.key("remote"), "L2")

	got, err := te.ReadMany(ctx, []string{"local", "remote", "none"})
	if err != nil {
		t.Fatalf("ReadMany failed: %v", err)
	}
	if got["local"] != "L1" || got["remote"] != "L2" || !IsMiss(got["none"]) {
		t.Fatalf("unexpected result %v", got)
	}
	if v, _ := l1.Read(ctx, te.key("remote")); v != "L2" {
		t.Fatalf("expected L2 hit promoted to L1, got %v", v)
	}
}

// slowEngine counts reads and blocks them until released.
type slowEngine struct {
	*MemoryEngine
	reads   atomic.Int64
	release chan struct{}
}

func (s *slowEngine) Read(ctx context.Context, key string) (any, error) {
	s.reads.Add(1)
	<-s.release
	return s.MemoryEngine.Read(ctx, key)
}

func TestTieredEngine_CollapsesConcurrentL2Reads(t *testing.T) {
	l1 := NewMemoryEngine(Settings{})
	defer l1.Close()
	l2 := &slowEngine{MemoryEngine: NewMemoryEngine(Settings{}), release: make(chan struct{})}
	defer l2.Close()
	te, err := NewTieredEngine(Settings{Duration: 60}, l1, l2, time.Minute)
	if err != nil {
		t.Fatalf("NewTieredEngine failed: %v", err)
	}
	ctx := context.Background()
	_, _ = l2.Write(ctx, te.key("hot"), "v")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v, _ := te.Read(ctx, "hot"); v != "v" {
				t.Errorf("expected 'v', got %v", v)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(l2.release)
	wg.Wait()

	if n := l2.reads.Load(); n != 1 {
		t.Fatalf("expected a single L2 read, got %d", n)
	}
}

type noTTLEngine struct{ *NullEngine }

func TestNewTieredEngine_RequiresTTLWriters(t *testing.T) {
	mem := NewMemoryEngine(Settings{})
	defer mem.Close()
	plain := noTTLEngine{NewNullEngine(Settings{})}

	if _, err := NewTieredEngine(Settings{}, plain, mem, 0); err == nil {
		t.Fatalf("expected error for l1 without TTLWriter")
	}
	if _, err := NewTieredEngine(Settings{}, mem, plain, 0); err == nil {
		t.Fatalf("expected error for l2 without TTLWriter")
	}
	te, err := NewTieredEngine(Settings{}, mem, mem, 0)
	if err != nil {
		t.Fatalf("NewTieredEngine failed: %v", err)
	}
	if te.l1TTL != 10*time.Second {
		t.Fatalf("expected default l1 ttl, got %v", te.l1TTL)
	}
}

type failingEngine struct {
	*MemoryEngine
	err error
}

func (f *failingEngine) Read(context.Context, string) (any, error) { return nil, f.err }

func TestTieredEngine_L2ErrorPropagates(t *testing.T) {
	l1 := NewMemoryEngine(Settings{})
	defer l1.Close()
	boom := errors.New("l2 down")
	l2 := &failingEngine{MemoryEngine: NewMemoryEngine(Settings{}), err: boom}
	defer l2.Close()
	te, err := NewTieredEngine(Settings{}, l1, l2, 0)
	if err != nil {
		t.Fatalf("NewTieredEngine failed: %v", err)
	}

	if _, err := te.Read(context.Background(), "k"); !errors.Is(err, boom) {
		t.Fatalf("expected L2 error, got %v", err)
	}
}
