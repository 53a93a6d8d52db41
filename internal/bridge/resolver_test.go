package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/oriys/cachebridge/internal/engine"
)

func TestResolver_Memoizes(t *testing.T) {
	reg := engine.NewRegistry()
	t.Cleanup(func() { _ = reg.Close() })
	if err := reg.SetConfig("default", engine.NewMemoryEngine(engine.Settings{Duration: 60})); err != nil {
		t.Fatalf("SetConfig failed: %v", err)
	}

	r := NewResolver(reg)
	a, err := r.Get("default")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	b, _ := r.Get("default")
	if a != b {
		t.Fatalf("expected the same bridge on repeated Get")
	}
	if a.OriginalDuration() != 60 {
		t.Fatalf("expected captured duration 60, got %d", a.OriginalDuration())
	}

	if _, err := a.Set(context.Background(), "k", "v", 5); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := engine.Seconds(a.Engine().GetConfig(engine.SettingDuration)); got != 60 {
		t.Fatalf("duration not restored: %d", got)
	}

	if _, err := r.Get("missing"); !errors.Is(err, engine.ErrUnknownConfig) {
		t.Fatalf("expected ErrUnknownConfig, got %v", err)
	}
	if names := r.Names(); len(names) != 1 || names[0] != "default" {
		t.Fatalf("unexpected names %v", names)
	}
}
