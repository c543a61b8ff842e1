package cache

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/threatlens/threatlens/pkg/threat"
)

func TestMemoryCache_GetSet(t *testing.T) {
	c := NewMemoryCache(time.Minute, 10)
	defer c.Close()
	ctx := context.Background()

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Error("empty cache returned a hit")
	}

	result := &threat.AnalysisResult{RiskScore: 80, Action: threat.ActionBlock}
	c.Set(ctx, "k1", result)

	got, ok := c.Get(ctx, "k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.RiskScore != 80 || got.Action != threat.ActionBlock {
		t.Errorf("cached result mangled: %+v", got)
	}
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	c := NewMemoryCache(20*time.Millisecond, 10)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "k", &threat.AnalysisResult{RiskScore: 10})
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatal("fresh entry should hit")
	}

	time.Sleep(40 * time.Millisecond)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expired entry should miss")
	}
}

func TestMemoryCache_EvictsAtCapacity(t *testing.T) {
	c := NewMemoryCache(time.Minute, 3)
	defer c.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c.Set(ctx, fmt.Sprintf("k%d", i), &threat.AnalysisResult{RiskScore: i})
		time.Sleep(time.Millisecond) // distinct createdAt for eviction order
	}

	if c.Len() > 3 {
		t.Errorf("cache grew past capacity: %d entries", c.Len())
	}
	if _, ok := c.Get(ctx, "k4"); !ok {
		t.Error("newest entry should survive eviction")
	}
}

func TestMemoryCache_CloseStopsCleanup(t *testing.T) {
	before := runtime.NumGoroutine()

	c := NewMemoryCache(time.Minute, 10)
	c.Close()
	c.Close() // idempotent

	deadline := time.Now().Add(500 * time.Millisecond)
	for runtime.NumGoroutine() > before && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := runtime.NumGoroutine(); n > before {
		t.Errorf("cleanup goroutine still running: %d goroutines, started with %d", n, before)
	}

	// Entries remain usable after Close; only the sweeper stops.
	ctx := context.Background()
	c.Set(ctx, "k", &threat.AnalysisResult{RiskScore: 5})
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Error("cache unusable after Close")
	}
}

func TestKey_Format(t *testing.T) {
	k := Key("abcd1234", "deadbeef")
	if k != "tl:abcd1234:deadbeef" {
		t.Errorf("unexpected key %q", k)
	}
	if Key("rev1", "h") == Key("rev2", "h") {
		t.Error("different revisions must produce different keys")
	}
}
