package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryGuardExclusive(t *testing.T) {
	g := NewMemoryGuard(0)
	ctx := context.Background()

	ok, _ := g.TryAcquire(ctx, "chan")
	if !ok {
		t.Fatal("first acquire must succeed")
	}
	if ok, _ := g.TryAcquire(ctx, "chan"); ok {
		t.Fatal("second acquire must fail while held")
	}
	if ok, _ := g.TryAcquire(ctx, "other"); !ok {
		t.Fatal("keys are independent")
	}
	_ = g.Release(ctx, "chan")
	if ok, _ := g.TryAcquire(ctx, "chan"); !ok {
		t.Fatal("acquire after release without cooldown must succeed")
	}
}

func TestMemoryGuardCooldown(t *testing.T) {
	g := NewMemoryGuard(5 * time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = g.TryAcquire(ctx, "chan")
	_ = g.Release(ctx, "chan")

	if ok, _ := g.TryAcquire(ctx, "chan"); ok {
		t.Fatal("acquire during cooldown must fail")
	}
	if !g.Held("chan") {
		t.Fatal("key must report held during cooldown")
	}
	now = now.Add(6 * time.Second)
	if ok, _ := g.TryAcquire(ctx, "chan"); !ok {
		t.Fatal("acquire after cooldown must succeed")
	}
}

func TestMemoryGuardConcurrentAcquire(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := g.TryAcquire(context.Background(), "chan"); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("wins = %d, want 1", wins.Load())
	}
}
