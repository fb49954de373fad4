// Package lock serializes type switches per conversation space. It is a
// best-effort guard against redundant concurrent permission rewrites; the
// record store's conditional updates remain the source of truth.
package lock

import (
	"context"
	"sync"
	"time"
)

// Guard grants exclusive, non-blocking holds on a key. Release starts a
// cooldown during which the key cannot be acquired again.
type Guard interface {
	TryAcquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// MemoryGuard keeps holds and cooldowns in process memory.
type MemoryGuard struct {
	mu       sync.Mutex
	held     map[string]struct{}
	cooling  map[string]time.Time
	cooldown time.Duration
	now      func() time.Time
}

// NewMemoryGuard constructs an in-process guard.
func NewMemoryGuard(cooldown time.Duration) *MemoryGuard {
	return &MemoryGuard{
		held:     make(map[string]struct{}),
		cooling:  make(map[string]time.Time),
		cooldown: cooldown,
		now:      time.Now,
	}
}

func (g *MemoryGuard) TryAcquire(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.held[key]; busy {
		return false, nil
	}
	if until, ok := g.cooling[key]; ok {
		if g.now().Before(until) {
			return false, nil
		}
		delete(g.cooling, key)
	}
	g.held[key] = struct{}{}
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.held, key)
	if g.cooldown > 0 {
		g.cooling[key] = g.now().Add(g.cooldown)
	}
	return nil
}

// Held reports whether key is currently held or cooling down.
func (g *MemoryGuard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; busy {
		return true
	}
	until, ok := g.cooling[key]
	return ok && g.now().Before(until)
}
