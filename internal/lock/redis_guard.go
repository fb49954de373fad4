package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "ticket:switch:"
	// holdTTL bounds a hold left behind by a crashed instance.
	holdTTL = 2 * time.Minute
)

// ErrHoldLost is returned by Release when the hold expired and the key now
// belongs to someone else.
var ErrHoldLost = errors.New("switch guard hold lost")

// releaseScript swaps a hold for a cooldown marker only while the key still
// carries the caller's token. ARGV[2] is the cooldown in milliseconds; zero
// deletes the key instead.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
local ms = tonumber(ARGV[2])
if ms > 0 then
	redis.call("SET", KEYS[1], "cooldown", "PX", ms)
else
	redis.call("DEL", KEYS[1])
end
return 1
`)

// RedisGuard shares holds across instances. Each hold is a SET NX key
// holding a random token, so a release only touches a hold it still owns.
type RedisGuard struct {
	client   redis.UniversalClient
	cooldown time.Duration

	mu     sync.Mutex
	tokens map[string]string
}

// NewRedisGuard constructs a guard backed by client.
func NewRedisGuard(client redis.UniversalClient, cooldown time.Duration) *RedisGuard {
	return &RedisGuard{client: client, cooldown: cooldown, tokens: make(map[string]string)}
}

func (g *RedisGuard) TryAcquire(ctx context.Context, key string) (bool, error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, keyPrefix+key, token, holdTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire switch guard: %w", err)
	}
	if ok {
		g.mu.Lock()
		g.tokens[key] = token
		g.mu.Unlock()
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	token, ok := g.tokens[key]
	delete(g.tokens, key)
	g.mu.Unlock()
	if !ok {
		return nil
	}

	released, err := releaseScript.Run(ctx, g.client, []string{keyPrefix + key}, token, g.cooldown.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("release switch guard: %w", err)
	}
	if released == 0 {
		return ErrHoldLost
	}
	return nil
}
