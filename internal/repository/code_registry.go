package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryCodeRegistry reserves live access codes in process memory.
type MemoryCodeRegistry struct {
	mu    sync.Mutex
	codes map[string]codeReservation
	now   func() time.Time
}

type codeReservation struct {
	owner     string
	expiresAt time.Time
}

// NewMemoryCodeRegistry builds a registry using now as its time source.
func NewMemoryCodeRegistry(now func() time.Time) *MemoryCodeRegistry {
	if now == nil {
		now = time.Now
	}
	return &MemoryCodeRegistry{codes: make(map[string]codeReservation), now: now}
}

// Reserve claims code for owner until ttl elapses. It reports false when
// another owner already holds the code.
func (r *MemoryCodeRegistry) Reserve(_ context.Context, code, owner string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if held, ok := r.codes[code]; ok && held.owner != owner && now.Before(held.expiresAt) {
		return false, nil
	}
	r.codes[code] = codeReservation{owner: owner, expiresAt: now.Add(minTTL(ttl))}
	return true, nil
}

// Release frees code if owner still holds it.
func (r *MemoryCodeRegistry) Release(_ context.Context, code, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if held, ok := r.codes[code]; ok && held.owner == owner {
		delete(r.codes, code)
	}
	return nil
}

// Live returns the number of unexpired reservations.
func (r *MemoryCodeRegistry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	n := 0
	for code, held := range r.codes {
		if now.Before(held.expiresAt) {
			n++
			continue
		}
		delete(r.codes, code)
	}
	return n
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCodeRegistry reserves live access codes with SETNX so replicas share
// one code space.
type RedisCodeRegistry struct {
	client *redis.Client
	prefix string
}

// NewRedisCodeRegistry builds a Redis-backed registry.
func NewRedisCodeRegistry(client *redis.Client, prefix string) *RedisCodeRegistry {
	if prefix == "" {
		prefix = "hostelx:otp:"
	}
	return &RedisCodeRegistry{client: client, prefix: prefix}
}

// Reserve claims code for owner until ttl elapses.
func (r *RedisCodeRegistry) Reserve(ctx context.Context, code, owner string, ttl time.Duration) (bool, error) {
	key := r.prefix + code
	ok, err := r.client.SetNX(ctx, key, owner, minTTL(ttl)).Result()
	if err != nil {
		return false, fmt.Errorf("redis reserve code: %w", err)
	}
	if ok {
		return true, nil
	}
	holder, err := r.client.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("redis read code holder: %w", err)
	}
	return holder == owner, nil
}

// Release frees code if owner still holds it.
func (r *RedisCodeRegistry) Release(ctx context.Context, code, owner string) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.prefix + code}, owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis release code: %w", err)
	}
	return nil
}

func minTTL(ttl time.Duration) time.Duration {
	if ttl < time.Minute {
		return time.Minute
	}
	return ttl
}
