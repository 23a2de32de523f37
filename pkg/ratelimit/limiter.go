// Package ratelimit provides fixed-window limiters keyed by client identity.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter admits or rejects a call for key given limit calls per window.
type Limiter interface {
	Allow(key string, limit int) Decision
}

// LocalLimiter keeps one token bucket per key in process memory. Buckets
// refill at limit/window and hold at most limit tokens.
type LocalLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	limit    int
	lastSeen time.Time
}

// NewLocal builds an in-process limiter.
func NewLocal(window time.Duration) *LocalLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &LocalLimiter{
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow consumes one token for key.
func (l *LocalLimiter) Allow(key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.evict(now)

	b, ok := l.buckets[key]
	if !ok || b.limit != limit {
		every := rate.Every(l.window / time.Duration(limit))
		b = &bucket{limiter: rate.NewLimiter(every, limit), limit: limit}
		l.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	remaining := int(b.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Add(l.window),
	}
}

func (l *LocalLimiter) evict(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.window {
			delete(l.buckets, k)
		}
	}
}
