package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter keeps one token bucket per key. Buckets idle longer than the
// idle timeout are dropped on the next sweep.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*entry
	limit rate.Limit
	burst int
	idle  time.Duration
	last  time.Time
	now   func() time.Time
}

func New(perSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		m:     make(map[string]*entry),
		limit: rate.Limit(perSecond),
		burst: burst,
		idle:  10 * time.Minute,
		now:   time.Now,
	}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	e, ok := l.m[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.m[key] = e
	}
	e.seen = now
	if now.Sub(l.last) > l.idle {
		l.sweep(now)
	}
	l.mu.Unlock()
	return e.lim.AllowN(now, 1)
}

func (l *Limiter) sweep(now time.Time) {
	for k, e := range l.m {
		if now.Sub(e.seen) > l.idle {
			delete(l.m, k)
		}
	}
	l.last = now
}
