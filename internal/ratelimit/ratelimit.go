package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a token-bucket rate limiter keyed by arbitrary string
// identifiers (e.g. client IP). Each key gets its own rate.Limiter.
type Limiter struct {
	mu        sync.Mutex
	entries   map[string]*entry
	perMinute int
	limit     rate.Limit
	burst     int
	now       func() time.Time // injectable clock for testing
}

// New creates a Limiter that allows requestsPerMinute requests per key with
// the given burst. A burst of zero means one minute's worth of requests.
func New(requestsPerMinute, burst int) *Limiter {
	if burst <= 0 {
		burst = requestsPerMinute
	}
	return &Limiter{
		entries:   make(map[string]*entry),
		perMinute: requestsPerMinute,
		limit:     rate.Limit(float64(requestsPerMinute) / 60),
		burst:     burst,
		now:       time.Now,
	}
}

// get returns the entry for key, creating one if it doesn't exist.
// Must be called with l.mu held.
func (l *Limiter) get(key string, now time.Time) *entry {
	e, ok := l.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e
}

// Allow reports whether a request identified by key is permitted, consuming
// one token when it is.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	return l.get(key, now).limiter.AllowN(now, 1)
}

// Status returns the current state for key: the bucket size, the whole
// tokens left, and when the bucket will be full again.
func (l *Limiter) Status(key string) (limit int, remaining int, resetAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tokens := l.get(key, now).limiter.TokensAt(now)

	limit = l.burst
	remaining = int(tokens)
	if remaining < 0 {
		remaining = 0
	}

	deficit := float64(l.burst) - tokens
	if deficit <= 0 || l.limit <= 0 {
		resetAt = now
	} else {
		resetAt = now.Add(time.Duration(deficit / float64(l.limit) * float64(time.Second)))
	}
	return
}

// Cleanup forgets keys not seen for idle and returns how many were removed.
func (l *Limiter) Cleanup(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for key, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// PerMinute returns the configured sustained rate.
func (l *Limiter) PerMinute() int {
	return l.perMinute
}
