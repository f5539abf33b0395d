package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is a per-key sliding-window counter. The outer mutex only
// guards the key map; every key has its own lock so the
// evict-check-append sequence is atomic per key and unrelated keys
// never serialize behind each other.
type Limiter struct {
	window time.Duration
	max    int
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu     sync.Mutex
	stamps []time.Time
}

func New(window time.Duration, max int) *Limiter {
	return NewWithClock(window, max, time.Now)
}

// NewWithClock injects the clock, for tests that advance time.
func NewWithClock(window time.Duration, max int, now func() time.Time) *Limiter {
	return &Limiter{
		window:  window,
		max:     max,
		now:     now,
		entries: make(map[string]*entry),
	}
}

// Check evicts timestamps outside the window, then admits the request
// if the key is under its quota. Denied requests get a retry-after
// hint computed from the oldest retained timestamp.
func (l *Limiter) Check(key string) Decision {
	e := l.entry(key)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	kept := e.stamps[:0]
	for _, ts := range e.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	e.stamps = kept

	if len(e.stamps) >= l.max {
		retry := e.stamps[0].Add(l.window).Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retry}
	}

	e.stamps = append(e.stamps, now)
	return Decision{Allowed: true, Remaining: l.max - len(e.stamps)}
}

func (l *Limiter) entry(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	return e
}
