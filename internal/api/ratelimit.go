package api

import (
	"sync"
	"time"
)

// RateLimiter counts requests per client in fixed windows. A window opens on
// the first request from a client and lasts the configured duration.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	max     int
	length  time.Duration
}

type window struct {
	count   int
	resetAt time.Time
}

// Quota is the outcome of one request against the limiter.
type Quota struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

func NewRateLimiter(max int, length time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		max:     max,
		length:  length,
	}
}

// Consume records a request from identity at now.
func (rl *RateLimiter) Consume(identity string, now time.Time) Quota {
	if identity == "" {
		identity = "unknown"
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[identity]
	if !ok || !now.Before(w.resetAt) {
		rl.windows[identity] = &window{count: 1, resetAt: now.Add(rl.length)}
		return Quota{Allowed: true, Remaining: max(0, rl.max-1)}
	}

	w.count++
	if w.count > rl.max {
		return Quota{Remaining: 0, RetryAfter: max(0, w.resetAt.Sub(now))}
	}
	return Quota{Allowed: true, Remaining: max(0, rl.max-w.count)}
}

// Sweep drops every window that has expired at now.
func (rl *RateLimiter) Sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for identity, w := range rl.windows {
		if !now.Before(w.resetAt) {
			delete(rl.windows, identity)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}
