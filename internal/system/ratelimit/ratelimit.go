// Package ratelimit throttles outbound requests per key with a sliding
// window, e.g. web searches per host.
package ratelimit

import (
	"sync"
	"time"
)

// Window allows at most Limit hits per key within Period.
type Window struct {
	limit  int
	period time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

// New returns a limiter. A non-positive limit allows everything.
func New(limit int, period time.Duration) *Window {
	return &Window{
		limit:  limit,
		period: period,
		now:    time.Now,
		hits:   map[string][]time.Time{},
	}
}

// Allow records a hit for key and reports whether it fits the window.
// Rejected hits are not recorded.
func (w *Window) Allow(key string) bool {
	if w == nil || w.limit <= 0 {
		return true
	}
	now := w.now()
	cutoff := now.Add(-w.period)

	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.hits[key][:0]
	for _, t := range w.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= w.limit {
		w.hits[key] = kept
		return false
	}
	w.hits[key] = append(kept, now)
	return true
}

// RetryAfter returns how long until key may be hit again; zero when it may
// be hit now.
func (w *Window) RetryAfter(key string) time.Duration {
	if w == nil || w.limit <= 0 {
		return 0
	}
	now := w.now()
	w.mu.Lock()
	defer w.mu.Unlock()
	var live []time.Time
	for _, t := range w.hits[key] {
		if t.After(now.Add(-w.period)) {
			live = append(live, t)
		}
	}
	if len(live) < w.limit {
		return 0
	}
	return live[len(live)-w.limit].Add(w.period).Sub(now)
}
