package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// FixedWindowLimiter is an in-memory fixed-window limiter. Windows start on
// the first counted request; expired windows are reaped by Sweep.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	rules   Rules
	windows map[string]*window
	now     func() time.Time
}

// NewFixedWindowLimiter creates an in-memory limiter with the given rules.
func NewFixedWindowLimiter(rules Rules) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		rules:   rules,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (l *FixedWindowLimiter) Check(_ context.Context, identifier string, kind Kind) (Result, error) {
	rule, ok := l.rules[kind]
	if !ok || rule.Capacity <= 0 {
		return Result{Allowed: true, Remaining: -1}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := identifier + ":" + string(kind)

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(rule.Window)}
		l.windows[key] = w
	}

	if w.count >= rule.Capacity {
		return Result{Allowed: false, Remaining: 0, ResetAt: w.resetAt}, nil
	}

	w.count++
	return Result{
		Allowed:   true,
		Remaining: rule.Capacity - w.count,
		ResetAt:   w.resetAt,
	}, nil
}

// Sweep drops windows whose period has fully elapsed and returns how many
// were removed.
func (l *FixedWindowLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}
