package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded bool
	Category string
	Current  int
	Limit    int
	Reason   string
}

// Check compares the current count against the limit.
func Check(count int, limit *Limit) CheckResult {
	if !limit.active() {
		return CheckResult{}
	}
	if count >= limit.MaxRequests {
		return CheckResult{
			Exceeded: true,
			Current:  count,
			Limit:    limit.MaxRequests,
			Reason: fmt.Sprintf("rate limit exceeded: %d/%d messages in %s window",
				count, limit.MaxRequests, limit.Window),
		}
	}
	return CheckResult{}
}

type window struct {
	start time.Time
	count int
}

// Limiter counts messages per category in fixed windows.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	windows map[string]*window
	now     func() time.Time
}

// New creates a Limiter. A nil or empty config allows everything.
func New(cfg Config) *Limiter {
	return &Limiter{cfg: cfg, windows: make(map[string]*window), now: time.Now}
}

// Allow records one message of category and reports whether it is within
// the limit. Rejected messages are not counted.
func (l *Limiter) Allow(category string) CheckResult {
	limit := l.cfg.limitFor(category)
	if !limit.active() {
		return CheckResult{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.windows[category]
	if w == nil || now.Sub(w.start) >= limit.Window {
		w = &window{start: now}
		l.windows[category] = w
	}

	res := Check(w.count, limit)
	if res.Exceeded {
		res.Category = category
		return res
	}
	w.count++
	return CheckResult{}
}
