package app

import (
	"sync"
	"time"

	"github.com/dkeye/Converse/internal/domain"
)

// RateLimiter is a sliding window of chat attempts per connection.
// A limit <= 0 disables it.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[domain.ConnHandle][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[domain.ConnHandle][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(h domain.ConnHandle) bool {
	if rl == nil || rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[h]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[h] = fresh
		return false
	}
	rl.history[h] = append(fresh, now)
	return true
}

// Forget drops the history of a closed connection.
func (rl *RateLimiter) Forget(h domain.ConnHandle) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	delete(rl.history, h)
	rl.mu.Unlock()
}
