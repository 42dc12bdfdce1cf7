package signal

import (
	"sync"
	"time"

	"github.com/dkeye/CodeRoom/internal/core"
)

// RateLimiter is a sliding-window counter per connection.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[core.ConnectionID][]time.Time
	limit    int
	interval time.Duration
}

// NewRateLimiter returns nil when limit or interval is not positive.
func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	if limit <= 0 || interval <= 0 {
		return nil
	}
	return &RateLimiter{
		history:  make(map[core.ConnectionID][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *RateLimiter) Allow(id core.ConnectionID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}
	rl.history[id] = append(fresh, now)
	return true
}

func (rl *RateLimiter) Forget(id core.ConnectionID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, id)
}
