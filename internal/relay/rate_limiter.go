package relay

import (
	"sync"
	"time"
)

// RateLimiter caps uploads per connection with a fixed one-minute window.
// The relay runs without one by default; deployments facing abusive mobile
// clients can enable it through configuration.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	clients map[string]*clientWindow
}

type clientWindow struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a limiter allowing limit uploads per minute per
// connection. A limit of zero or less disables it (Allow always true).
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		clients: make(map[string]*clientWindow),
	}
}

// Allow reports whether connID may send another upload right now.
func (rl *RateLimiter) Allow(connID string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	w, exists := rl.clients[connID]
	if !exists || now.Sub(w.windowStart) >= time.Minute {
		rl.clients[connID] = &clientWindow{count: 1, windowStart: now}
		return true
	}

	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}

// Cleanup drops windows idle for several minutes; call periodically from a
// background ticker if the limiter is enabled on a long-lived server.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for connID, w := range rl.clients {
		if now.Sub(w.windowStart) > 5*time.Minute {
			delete(rl.clients, connID)
		}
	}
}
