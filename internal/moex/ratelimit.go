package moex

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces a minimum spacing between upstream requests.
type RateLimiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	last        time.Time
}

func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	return &RateLimiter{minInterval: minInterval}
}

// Wait blocks until the next request slot, honoring context cancellation.
func (l *RateLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := time.Now()
	next := l.last.Add(l.minInterval)
	if next.Before(now) {
		next = now
	}
	l.last = next
	l.mu.Unlock()

	wait := time.Until(next)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
