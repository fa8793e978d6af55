package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Limiter spaces successive operations at least interval apart, stretched by
// a random share of up to jitter*interval. The first Wait never blocks, so a
// single page fetch costs no delay. Safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	jitter   float64
	last     time.Time
}

// NewLimiter creates a limiter allowing rps operations per second. rps <= 0
// disables limiting. jitter is clamped to [0, 1].
func NewLimiter(rps float64, jitter float64) *Limiter {
	jitter = min(max(jitter, 0), 1)
	if rps <= 0 {
		return &Limiter{jitter: jitter}
	}
	return &Limiter{
		interval: time.Duration(float64(time.Second) / rps),
		jitter:   jitter,
	}
}

// Interval reports the base spacing between operations.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the next operation may start, or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.interval <= 0 {
		return nil
	}

	l.mu.Lock()
	now := time.Now()
	slot := now
	if !l.last.IsZero() {
		gap := l.interval + time.Duration(float64(l.interval)*l.jitter*rand.Float64())
		if next := l.last.Add(gap); next.After(now) {
			slot = next
		}
	}
	// Reserve the slot before sleeping so concurrent callers queue behind it.
	l.last = slot
	l.mu.Unlock()

	delay := slot.Sub(now)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Stop is kept for callers that defer it; the limiter holds no resources.
func (l *Limiter) Stop() {}
