// Package ratelimit enforces the upstream API's fixed-window request quota.
//
// The upstream accounts requests in fixed windows rather than a sliding
// window or token bucket, so admission here mirrors that: the counter
// resets at window boundaries and bursts at a boundary are acceptable.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrQuotaExceeded is returned by Admit when the current window's quota is
// spent. Callers should retry after the window resets.
var ErrQuotaExceeded = errors.New("upstream request quota exceeded")

// Default quota matching the upstream API's documented accounting.
const (
	DefaultQuota  = 25
	DefaultWindow = 5 * time.Second
)

// Limiter is a fixed-window request counter shared by every component that
// issues upstream calls, including token refresh handshakes.
//
// Admission is best-effort under contention: concurrent callers racing the
// last slot of a window are served in lock-acquisition order, and losers
// get ErrQuotaExceeded rather than being queued.
type Limiter struct {
	mu          sync.Mutex
	quota       int
	window      time.Duration
	windowStart time.Time
	count       int

	now func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a Limiter admitting at most quota requests per window.
func New(quota int, window time.Duration, opts ...Option) *Limiter {
	if quota <= 0 {
		quota = DefaultQuota
	}
	if window <= 0 {
		window = DefaultWindow
	}

	l := &Limiter{
		quota:  quota,
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit records one upstream request against the current window.
// Returns ErrQuotaExceeded (wrapped with the time until reset) when the
// window's quota is already spent; the rejected request is not recorded.
func (l *Limiter) Admit() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}

	if l.count >= l.quota {
		retryAfter := l.window - now.Sub(l.windowStart)
		return fmt.Errorf("%w (retry in %s)", ErrQuotaExceeded, retryAfter.Round(time.Millisecond))
	}

	l.count++
	return nil
}

// RetryAfter returns the duration until the current window resets. Used by
// the HTTP boundary to populate Retry-After on 429 responses.
func (l *Limiter) RetryAfter() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := l.window - l.now().Sub(l.windowStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}
