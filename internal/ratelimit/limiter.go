package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces requests to a model provider.
type Limiter struct {
	limiter *rate.Limiter
	enabled bool
	mu      sync.RWMutex

	totalRequests   int64
	delayedRequests int64
	totalWait       time.Duration
}

// Config holds rate limiter configuration.
type Config struct {
	Enabled           bool
	RequestsPerMinute int
	BurstSize         int
}

// DefaultConfig returns the default rate limiter configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		RequestsPerMinute: 30,
		BurstSize:         3,
	}
}

// NewLimiter creates a new rate limiter with the given configuration.
// A non-positive RequestsPerMinute disables limiting.
func NewLimiter(cfg Config) *Limiter {
	burst := cfg.BurstSize
	if burst < 1 {
		burst = 1
	}
	every := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		every = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}
	return &Limiter{
		limiter: rate.NewLimiter(every, burst),
		enabled: cfg.Enabled && cfg.RequestsPerMinute > 0,
	}
}

// Wait blocks until a request slot is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || !l.isEnabled() {
		return nil
	}

	r := l.limiter.Reserve()
	if !r.OK() {
		return fmt.Errorf("rate limit exceeded: burst too small")
	}
	delay := r.Delay()

	l.mu.Lock()
	l.totalRequests++
	if delay > 0 {
		l.delayedRequests++
		l.totalWait += delay
	}
	l.mu.Unlock()

	if delay == 0 {
		return nil
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
		r.Cancel()
		return fmt.Errorf("rate limit: would wait %v beyond the request deadline", delay.Round(time.Second))
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

// Stats holds rate limiter statistics.
type Stats struct {
	Enabled         bool
	TotalRequests   int64
	DelayedRequests int64
	TotalWait       time.Duration
}

// Stats returns rate limiter statistics.
func (l *Limiter) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return Stats{
		Enabled:         l.enabled,
		TotalRequests:   l.totalRequests,
		DelayedRequests: l.delayedRequests,
		TotalWait:       l.totalWait,
	}
}

// SetEnabled enables or disables the rate limiter.
func (l *Limiter) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

func (l *Limiter) isEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled
}
