// Package ratelimit throttles requests per host with a fixed inter-request delay.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/tdsharvest/internal/metrics"
)

// Limiter manages per-host token buckets.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// Config holds rate limiter configuration.
type Config struct {
	// Delay is the minimum spacing between requests to one host; <= 0 disables throttling.
	Delay time.Duration
	Burst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Wait blocks until a token is available for the URL's host, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	site := metrics.SanitizeSite(rawURL)
	l.mu.Lock()
	limiter, exists := l.limiters[site]
	if !exists {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[site] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(site, waited)
	}
	return nil
}
