// Package ratelimit implements token bucket limits per fetch backend and host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/pagewatch/internal/metrics"
)

// Config holds one bucket's configuration. A non-positive RPS disables limiting.
type Config struct {
	RPS   float64
	Burst int
}

func (c Config) limiter() *rate.Limiter {
	r := rate.Limit(c.RPS)
	if c.RPS <= 0 {
		r = rate.Inf
	}
	burst := c.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(r, burst)
}

// Limiter manages one bucket per backend and host pair.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	defaults Config
	backends map[string]Config
}

// New creates a Limiter. backends overrides defaults per backend name.
func New(defaults Config, backends map[string]Config) *Limiter {
	if backends == nil {
		backends = map[string]Config{}
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		defaults: defaults,
		backends: backends,
	}
}

// Wait blocks until backend may hit the host of rawURL, respecting the context.
func (l *Limiter) Wait(ctx context.Context, backend, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = strings.ToLower(u.Hostname())
	}
	key := backend + "|" + host

	l.mu.Lock()
	limiter, exists := l.limiters[key]
	if !exists {
		cfg, ok := l.backends[backend]
		if !ok {
			cfg = l.defaults
		}
		limiter = cfg.limiter()
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// An immediately available token is not a delay.
	if duration := time.Since(start); duration > time.Millisecond {
		metrics.ObserveRateLimitDelay(backend, duration)
	}
	return nil
}
