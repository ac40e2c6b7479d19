// Package ratelimit implements a token bucket limiter that paces requests per host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/gamejobs-crawler/internal/metrics"
)

// Limiter manages per-host pacing.
type Limiter struct {
	mu            sync.Mutex
	limiters      map[string]*rate.Limiter
	hostIntervals map[string]time.Duration
	defaultRate   rate.Limit
	defaultBurst  int
}

// Config holds limiter configuration. An interval of zero disables pacing.
type Config struct {
	DefaultInterval time.Duration
	DefaultBurst    int
	// HostIntervals overrides the interval for specific hostnames.
	HostIntervals map[string]time.Duration
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	hosts := make(map[string]time.Duration, len(cfg.HostIntervals))
	for host, interval := range cfg.HostIntervals {
		hosts[strings.ToLower(host)] = interval
	}
	return &Limiter{
		limiters:      make(map[string]*rate.Limiter),
		hostIntervals: hosts,
		defaultRate:   limitFor(cfg.DefaultInterval),
		defaultBurst:  burst,
	}
}

// SetInterval sets the pacing interval for host. It replaces any limiter already built for it.
func (l *Limiter) SetInterval(host string, interval time.Duration) {
	host = strings.ToLower(host)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hostIntervals[host] = interval
	delete(l.limiters, host)
}

// Wait blocks until a token is available for rawURL's host, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	domain := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		domain = strings.ToLower(u.Hostname())
	}
	limiter := l.limiterFor(domain)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(domain, waited)
	}
	return nil
}

func (l *Limiter) limiterFor(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, exists := l.limiters[domain]
	if exists {
		return limiter
	}
	r := l.defaultRate
	if interval, ok := l.hostIntervals[domain]; ok {
		r = limitFor(interval)
	}
	limiter = rate.NewLimiter(r, l.defaultBurst)
	l.limiters[domain] = limiter
	return limiter
}

func limitFor(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}
