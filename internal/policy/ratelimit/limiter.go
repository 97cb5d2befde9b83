// Package ratelimit implements per-host token buckets used as the crawler's
// politeness policy.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/realtime-job-crawler/internal/metrics"
)

// HostLimit overrides the default bucket for one host.
type HostLimit struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	// Jitter adds a random pause of up to this long after each token so
	// request spacing is not perfectly regular.
	Jitter time.Duration
	Hosts  map[string]HostLimit
}

// Limiter manages per-host rate limits and implements crawler.Policy.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	jitter       time.Duration
	hosts        map[string]HostLimit
}

// New creates a new Limiter. A non-positive rate disables limiting.
func New(cfg Config) *Limiter {
	hosts := make(map[string]HostLimit, len(cfg.Hosts))
	for h, lim := range cfg.Hosts {
		hosts[strings.ToLower(h)] = lim
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  toLimit(cfg.DefaultRPS),
		defaultBurst: toBurst(cfg.DefaultBurst),
		jitter:       cfg.Jitter,
		hosts:        hosts,
	}
}

// Wait blocks until a token is available for the URL's host, respecting the context.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	limiter := l.limiterFor(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if l.jitter > 0 {
		pause := rand.N(l.jitter) //nolint:gosec // spacing jitter, not security sensitive
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit wait: %w", ctx.Err())
		case <-timer.C:
		}
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

func (l *Limiter) limiterFor(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[host]
	if ok {
		return limiter
	}
	r, burst := l.defaultRate, l.defaultBurst
	if override, ok := l.hosts[host]; ok {
		r, burst = toLimit(override.RPS), toBurst(override.Burst)
	}
	limiter = rate.NewLimiter(r, burst)
	l.limiters[host] = limiter
	return limiter
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

func toBurst(burst int) int {
	if burst <= 0 {
		return 1
	}
	return burst
}
