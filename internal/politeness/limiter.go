// Package politeness applies optional per-host request rate limiting
// between admission and dispatch.
package politeness

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds rate limiter settings. RequestsPerSecond <= 0 disables
// limiting entirely.
type Config struct {
	RequestsPerSecond float64
	Burst             int
	// MaxDelay bounds how long a submission may be held back. A
	// reservation further out than this fails the submission instead of
	// blocking, keeping submit's non-blocking contract.
	MaxDelay time.Duration
}

// Limiter manages independent token buckets per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	cfg      Config
}

// New creates a Limiter. Returns nil when limiting is disabled; a nil
// Limiter admits everything.
func New(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		cfg:      cfg,
	}
}

// Admit reserves a token for the URL's host, sleeping out a reservation
// delay up to MaxDelay. It reports whether the request may proceed.
func (l *Limiter) Admit(rawURL string) bool {
	if l == nil {
		return true
	}

	host := hostOf(rawURL)
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	res := limiter.Reserve()
	if !res.OK() {
		return false
	}
	delay := res.Delay()
	if delay > l.cfg.MaxDelay {
		res.Cancel()
		return false
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	return true
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
