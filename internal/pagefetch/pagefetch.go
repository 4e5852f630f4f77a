// Package pagefetch retrieves the markup of video-hosting pages for the
// canonicalizer. It has an external-process backend and an HTTP backend.
package pagefetch

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// Fetcher returns the raw text of the page at url. Fetches are single
// attempts; callers see the first failure.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Limiter paces requests per host with a token bucket.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewLimiter creates a Limiter. A non-positive rps disables pacing.
func NewLimiter(rps float64, burst int) *Limiter {
	r := rate.Limit(rps)
	if rps <= 0 {
		r = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{limiters: make(map[string]*rate.Limiter), rate: r, burst: burst}
}

// Wait blocks until a token for the host of rawURL is available.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Paced wraps a Fetcher so every fetch first waits on a Limiter.
type Paced struct {
	next    Fetcher
	limiter *Limiter
}

// NewPaced builds a Paced fetcher.
func NewPaced(next Fetcher, limiter *Limiter) *Paced {
	return &Paced{next: next, limiter: limiter}
}

// Fetch waits for the host's token then delegates.
func (p *Paced) Fetch(ctx context.Context, url string) (string, error) {
	if err := p.limiter.Wait(ctx, url); err != nil {
		return "", err
	}
	return p.next.Fetch(ctx, url)
}
