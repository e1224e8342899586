// Package ratelimiter throttles inbound broker requests with token buckets.
//
// A Limiter holds one bucket shared by every client and, optionally, one
// bucket per client key (the adapter uses the connection id). A request is
// admitted only when both buckets have a token.
package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config sets sustained rates (requests per second) and burst capacities.
// A zero rate disables that tier.
type Config struct {
	RequestsPerSecond uint
	Burst             uint

	PerClientRequestsPerSecond uint
	PerClientBurst             uint
}

// Limiter is safe for concurrent use.
type Limiter struct {
	global *rate.Limiter

	clientRate  rate.Limit
	clientBurst int

	mu      sync.Mutex
	clients map[string]*rate.Limiter
}

// New returns a Limiter for cfg. A burst of zero defaults to twice the rate.
func New(cfg Config) *Limiter {
	l := &Limiter{
		global:  newBucket(cfg.RequestsPerSecond, cfg.Burst),
		clients: make(map[string]*rate.Limiter),
	}
	if cfg.PerClientRequestsPerSecond > 0 {
		l.clientRate = rate.Limit(cfg.PerClientRequestsPerSecond)
		l.clientBurst = burstFor(cfg.PerClientRequestsPerSecond, cfg.PerClientBurst)
	}
	return l
}

func newBucket(rps, burst uint) *rate.Limiter {
	if rps == 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rps), burstFor(rps, burst))
}

func burstFor(rps, burst uint) int {
	if burst == 0 {
		return int(rps * 2)
	}
	return int(burst)
}

// Allow reports whether a request from client may proceed now, consuming
// a token from each tier when it does. It never blocks.
func (l *Limiter) Allow(client string) bool {
	cl := l.client(client)
	if cl == nil {
		return l.global.Allow()
	}

	// Take the per-client token first so a throttled client does not drain
	// the shared bucket. Both tiers see the same instant so a cancelled
	// reservation hands its token back.
	now := time.Now()
	r := cl.ReserveN(now, 1)
	if !r.OK() || r.DelayFrom(now) > 0 {
		r.CancelAt(now)
		return false
	}
	if !l.global.AllowN(now, 1) {
		r.CancelAt(now)
		return false
	}
	return true
}

// Wait blocks until both tiers admit a request from client or ctx ends.
func (l *Limiter) Wait(ctx context.Context, client string) error {
	if cl := l.client(client); cl != nil {
		if err := cl.Wait(ctx); err != nil {
			return err
		}
	}
	return l.global.Wait(ctx)
}

// Forget drops the per-client bucket of client.
func (l *Limiter) Forget(client string) {
	l.mu.Lock()
	delete(l.clients, client)
	l.mu.Unlock()
}

// Clients returns the number of tracked per-client buckets.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Tokens returns the tokens left in the shared bucket.
func (l *Limiter) Tokens() float64 {
	return l.global.Tokens()
}

// SetLimit changes the shared sustained rate. Zero removes the limit.
func (l *Limiter) SetLimit(requestsPerSecond uint) {
	if requestsPerSecond == 0 {
		l.global.SetLimit(rate.Inf)
		return
	}
	l.global.SetLimit(rate.Limit(requestsPerSecond))
	if l.global.Burst() == 0 {
		l.global.SetBurst(int(requestsPerSecond * 2))
	}
}

func (l *Limiter) client(key string) *rate.Limiter {
	if l.clientRate == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	cl, ok := l.clients[key]
	if !ok {
		cl = rate.NewLimiter(l.clientRate, l.clientBurst)
		l.clients[key] = cl
	}
	return cl
}
