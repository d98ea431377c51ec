// Package ratelimiter throttles how fast the engine admits new connections.
package ratelimiter

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimiter admits accepted connections using the token bucket algorithm.
//
// This wraps golang.org/x/time/rate:
//  1. Tokens are added at AcceptRate per second
//  2. Every accepted connection consumes one token
//  3. A connection arriving with the bucket empty is shed (closed at once)
//  4. Burst lets a short spike of connections through above the rate
//
// The engine never waits for a token: the dispatcher must not stall, so the
// only decision is admit or shed.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter  *rate.Limiter
	enabled  bool
	rejected atomic.Uint64
}

// New creates a limiter admitting connsPerSecond connections per second with
// the given burst.
//
// Special cases:
//   - connsPerSecond = 0: unlimited, Allow always admits
//   - burst = 0: defaults to connsPerSecond (one second worth of tokens)
//
// Example:
//
//	// Admit 500 conn/s sustained, spikes of up to 1000
//	limiter := New(500, 1000)
func New(connsPerSecond, burst uint) *RateLimiter {
	if connsPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = connsPerSecond
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(connsPerSecond), int(burst)),
		enabled: true,
	}
}

// Allow consumes a token and reports whether the connection is admitted.
// Denials are counted.
func (r *RateLimiter) Allow() bool {
	if r.limiter.Allow() {
		return true
	}
	r.rejected.Add(1)
	return false
}

// Enabled reports whether the limiter restricts anything.
func (r *RateLimiter) Enabled() bool {
	return r.enabled
}

// Rejected returns the number of connections shed so far.
func (r *RateLimiter) Rejected() uint64 {
	return r.rejected.Load()
}
