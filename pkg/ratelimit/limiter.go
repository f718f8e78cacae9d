package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for client-side request pacing
type Limiter interface {
	// Allow reports whether a request may be issued right now
	Allow() bool
	// Wait blocks until a request may be issued or ctx is done
	Wait(ctx context.Context) error
	// Reset refills the limiter to its burst size
	Reset()
}

// TokenBucket paces requests with a token bucket refilled continuously at
// an hourly rate. It is safe for concurrent use.
type TokenBucket struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	limiter *rate.Limiter
}

// NewTokenBucket creates a limiter allowing requestsPerHour requests per
// hour with bursts of up to burst requests.
func NewTokenBucket(requestsPerHour, burst int) *TokenBucket {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if requestsPerHour > 0 {
		limit = rate.Every(time.Hour / time.Duration(requestsPerHour))
	}
	return &TokenBucket{
		limit:   limit,
		burst:   burst,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Allow checks if a request can proceed without waiting
func (tb *TokenBucket) Allow() bool {
	return tb.current().Allow()
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.current().Wait(ctx)
}

// Reset replaces the bucket with a full one
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.limiter = rate.NewLimiter(tb.limit, tb.burst)
}

// Interval returns the steady-state spacing between requests
func (tb *TokenBucket) Interval() time.Duration {
	if tb.limit == rate.Inf {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(tb.limit))
}

func (tb *TokenBucket) current() *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.limiter
}

// Unlimited returns a limiter that never blocks
func Unlimited() *TokenBucket {
	return NewTokenBucket(0, 1)
}
