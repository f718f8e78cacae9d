package retry

import (
	"context"
	"math/rand"
	"time"

	errs "weiboharvest/pkg/errors"
)

// BackoffStrategy defines the interface for different backoff strategies
type BackoffStrategy interface {
	// NextDelay returns the delay before the given retry (1-based)
	NextDelay(attempt int) time.Duration
	// Reset resets the backoff strategy to initial state
	Reset()
}

// LinearBackoff grows the delay by Increment on every attempt:
// BaseDelay, BaseDelay+Increment, BaseDelay+2*Increment...
type LinearBackoff struct {
	BaseDelay time.Duration
	Increment time.Duration
	// MaxDelay caps the delay; zero means uncapped
	MaxDelay time.Duration
	// JitterFactor adds randomness (0.0 to 1.0)
	JitterFactor float64
}

// NextDelay calculates the next delay with linear backoff
func (lb *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(lb.BaseDelay + lb.Increment*time.Duration(attempt-1))
	if lb.MaxDelay > 0 && delay > float64(lb.MaxDelay) {
		delay = float64(lb.MaxDelay)
	}

	if lb.JitterFactor > 0 {
		jitter := delay * lb.JitterFactor
		delay += (rand.Float64() * 2 * jitter) - jitter
	}
	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// Reset is a no-op; linear backoff keeps no state
func (lb *LinearBackoff) Reset() {}

// ConstantBackoff implements constant delay backoff
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns a constant delay
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// Reset resets the backoff (no-op for constant backoff)
func (cb *ConstantBackoff) Reset() {}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TypedBudget retries each error type against its own limit and backoff.
// Consecutive failures of one type do not consume the budget of another,
// so a reconnect followed by a 503 still gets the full 5xx allowance.
// A TypedBudget tracks counts for a single call and must not be shared.
type TypedBudget struct {
	Limits   map[errs.ErrorType]int
	Backoffs map[errs.ErrorType]BackoffStrategy

	counts map[errs.ErrorType]int
}

// RetryIf consumes one retry of err's type and reports whether one was left
func (b *TypedBudget) RetryIf(err error) bool {
	if b.counts == nil {
		b.counts = make(map[errs.ErrorType]int)
	}
	t := errs.TypeOf(err)
	limit, ok := b.Limits[t]
	if !ok || b.counts[t] >= limit {
		return false
	}
	b.counts[t]++
	return true
}

// DelayFor returns the delay before retrying err, scaled by how many
// errors of the same type this call has seen.
func (b *TypedBudget) DelayFor(err error) time.Duration {
	t := errs.TypeOf(err)
	strategy, ok := b.Backoffs[t]
	if !ok {
		return 0
	}
	return strategy.NextDelay(b.counts[t])
}

// Attempts returns how many retries of type t have been consumed
func (b *TypedBudget) Attempts(t errs.ErrorType) int {
	return b.counts[t]
}
