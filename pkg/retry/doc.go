// Package retry provides bounded retry loops and the rate-limit wait policy.
//
// Do runs an operation until it succeeds or a predicate rejects the error.
// TypedBudget gives every error type its own retry allowance and delay, which
// is how the transport bounds 404s, 5xx responses and reconnects separately:
//
//	budget := &retry.TypedBudget{
//	    Limits:   map[errs.ErrorType]int{errs.ErrorTypeNotFound: 3},
//	    Backoffs: map[errs.ErrorType]retry.BackoffStrategy{errs.ErrorTypeNotFound: &retry.ConstantBackoff{Delay: 2 * time.Second}},
//	}
//	err := retry.Do(op, &retry.Config{Context: ctx, RetryIf: budget.RetryIf, DelayFor: budget.DelayFor})
//
// Rate limits are never retried by Do. Policy computes how long to sleep
// from the vendor's rate-limit status, falling back to the next wall-clock
// hour when the status cannot be read.
package retry
