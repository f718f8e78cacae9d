// Package ratelimit paces outgoing API calls and describes the vendor's
// rate-limit budget.
//
// TokenBucket spaces calls below the hourly quota using golang.org/x/time/rate.
// Snapshot mirrors the account/rate_limit_status response and UntilNextWindow
// computes the wall-clock fallback used when that response is unavailable.
package ratelimit
