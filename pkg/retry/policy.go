package retry

import (
	"context"
	"time"

	"weiboharvest/pkg/logger"
	"weiboharvest/pkg/ratelimit"
)

// StatusFetcher queries the vendor's rate-limit status endpoint
type StatusFetcher interface {
	RateLimitStatus(ctx context.Context) (*ratelimit.Snapshot, error)
}

// PolicyConfig holds the waits chosen by Policy
type PolicyConfig struct {
	// ShortWait is used when the budget still has headroom
	ShortWait time.Duration
	// ResetMargin is added to the reported reset time
	ResetMargin time.Duration
	// WindowMargin is added to the next-hour fallback
	WindowMargin time.Duration
}

// DefaultPolicyConfig returns the waits the vendor documentation suggests
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		ShortWait:    time.Second,
		ResetMargin:  time.Second,
		WindowMargin: 10 * time.Second,
	}
}

// Policy decides how long to sleep after the API reports a rate limit.
//
// The status endpoint is consulted first: if both the IP and user budgets
// have more than one call left the limit was per-resource and ShortWait is
// enough, otherwise the reported reset time plus ResetMargin is used. If the
// status query fails for any reason, the wait runs to the top of the next
// wall-clock hour plus WindowMargin. The status query is a single call; a
// rate limit on it falls through to the wall-clock estimate.
type Policy struct {
	fetcher StatusFetcher
	cfg     PolicyConfig
	now     func() time.Time
	log     logger.Logger
}

// NewPolicy creates a Policy. A nil fetcher always uses the wall-clock estimate.
func NewPolicy(fetcher StatusFetcher, cfg PolicyConfig, log logger.Logger) *Policy {
	return &Policy{
		fetcher: fetcher,
		cfg:     cfg,
		now:     time.Now,
		log:     logger.OrNop(log),
	}
}

// WithClock replaces the wall clock, for tests
func (p *Policy) WithClock(now func() time.Time) *Policy {
	p.now = now
	return p
}

// ComputeWait returns the time to sleep before retrying
func (p *Policy) ComputeWait(ctx context.Context) time.Duration {
	wait, reason := p.compute(ctx)
	p.log.DebugWithFields("rate limit wait computed", map[string]interface{}{
		"wait":   wait,
		"reason": reason,
	})
	return wait
}

func (p *Policy) compute(ctx context.Context) (time.Duration, string) {
	if p.fetcher != nil {
		snap, err := p.fetcher.RateLimitStatus(ctx)
		if err == nil && snap != nil {
			if snap.HasHeadroom() {
				return p.cfg.ShortWait, "headroom"
			}
			return snap.ResetIn() + p.cfg.ResetMargin, "reset"
		}
		if err != nil {
			p.log.WithError(err).Warn("rate limit status unavailable, waiting for next window")
		}
	}
	return ratelimit.UntilNextWindow(p.now()) + p.cfg.WindowMargin, "window"
}

// Sleep computes the wait, logs it for endpoint and blocks until it elapses
// or ctx is cancelled. It returns the wait and ctx's error on cancellation.
func (p *Policy) Sleep(ctx context.Context, endpoint string) (time.Duration, error) {
	wait, reason := p.compute(ctx)
	logger.LogRateLimit(p.log, endpoint, wait, reason)
	return wait, Wait(ctx, wait)
}
