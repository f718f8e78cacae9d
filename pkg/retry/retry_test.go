package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "weiboharvest/pkg/errors"
	"weiboharvest/pkg/logger"
	"weiboharvest/pkg/ratelimit"
)

func TestLinearBackoff(t *testing.T) {
	lb := &LinearBackoff{BaseDelay: 5 * time.Second, Increment: 5 * time.Second}

	assert.Equal(t, time.Duration(0), lb.NextDelay(0))
	assert.Equal(t, 5*time.Second, lb.NextDelay(1))
	assert.Equal(t, 10*time.Second, lb.NextDelay(2))
	assert.Equal(t, 25*time.Second, lb.NextDelay(5))

	capped := &LinearBackoff{BaseDelay: time.Second, Increment: time.Second, MaxDelay: 3 * time.Second}
	assert.Equal(t, 3*time.Second, capped.NextDelay(10))
}

func TestConstantBackoff(t *testing.T) {
	cb := &ConstantBackoff{Delay: 2 * time.Second}
	assert.Equal(t, 2*time.Second, cb.NextDelay(1))
	assert.Equal(t, 2*time.Second, cb.NextDelay(7))
}

func TestWaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Wait(ctx, 0), context.Canceled)
	assert.NoError(t, Wait(context.Background(), 0))
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(func() error {
		attempts++
		if attempts < 3 {
			return errs.New(errs.ErrorTypeServerError, 503, "unavailable")
		}
		return nil
	}, &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		Context:     context.Background(),
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoMaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	err := Do(func() error {
		attempts++
		return errs.New(errs.ErrorTypeNetwork, 0, "reset")
	}, &Config{MaxAttempts: 2, Context: context.Background()})

	require.Error(t, err)
	assert.True(t, errs.IsNetwork(err), "the last error stays matchable")
	assert.Equal(t, 2, attempts)
}

func TestDoDoesNotRetryRateLimit(t *testing.T) {
	attempts := 0
	err := Do(func() error {
		attempts++
		return errs.New(errs.ErrorTypeRateLimit, errs.CodeUserRateLimit, "User requests out of rate limit!")
	}, &Config{MaxAttempts: 5, Context: context.Background()})

	assert.True(t, errs.IsRateLimit(err))
	assert.Equal(t, 1, attempts)
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Do(func() error {
		attempts++
		cancel()
		return errs.New(errs.ErrorTypeServerError, 500, "boom")
	}, &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: time.Hour},
		Context:     ctx,
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(func() (int64, error) {
		calls++
		if calls == 1 {
			return 0, errs.New(errs.ErrorTypeNotFound, 404, "missing")
		}
		return 42, nil
	}, &Config{MaxAttempts: 3, Context: context.Background()})

	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

func TestTypedBudget(t *testing.T) {
	budget := &TypedBudget{
		Limits: map[errs.ErrorType]int{
			errs.ErrorTypeNetwork:     1,
			errs.ErrorTypeServerError: 2,
		},
		Backoffs: map[errs.ErrorType]BackoffStrategy{
			errs.ErrorTypeServerError: &LinearBackoff{BaseDelay: time.Second, Increment: time.Second},
		},
	}
	netErr := errs.New(errs.ErrorTypeNetwork, 0, "eof")
	srvErr := errs.New(errs.ErrorTypeServerError, 502, "bad gateway")

	assert.True(t, budget.RetryIf(netErr))
	assert.Equal(t, time.Duration(0), budget.DelayFor(netErr))
	assert.False(t, budget.RetryIf(netErr), "only one reconnect")

	// server errors keep their own count
	assert.True(t, budget.RetryIf(srvErr))
	assert.Equal(t, time.Second, budget.DelayFor(srvErr))
	assert.True(t, budget.RetryIf(srvErr))
	assert.Equal(t, 2*time.Second, budget.DelayFor(srvErr))
	assert.False(t, budget.RetryIf(srvErr))

	assert.False(t, budget.RetryIf(errors.New("untyped")))
	assert.Equal(t, 2, budget.Attempts(errs.ErrorTypeServerError))
}

type fakeFetcher struct {
	snap  *ratelimit.Snapshot
	err   error
	calls int
}

func (f *fakeFetcher) RateLimitStatus(ctx context.Context) (*ratelimit.Snapshot, error) {
	f.calls++
	return f.snap, f.err
}

func TestPolicyComputeWait(t *testing.T) {
	clock := func() time.Time { return time.Date(2024, 5, 1, 9, 59, 0, 0, time.UTC) }

	tests := []struct {
		name    string
		fetcher *fakeFetcher
		want    time.Duration
	}{
		{
			name:    "headroom waits one polling interval",
			fetcher: &fakeFetcher{snap: &ratelimit.Snapshot{RemainingIPHits: 500, RemainingUserHits: 20, ResetTimeInSeconds: 900}},
			want:    time.Second,
		},
		{
			name:    "exhausted user budget waits for reset",
			fetcher: &fakeFetcher{snap: &ratelimit.Snapshot{RemainingIPHits: 500, RemainingUserHits: 0, ResetTimeInSeconds: 30}},
			want:    31 * time.Second,
		},
		{
			name:    "status failure falls back to next hour",
			fetcher: &fakeFetcher{err: errs.New(errs.ErrorTypeRateLimit, errs.CodeIPRateLimit, "IP requests out of rate limit!")},
			want:    70 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPolicy(tt.fetcher, DefaultPolicyConfig(), logger.NewNopLogger()).WithClock(clock)
			assert.Equal(t, tt.want, p.ComputeWait(context.Background()))
			assert.Equal(t, 1, tt.fetcher.calls, "status is queried exactly once")
		})
	}
}

func TestPolicyWithoutFetcher(t *testing.T) {
	clock := func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }
	p := NewPolicy(nil, DefaultPolicyConfig(), nil).WithClock(clock)
	assert.Equal(t, 30*time.Minute+10*time.Second, p.ComputeWait(context.Background()))
}

func TestPolicySleepLogsAndHonoursCancel(t *testing.T) {
	tl := logger.NewTestLogger()
	p := NewPolicy(&fakeFetcher{snap: &ratelimit.Snapshot{ResetTimeInSeconds: 600}}, DefaultPolicyConfig(), tl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	wait, err := p.Sleep(ctx, "search/topics.json")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 601*time.Second, wait)

	warns := tl.GetMessagesByLevel("WARN")
	require.Len(t, warns, 1)
	assert.Equal(t, "search/topics.json", warns[0].Fields["endpoint"])
	assert.Equal(t, "reset", warns[0].Fields["reason"])
}
