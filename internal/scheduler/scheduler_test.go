package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	errs "weiboharvest/pkg/errors"
	"weiboharvest/pkg/logger"
)

func TestRunRetriesFailedCyclesWithBackOff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	run := func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) == 3 {
			cancel()
		}
		return errors.New("server error")
	}

	log := logger.NewTestLogger()
	s := New(time.Hour, run, log).WithFailureBackOff(backoff.NewConstantBackOff(time.Millisecond))

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.True(t, log.HasMessage("Harvest cycle failed, retrying"))
}

func TestRunWaitsIntervalAfterSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	run := func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}

	s := New(time.Hour, run, nil).WithFailureBackOff(backoff.NewConstantBackOff(time.Millisecond))
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRunRepeatsEveryInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	run := func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) == 4 {
			cancel()
		}
		return nil
	}

	require.NoError(t, New(time.Millisecond, run, nil).Run(ctx))
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestRunStopsOnConfigError(t *testing.T) {
	var calls int32
	run := func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.Join(errors.New("other"), errs.Config("unknown harvest type %q", "x"))
	}

	err := New(time.Millisecond, run, nil).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsConfig(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDefaultFailureBackOffCappedAtInterval(t *testing.T) {
	s := New(time.Minute, func(context.Context) error { return nil }, nil)
	b, ok := s.failure.(*backoff.ExponentialBackOff)
	require.True(t, ok)
	assert.Equal(t, time.Minute, b.MaxInterval)
	assert.Equal(t, time.Duration(0), b.MaxElapsedTime)
}
