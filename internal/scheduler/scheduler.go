package scheduler

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	errs "weiboharvest/pkg/errors"
	"weiboharvest/pkg/logger"
)

// CycleFunc runs one harvest cycle over every configured request
type CycleFunc func(ctx context.Context) error

// Scheduler repeats harvest cycles. After a successful cycle it waits the
// configured interval; after a failed one it retries sooner, backing off
// exponentially up to the interval. Configuration errors stop the loop.
type Scheduler struct {
	interval time.Duration
	run      CycleFunc
	failure  backoff.BackOff
	logger   logger.Logger
}

// New creates a Scheduler running run every interval
func New(interval time.Duration, run CycleFunc, log logger.Logger) *Scheduler {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min(30*time.Second, interval)
	b.MaxInterval = interval
	b.Multiplier = 2
	b.MaxElapsedTime = 0 // Never stop retrying

	return &Scheduler{
		interval: interval,
		run:      run,
		failure:  b,
		logger:   logger.OrNop(log).WithField("component", "scheduler"),
	}
}

// WithFailureBackOff replaces the backoff used after failed cycles
func (s *Scheduler) WithFailureBackOff(b backoff.BackOff) *Scheduler {
	s.failure = b
	return s
}

// Run loops until ctx is cancelled or a cycle fails with a configuration
// error. Cancellation is not an error.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.LogComponentStart(s.logger, "scheduler", map[string]interface{}{"interval": s.interval})
	s.failure.Reset()

	for cycle := 1; ; cycle++ {
		err := s.run(ctx)
		if ctx.Err() != nil {
			logger.LogComponentStop(s.logger, "scheduler", "context cancelled")
			return nil
		}

		wait := s.interval
		switch {
		case err == nil:
			s.failure.Reset()
		case errs.IsConfig(err):
			logger.LogComponentStop(s.logger, "scheduler", "configuration error")
			return err
		default:
			if next := s.failure.NextBackOff(); next != backoff.Stop {
				wait = next
			}
			s.logger.WithError(err).WarnWithFields("Harvest cycle failed, retrying", map[string]interface{}{
				"cycle": cycle,
				"wait":  wait,
			})
		}

		s.logger.DebugWithFields("Waiting for next cycle", map[string]interface{}{
			"cycle": cycle,
			"wait":  wait,
		})

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.LogComponentStop(s.logger, "scheduler", "context cancelled")
			return nil
		case <-timer.C:
		}
	}
}
