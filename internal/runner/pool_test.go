package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"weiboharvest/pkg/config"
	errs "weiboharvest/pkg/errors"
	"weiboharvest/pkg/harvest"
	"weiboharvest/pkg/logger"
)

func requests(n int) []config.HarvestRequest {
	reqs := make([]config.HarvestRequest, n)
	for i := range reqs {
		reqs[i] = config.HarvestRequest{Type: "topic_search", Query: string(rune('a' + i))}
	}
	return reqs
}

func TestRunAllKeepsRequestOrder(t *testing.T) {
	var active, peak int32
	process := func(ctx context.Context, job Job) JobResult {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(time.Duration(10-job.Index) * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return JobResult{Result: &harvest.Result{Harvested: job.Index}}
	}

	results := RunAll(context.Background(), 3, requests(8), process, logger.NewNopLogger())

	require.Len(t, results, 8)
	for i, r := range results {
		assert.Equal(t, i, r.Job.Index)
		assert.Equal(t, i, r.Result.Harvested)
		assert.Positive(t, r.Duration)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestRunAllReportsErrors(t *testing.T) {
	boom := errors.New("boom")
	process := func(ctx context.Context, job Job) JobResult {
		if job.Index == 1 {
			return JobResult{Error: boom}
		}
		return JobResult{}
	}

	results := RunAll(context.Background(), 2, requests(3), process, nil)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Error)
	assert.ErrorIs(t, results[1].Error, boom)
	assert.NoError(t, results[2].Error)
}

func TestRunAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int32
	process := func(ctx context.Context, job Job) JobResult {
		atomic.AddInt32(&ran, 1)
		return JobResult{}
	}

	done := make(chan []JobResult)
	go func() { done <- RunAll(ctx, 2, requests(20), process, nil) }()

	select {
	case results := <-done:
		assert.Empty(t, results)
		assert.Zero(t, atomic.LoadInt32(&ran))
	case <-time.After(2 * time.Second):
		t.Fatal("RunAll did not return after cancellation")
	}
}

func TestRunAllKeepsResultOfCancelledJob(t *testing.T) {
	for i := 0; i < 200; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		process := func(ctx context.Context, job Job) JobResult {
			cancel()
			return JobResult{Result: &harvest.Result{Harvested: 7, Cancelled: true}}
		}

		results := RunAll(ctx, 1, requests(1), process, nil)
		cancel()

		require.Len(t, results, 1, "run %d", i)
		require.NotNil(t, results[0].Result)
		assert.True(t, results[0].Result.Cancelled)
		assert.Equal(t, 7, results[0].Result.Harvested)
	}
}

func TestWorkerPoolPassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")

	pool := NewWorkerPool(ctx, 0, func(ctx context.Context, job Job) JobResult {
		return JobResult{Error: errors.New(ctx.Value(key{}).(string))}
	}, nil)
	pool.Start()
	require.NoError(t, pool.Submit(Job{}))
	go pool.Stop()

	r := <-pool.Results()
	assert.EqualError(t, r.Error, "v")
}

func TestErrorsJoinsFailures(t *testing.T) {
	assert.NoError(t, Errors([]JobResult{{}, {}}))

	cfgErr := errs.Config("bad query")
	results := []JobResult{
		{Job: Job{Request: config.HarvestRequest{Type: "topic_search", Query: "a"}}},
		{Job: Job{Request: config.HarvestRequest{Type: "topic_search", Query: "b"}}, Error: cfgErr},
	}

	err := Errors(results)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "topic_search||b")
	assert.True(t, errs.IsConfig(err))
}
