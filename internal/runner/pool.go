package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"weiboharvest/pkg/archive"
	"weiboharvest/pkg/config"
	"weiboharvest/pkg/harvest"
	"weiboharvest/pkg/logger"
)

// Job is one harvest request queued on the pool
type Job struct {
	Index   int
	Request config.HarvestRequest
}

// JobResult is the outcome of a Job
type JobResult struct {
	Job      Job
	Result   *harvest.Result
	Report   *archive.Report
	Archive  string
	Error    error
	Duration time.Duration
}

// ProcessFunc runs a single job
type ProcessFunc func(ctx context.Context, job Job) JobResult

// WorkerPool runs harvest jobs on a fixed number of goroutines. Each job
// gets its own client instance, so jobs for independent keys never share a
// request stream.
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan JobResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	process     ProcessFunc
	logger      logger.Logger
}

// NewWorkerPool creates a pool whose jobs are cancelled with parent
func NewWorkerPool(parent context.Context, numWorkers int, process ProcessFunc, log logger.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(parent)

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan JobResult, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		process:     process,
		logger:      logger.OrNop(log).WithField("component", "runner"),
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.InfoWithFields("Starting worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop waits for queued jobs to finish, then closes Results
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Debug("Worker pool stopped")
}

// Submit queues a job, blocking while the queue is full
func (wp *WorkerPool) Submit(job Job) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Results returns the channel results are delivered on. It must be drained
// until closed: every job that started sends its result, even after
// cancellation.
func (wp *WorkerPool) Results() <-chan JobResult {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		select {
		case <-wp.ctx.Done():
			wp.logger.DebugWithFields("Worker stopping - context cancelled", map[string]interface{}{
				"worker_id": id,
			})
			return
		default:
		}

		start := time.Now()
		result := wp.process(wp.ctx, job)
		result.Job = job
		result.Duration = time.Since(start)

		// a job that started always reports, cancelled or not
		wp.resultQueue <- result
	}
}

// RunAll runs every request on a pool of numWorkers and returns the results
// in request order. Requests that never ran because ctx was cancelled are
// absent.
func RunAll(ctx context.Context, numWorkers int, reqs []config.HarvestRequest, process ProcessFunc, log logger.Logger) []JobResult {
	pool := NewWorkerPool(ctx, numWorkers, process, log)
	pool.Start()

	go func() {
		defer pool.Stop()
		for i, req := range reqs {
			if err := pool.Submit(Job{Index: i, Request: req}); err != nil {
				return
			}
		}
	}()

	slots := make([]*JobResult, len(reqs))
	for r := range pool.Results() {
		slots[r.Job.Index] = &r
	}

	out := make([]JobResult, 0, len(reqs))
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// Errors joins the errors of all failed results, nil when every job
// succeeded
func Errors(results []JobResult) error {
	var failed []error
	for _, r := range results {
		if r.Error != nil {
			failed = append(failed, fmt.Errorf("%s: %w", r.Job.Request.Key(), r.Error))
		}
	}
	return errors.Join(failed...)
}
