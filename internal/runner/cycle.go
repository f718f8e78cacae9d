package runner

import (
	"context"
	"fmt"
	"time"

	"weiboharvest/pkg/archive"
	"weiboharvest/pkg/config"
	"weiboharvest/pkg/harvest"
	"weiboharvest/pkg/logger"
	"weiboharvest/pkg/paginate"
	"weiboharvest/pkg/retry"
	"weiboharvest/pkg/state"
	"weiboharvest/pkg/weibo"
	"weiboharvest/pkg/window"
)

// API is what a harvest cycle needs from a client instance
type API interface {
	paginate.Fetcher
	retry.StatusFetcher
}

// NewAPIFunc returns a fresh client instance
type NewAPIFunc func() (API, error)

// ClientFactory builds Weibo clients from cfg
func ClientFactory(cfg *config.Config, log logger.Logger) NewAPIFunc {
	return func() (API, error) {
		client, err := weibo.NewClient(weibo.OptionsFromConfig(cfg), log)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Cycle wires one harvest cycle: a client, the rate-limit policy, the
// pagination engine, the orchestrator and an archive writer.
type Cycle struct {
	cfg     *config.Config
	newAPI  NewAPIFunc
	tracker *window.Tracker
	logger  logger.Logger
}

// NewCycle creates a Cycle sharing store across all jobs
func NewCycle(cfg *config.Config, newAPI NewAPIFunc, store state.Store, log logger.Logger) *Cycle {
	log = logger.OrNop(log)
	return &Cycle{
		cfg:     cfg,
		newAPI:  newAPI,
		tracker: window.NewTracker(store, log),
		logger:  log,
	}
}

func (c *Cycle) orchestrator(api API) *harvest.Orchestrator {
	policy := retry.NewPolicy(api, retry.PolicyConfig{
		ShortWait:    c.cfg.Backoff.ShortWait,
		ResetMargin:  c.cfg.Backoff.ResetMargin,
		WindowMargin: c.cfg.Backoff.WindowMargin,
	}, c.logger)
	engine := paginate.New(api, policy, paginate.Options{
		TimelinePageSize:    c.cfg.Harvest.TimelinePageSize,
		SearchPageSize:      c.cfg.Harvest.SearchPageSize,
		SearchResultCeiling: c.cfg.Harvest.SearchResultCeiling,
	}, c.logger)
	return harvest.New(engine, c.tracker, c.logger)
}

// Run harvests job.Request into a new archive and saves its report. It fits
// ProcessFunc.
func (c *Cycle) Run(ctx context.Context, job Job) JobResult {
	out := JobResult{Job: job}
	started := time.Now()

	target, err := harvest.ParseTarget(job.Request)
	if err != nil {
		out.Error = err
		return out
	}

	api, err := c.newAPI()
	if err != nil {
		out.Error = fmt.Errorf("failed to create client: %w", err)
		return out
	}

	writer, err := archive.NewWriter(c.cfg.Harvest.ArchiveDir, target.StateKey(), c.logger)
	if err != nil {
		out.Error = err
		return out
	}

	result, runErr := c.orchestrator(api).Run(ctx, job.Request, writer)
	closeErr := writer.Close()
	out.Result = result
	out.Error = runErr
	if out.Error == nil && closeErr != nil {
		out.Error = closeErr
	}

	if result != nil && writer.Count() > 0 {
		out.Archive = writer.Path()
		out.Report = result.Report(started, time.Now(), out.Error)
		out.Report.Archive = writer.Path()
		if err := out.Report.Save(writer.Path()); err != nil {
			c.logger.WithError(err).Warn("Failed to save harvest report")
		}
	}
	return out
}

// Replay recomputes job.Request from the archives already on disk. It fits
// ProcessFunc.
func (c *Cycle) Replay(ctx context.Context, job Job) JobResult {
	out := JobResult{Job: job}

	target, err := harvest.ParseTarget(job.Request)
	if err != nil {
		out.Error = err
		return out
	}

	files, err := archive.Files(c.cfg.Harvest.ArchiveDir, target.StateKey())
	if err != nil {
		out.Error = err
		return out
	}

	// no client is needed to read archives
	orch := harvest.New(nil, c.tracker, c.logger)
	out.Result, out.Error = orch.Replay(ctx, job.Request, files)
	return out
}
