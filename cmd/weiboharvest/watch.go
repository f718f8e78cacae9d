package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"weiboharvest/internal/runner"
	"weiboharvest/internal/scheduler"
	"weiboharvest/pkg/metrics"
	"weiboharvest/pkg/state"
	"weiboharvest/pkg/ui"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the configured harvests on an interval",
	Long: `Run every configured harvest, wait for the interval and repeat until
interrupted. Failed cycles are retried sooner with exponential backoff;
configuration errors stop the loop.

When metrics are enabled a Prometheus endpoint is served on the
configured address for as long as the loop runs.`,
	Example: `  # Harvest every 15 minutes
  weiboharvest watch --type timeline --collection home --incremental --interval 15m`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "time between harvest cycles")
	watchCmd.Flags().StringVarP(&harvestType, "type", "t", "", "harvest type (timeline, topic_search)")
	watchCmd.Flags().StringVar(&harvestQuery, "query", "", "search query for topic_search")
	watchCmd.Flags().StringVar(&harvestCollection, "collection", "", "collection id for timeline harvests")
	watchCmd.Flags().BoolVarP(&harvestIncremental, "incremental", "i", false, "only collect posts newer than the last run")
}

func runWatch(cmd *cobra.Command, args []string) error {
	extra := requestFlag()
	if extra == nil {
		extra = map[string]interface{}{}
	}
	extra["interval"] = watchInterval

	cfg, log, err := setup(extra)
	if err != nil {
		return err
	}
	if len(cfg.Harvests) == 0 {
		ui.PrintWarning("Nothing to harvest", "pass --type or list harvests in the config file")
		return nil
	}
	if err := resolveToken(cfg, log); err != nil {
		return err
	}

	ctx, stop := commandContext(cmd)
	defer stop()

	store, err := state.Open(&cfg.Harvest, log)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Address); err != nil {
				log.WithError(err).Error("Metrics listener stopped")
			}
		}()
		ui.PrintInfo("Metrics", cfg.Metrics.Address+"/metrics")
	}

	cycle := runner.NewCycle(cfg, runner.ClientFactory(cfg, log), store, log)
	run := func(ctx context.Context) error {
		results := runner.RunAll(ctx, cfg.Harvest.Concurrency, cfg.Harvests, cycle.Run, log)
		ui.PrintSummary(summaryRows(results))
		return runner.Errors(results)
	}

	ui.PrintHighlight("[WATCHING]")
	ui.PrintInfo("Interval", cfg.Harvest.Interval.String())
	return scheduler.New(cfg.Harvest.Interval, run, log).Run(ctx)
}
