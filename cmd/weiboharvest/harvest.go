package main

import (
	"github.com/spf13/cobra"

	"weiboharvest/internal/runner"
	"weiboharvest/pkg/config"
	"weiboharvest/pkg/state"
	"weiboharvest/pkg/ui"
)

var (
	// Harvest command flags
	harvestType        string
	harvestQuery       string
	harvestCollection  string
	harvestIncremental bool
	harvestReplay      bool
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Run every configured harvest once",
	Long: `Run every harvest listed in the configuration file once, plus the one
described by --type when given.

Harvest types:
  timeline       the authenticated account's home timeline
  topic_search   posts matching --query

With --incremental only posts newer than the last run are collected and
the stored window is advanced. With --replay nothing is fetched: the
archives already on disk are read back and the window state is rebuilt
from them.`,
	Example: `  # Harvest the home timeline into the "home" collection
  weiboharvest harvest --type timeline --collection home --incremental

  # Harvest a topic search
  weiboharvest harvest --type topic_search --query golang

  # Run the harvests from the config file with four workers
  weiboharvest harvest -c weiboharvest.yaml --concurrency 4

  # Rebuild the window state from existing archives
  weiboharvest harvest --replay`,
	Args: cobra.NoArgs,
	RunE: runHarvest,
}

func init() {
	rootCmd.AddCommand(harvestCmd)

	harvestCmd.Flags().StringVarP(&harvestType, "type", "t", "", "harvest type (timeline, topic_search)")
	harvestCmd.Flags().StringVar(&harvestQuery, "query", "", "search query for topic_search")
	harvestCmd.Flags().StringVar(&harvestCollection, "collection", "", "collection id for timeline harvests")
	harvestCmd.Flags().BoolVarP(&harvestIncremental, "incremental", "i", false, "only collect posts newer than the last run")
	harvestCmd.Flags().BoolVar(&harvestReplay, "replay", false, "rebuild state from archives instead of fetching")
}

// requestFlag returns the harvest described on the command line, if any
func requestFlag() map[string]interface{} {
	if harvestType == "" {
		return nil
	}
	return map[string]interface{}{
		"harvest": config.HarvestRequest{
			Type:         harvestType,
			Query:        harvestQuery,
			CollectionID: harvestCollection,
			Incremental:  harvestIncremental,
		},
	}
}

func runHarvest(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(requestFlag())
	if err != nil {
		return err
	}
	if len(cfg.Harvests) == 0 {
		ui.PrintWarning("Nothing to harvest", "pass --type or list harvests in the config file")
		return nil
	}

	ctx, stop := commandContext(cmd)
	defer stop()

	store, err := state.Open(&cfg.Harvest, log)
	if err != nil {
		return err
	}
	defer store.Close()

	cycle := runner.NewCycle(cfg, runner.ClientFactory(cfg, log), store, log)
	process := cycle.Run
	if harvestReplay {
		process = cycle.Replay
		ui.PrintHighlight("[REPLAYING ARCHIVES]")
	} else {
		if err := resolveToken(cfg, log); err != nil {
			return err
		}
		ui.PrintHighlight("[HARVESTING]")
	}

	results := runner.RunAll(ctx, cfg.Harvest.Concurrency, cfg.Harvests, process, log)
	ui.PrintSummary(summaryRows(results))

	for _, r := range results {
		if r.Archive != "" {
			ui.PrintInfo("Archive", r.Archive)
		}
	}
	if ctx.Err() != nil {
		ui.PrintWarning("Interrupted, state kept at the last completed window")
	}
	return runner.Errors(results)
}

func summaryRows(results []runner.JobResult) []ui.Row {
	rows := make([]ui.Row, 0, len(results))
	for _, r := range results {
		row := ui.Row{
			Harvest:  harvestName(r.Job.Request),
			Type:     r.Job.Request.Type,
			Duration: r.Duration,
			Err:      r.Error,
		}
		if res := r.Result; res != nil {
			row.Harvested = res.Harvested
			row.New = res.New
			row.Pages = res.Pages
			row.MaxID = res.MaxID
			row.Cancelled = res.Cancelled
		}
		rows = append(rows, row)
	}
	return rows
}

func harvestName(req config.HarvestRequest) string {
	if req.Query != "" {
		return req.Query
	}
	return req.CollectionID
}
