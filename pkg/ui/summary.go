package ui

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"weiboharvest/pkg/ratelimit"
)

// Row is one line of a harvest summary
type Row struct {
	Harvest   string
	Type      string
	Harvested int
	New       int
	Pages     int
	MaxID     *int64
	Duration  time.Duration
	Cancelled bool
	Err       error
}

func (r Row) status() string {
	switch {
	case r.Err != nil:
		return Red("failed: " + r.Err.Error())
	case r.Cancelled:
		return Yellow("cancelled")
	default:
		return Green("ok")
	}
}

// PrintSummary prints one aligned line per harvest
func PrintSummary(rows []Row) {
	if len(rows) == 0 {
		PrintWarning("No harvests ran")
		return
	}

	tw := tabwriter.NewWriter(Writer(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HARVEST\tTYPE\tPOSTS\tNEW\tPAGES\tMAX ID\tTIME\tSTATUS")
	for _, r := range rows {
		maxID := "-"
		if r.MaxID != nil {
			maxID = strconv.FormatInt(*r.MaxID, 10)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\n",
			r.Harvest, r.Type, r.Harvested, r.New, r.Pages, maxID,
			r.Duration.Round(time.Millisecond), r.status())
	}
	tw.Flush()
}

// PrintSnapshot prints the remaining API budget
func PrintSnapshot(s ratelimit.Snapshot) {
	PrintInfo("Remaining IP hits", strconv.Itoa(s.RemainingIPHits))
	PrintInfo("Remaining user hits", strconv.Itoa(s.RemainingUserHits))
	PrintInfo("Window resets in", s.ResetIn().String())
	if s.HasHeadroom() {
		PrintSuccess("Budget available")
	} else {
		PrintWarning("Budget exhausted until the window resets")
	}
}
