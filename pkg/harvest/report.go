package harvest

import (
	"time"

	"weiboharvest/pkg/archive"
)

// Report converts a cycle result into the archive report format
func (r *Result) Report(started, finished time.Time, cycleErr error) *archive.Report {
	rep := &archive.Report{
		Harvest:    r.Target.StateKey(),
		Type:       r.Target.Kind(),
		Seed:       r.Target.Seed(),
		SinceID:    r.SinceID,
		MaxID:      r.MaxID,
		Harvested:  r.Harvested,
		New:        r.New,
		ByType:     r.ByType,
		Pages:      r.Pages,
		StartedAt:  started,
		FinishedAt: finished,
		Cancelled:  r.Cancelled,
	}
	if cycleErr != nil {
		rep.Error = cycleErr.Error()
	}
	return rep
}
