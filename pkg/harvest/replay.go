package harvest

import (
	"context"
	"fmt"

	"weiboharvest/pkg/archive"
	"weiboharvest/pkg/config"
)

// Replay recomputes the counters of req from archived posts instead of the
// API. With an incremental request the window is moved to the newest
// archived id, which lets a harvest resume from archives written elsewhere.
func (o *Orchestrator) Replay(ctx context.Context, req config.HarvestRequest, paths []string) (*Result, error) {
	target, err := ParseTarget(req)
	if err != nil {
		return nil, err
	}

	since, err := o.tracker.ResolveSinceID(ctx, target.StateKey(), req.Incremental)
	if err != nil {
		return nil, err
	}
	result := newResult(target, since)

	for _, path := range paths {
		for item, err := range archive.Replay(path) {
			if err != nil {
				return result, err
			}
			if ctx.Err() != nil {
				result.Cancelled = true
				return result, nil
			}
			if item.Harvest != "" && item.Harvest != target.StateKey() {
				continue
			}
			result.count(item.Decoded, since == nil || item.Decoded.ID > *since)
		}
		result.Pages++
	}

	if req.Incremental {
		if err := o.tracker.Advance(ctx, target.StateKey(), result.MaxID); err != nil {
			return result, fmt.Errorf("failed to update state from archives: %w", err)
		}
	}

	o.logger.InfoWithFields("Archive replay finished", map[string]interface{}{
		"harvest":   target.Kind(),
		"seed":      target.Seed(),
		"archives":  len(paths),
		"harvested": result.Harvested,
		"new":       result.New,
	})
	return result, nil
}
