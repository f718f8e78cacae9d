package harvest

import (
	"context"
	"fmt"
	"iter"
	"time"

	"weiboharvest/pkg/config"
	"weiboharvest/pkg/logger"
	"weiboharvest/pkg/metrics"
	"weiboharvest/pkg/paginate"
	"weiboharvest/pkg/weibo"
	"weiboharvest/pkg/window"
)

// Sink receives every emitted post, in emission order
type Sink interface {
	Write(post weibo.Post) error
}

// Result holds the counters of one harvest cycle
type Result struct {
	Target Target
	// SinceID is the window start the cycle used
	SinceID   *int64
	Harvested int
	New       int
	ByType    map[string]int
	// MaxID is the newest post id seen, nil when nothing was harvested
	MaxID     *int64
	Pages     int
	Cancelled bool
}

func newResult(target Target, since *int64) *Result {
	return &Result{Target: target, SinceID: since, ByType: make(map[string]int)}
}

func (r *Result) count(post weibo.Post, isNew bool) {
	r.Harvested++
	if isNew {
		r.New++
	}
	r.ByType[post.ItemType()]++
	if r.MaxID == nil || post.ID > *r.MaxID {
		id := post.ID
		r.MaxID = &id
	}
}

// Orchestrator runs harvest cycles. It resolves the incremental window,
// drives the pagination engine, hands each post to the sink and moves the
// window forward.
type Orchestrator struct {
	engine  *paginate.Engine
	tracker *window.Tracker
	logger  logger.Logger
}

// New creates an Orchestrator
func New(engine *paginate.Engine, tracker *window.Tracker, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		engine:  engine,
		tracker: tracker,
		logger:  logger.OrNop(log).WithField("component", "harvest"),
	}
}

// Run executes one cycle of req, writing posts to sink.
//
// A timeline cycle walks from the newest post down to the window start, so
// the window only moves once the walk completes. A topic search cycle moves
// the window with every post it writes. Posts already written stay written
// when the cycle fails or ctx is cancelled; a cancelled cycle returns its
// partial counters with Cancelled set and no error.
func (o *Orchestrator) Run(ctx context.Context, req config.HarvestRequest, sink Sink) (*Result, error) {
	target, err := ParseTarget(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	log := o.logger.WithFields(map[string]interface{}{
		"harvest": target.Kind(),
		"seed":    target.Seed(),
	})

	var result *Result
	switch t := target.(type) {
	case Timeline:
		result, err = o.runTimeline(ctx, t, req.Incremental, sink, log)
	case TopicSearch:
		result, err = o.runTopicSearch(ctx, t, req.Incremental, sink, log)
	}

	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
		log.WithError(err).WarnWithFields("Harvest cycle failed", map[string]interface{}{
			"harvested": result.Harvested,
		})
	case result.Cancelled:
		outcome = "cancelled"
	}
	metrics.ObserveCycle(target.Kind(), outcome, start)

	if err == nil {
		log.InfoWithFields("Harvest cycle finished", map[string]interface{}{
			"harvested": result.Harvested,
			"new":       result.New,
			"pages":     result.Pages,
			"cancelled": result.Cancelled,
			"duration":  time.Since(start),
		})
	}
	return result, err
}

func (o *Orchestrator) runTimeline(ctx context.Context, t Timeline, incremental bool, sink Sink, log logger.Logger) (*Result, error) {
	since, err := o.tracker.ResolveSinceID(ctx, t.StateKey(), incremental)
	if err != nil {
		return newResult(t, nil), err
	}
	result := newResult(t, since)

	seq := o.engine.Timeline(ctx, since, o.pageCounter(result, t, log))
	err = o.consume(ctx, seq, sink, result, func(p weibo.Post) (bool, error) {
		return since == nil || p.ID > *since, nil
	})
	if err != nil || result.Cancelled {
		return result, err
	}

	if incremental {
		if err := o.tracker.Advance(ctx, t.StateKey(), result.MaxID); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (o *Orchestrator) runTopicSearch(ctx context.Context, t TopicSearch, incremental bool, sink Sink, log logger.Logger) (*Result, error) {
	if !incremental {
		result := newResult(t, nil)
		seq := o.engine.TopicSearch(ctx, t.Query, nil, o.pageCounter(result, t, log))
		err := o.consume(ctx, seq, sink, result, func(weibo.Post) (bool, error) { return true, nil })
		return result, err
	}

	stream, err := o.tracker.Stream(ctx, t.StateKey())
	if err != nil {
		return newResult(t, nil), err
	}
	result := newResult(t, stream.Since())

	seq := o.engine.TopicSearch(ctx, t.Query, stream.Since(), o.pageCounter(result, t, log))
	err = o.consume(ctx, seq, sink, result, func(p weibo.Post) (bool, error) {
		return stream.Observe(ctx, p)
	})
	return result, err
}

// consume drains seq into sink. observe runs after each post is written and
// reports whether the post counts as new.
func (o *Orchestrator) consume(ctx context.Context, seq iter.Seq2[weibo.Post, error], sink Sink, result *Result, observe func(weibo.Post) (bool, error)) error {
	kind := result.Target.Kind()
	for post, err := range seq {
		if err != nil {
			return fmt.Errorf("%s harvest of %q: %w", kind, result.Target.Seed(), err)
		}
		if err := sink.Write(post); err != nil {
			return fmt.Errorf("failed to archive post %d: %w", post.ID, err)
		}
		isNew, err := observe(post)
		if err != nil && ctx.Err() == nil {
			return err
		}
		result.count(post, isNew)
		metrics.PostsHarvested.WithLabelValues(kind, post.ItemType()).Inc()

		if ctx.Err() != nil {
			break
		}
	}
	if ctx.Err() != nil {
		result.Cancelled = true
		o.logger.InfoWithFields("Harvest cycle cancelled", map[string]interface{}{
			"harvest":   kind,
			"seed":      result.Target.Seed(),
			"harvested": result.Harvested,
		})
	}
	return nil
}

func (o *Orchestrator) pageCounter(result *Result, t Target, log logger.Logger) paginate.Hooks {
	return paginate.Hooks{
		OnPage: func(ctx context.Context, number int, raw []weibo.Post) error {
			result.Pages++
			logger.LogHarvestProgress(log, t.StateKey(), result.Harvested, result.New, result.Pages)
			return nil
		},
	}
}
