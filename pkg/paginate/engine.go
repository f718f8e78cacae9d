package paginate

import (
	"context"
	"iter"
	"time"

	"github.com/samber/lo"
	errs "weiboharvest/pkg/errors"
	"weiboharvest/pkg/logger"
	"weiboharvest/pkg/metrics"
	"weiboharvest/pkg/weibo"
)

// Fetcher fetches single pages from the API
type Fetcher interface {
	FriendsTimeline(ctx context.Context, q weibo.TimelineQuery) ([]weibo.Post, error)
	SearchTopics(ctx context.Context, q weibo.SearchQuery) ([]weibo.Post, error)
}

// Backoff sleeps after a rate limit and reports how long it waited.
// retry.Policy implements it.
type Backoff interface {
	Sleep(ctx context.Context, endpoint string) (time.Duration, error)
}

// Options holds the paging parameters
type Options struct {
	TimelinePageSize    int
	SearchPageSize      int
	SearchResultCeiling int
}

// DefaultOptions returns the largest pages the API allows
func DefaultOptions() Options {
	return Options{
		TimelinePageSize:    weibo.MaxTimelineCount,
		SearchPageSize:      weibo.MaxSearchCount,
		SearchResultCeiling: weibo.SearchResultCeiling,
	}
}

// Hooks lets callers watch pagination without consuming posts
type Hooks struct {
	// OnPage receives every fetched page, sorted but before trimming.
	// A non-nil error ends the sequence with that error.
	OnPage func(ctx context.Context, number int, raw []weibo.Post) error
}

// Engine turns page fetches into a sequence of posts, following the cursor
// and sleeping through rate limits.
//
// Sequences end without an error when ctx is cancelled; callers that need to
// tell cancellation from completion check ctx.Err().
type Engine struct {
	fetcher Fetcher
	backoff Backoff
	opts    Options
	logger  logger.Logger
}

// New creates an Engine. Zero option values fall back to DefaultOptions and
// page sizes are capped at what the API serves.
func New(fetcher Fetcher, backoff Backoff, opts Options, log logger.Logger) *Engine {
	def := DefaultOptions()
	if opts.TimelinePageSize <= 0 {
		opts.TimelinePageSize = def.TimelinePageSize
	}
	opts.TimelinePageSize = min(opts.TimelinePageSize, weibo.MaxTimelineCount)
	if opts.SearchPageSize <= 0 {
		opts.SearchPageSize = def.SearchPageSize
	}
	opts.SearchPageSize = min(opts.SearchPageSize, weibo.MaxSearchCount)
	if opts.SearchResultCeiling <= 0 {
		opts.SearchResultCeiling = def.SearchResultCeiling
	}
	return &Engine{
		fetcher: fetcher,
		backoff: backoff,
		opts:    opts,
		logger:  logger.OrNop(log).WithField("component", "paginate"),
	}
}

// Timeline walks the friends timeline from newest to oldest, starting after
// since when given. Every page is emitted in full and the next request asks
// for posts older than the oldest one seen. It ends on an empty page.
func (e *Engine) Timeline(ctx context.Context, since *int64, hooks Hooks) iter.Seq2[weibo.Post, error] {
	return func(yield func(weibo.Post, error) bool) {
		q := weibo.TimelineQuery{Count: e.opts.TimelinePageSize, Page: 1}
		if since != nil {
			q.SinceID = *since
		}

		for number := 1; ; number++ {
			if ctx.Err() != nil {
				return
			}
			raw, err := e.fetch(ctx, weibo.EndpointFriendsTimeline, func() ([]weibo.Post, error) {
				return e.fetcher.FriendsTimeline(ctx, q)
			})
			if err != nil {
				if ctx.Err() == nil {
					yield(weibo.Post{}, err)
				}
				return
			}
			if len(raw) == 0 {
				e.logger.DebugWithFields("timeline exhausted", map[string]interface{}{"pages": number - 1})
				return
			}

			page := e.ordered(weibo.EndpointFriendsTimeline, number, raw)
			if hooks.OnPage != nil {
				if err := hooks.OnPage(ctx, number, page); err != nil {
					yield(weibo.Post{}, err)
					return
				}
			}

			for _, p := range page {
				if !yield(p, nil) {
					return
				}
			}

			next := lo.Min(weibo.PostIDs(page)) - 1
			if q.MaxID != 0 && next >= q.MaxID {
				e.logger.WarnWithFields("timeline cursor did not advance, stopping", map[string]interface{}{
					"max_id": q.MaxID,
					"next":   next,
				})
				return
			}
			if next <= 0 {
				return
			}
			q.MaxID = next
		}
	}
}

// TopicSearch walks topic search results for query, keeping only posts newer
// than since. The API serves at most SearchResultCeiling results, so no page
// beyond that ceiling is requested.
func (e *Engine) TopicSearch(ctx context.Context, query string, since *int64, hooks Hooks) iter.Seq2[weibo.Post, error] {
	return func(yield func(weibo.Post, error) bool) {
		size := e.opts.SearchPageSize
		var max *int64

		for number := 1; number*size <= e.opts.SearchResultCeiling; number++ {
			if ctx.Err() != nil {
				return
			}
			q := weibo.SearchQuery{Q: query, Count: size, Page: number}
			raw, err := e.fetch(ctx, weibo.EndpointTopicSearch, func() ([]weibo.Post, error) {
				return e.fetcher.SearchTopics(ctx, q)
			})
			if err != nil {
				if ctx.Err() == nil {
					yield(weibo.Post{}, err)
				}
				return
			}
			if len(raw) == 0 {
				return
			}

			page := e.ordered(weibo.EndpointTopicSearch, number, raw)
			if hooks.OnPage != nil {
				if err := hooks.OnPage(ctx, number, page); err != nil {
					yield(weibo.Post{}, err)
					return
				}
			}

			trimmed := Trim(page, since, max)
			if len(trimmed) == 0 {
				return
			}
			for _, p := range trimmed {
				if !yield(p, nil) {
					return
				}
			}
			// a short window means the since boundary was inside this page
			if len(trimmed) < size {
				return
			}

			// Trim treats max as exclusive, so the oldest id seen is itself
			// the bound that keeps the next window strictly older.
			next := page[len(page)-1].ID
			max = &next
		}

		e.logger.DebugWithFields("search result ceiling reached", map[string]interface{}{
			"query":   query,
			"ceiling": e.opts.SearchResultCeiling,
		})
	}
}

// fetch runs fn, sleeping through rate limits until it returns anything else
func (e *Engine) fetch(ctx context.Context, endpoint string, fn func() ([]weibo.Post, error)) ([]weibo.Post, error) {
	for {
		posts, err := fn()
		if !errs.IsRateLimit(err) {
			return posts, err
		}

		wait, sleepErr := e.backoff.Sleep(ctx, endpoint)
		metrics.ObserveRateLimitWait(endpoint, wait)
		if sleepErr != nil {
			return nil, sleepErr
		}
	}
}

// ordered returns page sorted by id descending, logging when the API broke
// its newest-first contract.
func (e *Engine) ordered(endpoint string, number int, page []weibo.Post) []weibo.Post {
	if isDescending(page) {
		return page
	}
	e.logger.WarnWithFields("page not sorted newest first, sorting", map[string]interface{}{
		"endpoint": endpoint,
		"page":     number,
		"ids":      weibo.PostIDs(page),
	})
	return sortDescending(page)
}
