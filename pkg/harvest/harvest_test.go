package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"weiboharvest/pkg/archive"
	"weiboharvest/pkg/config"
	errs "weiboharvest/pkg/errors"
	"weiboharvest/pkg/logger"
	"weiboharvest/pkg/paginate"
	"weiboharvest/pkg/state"
	"weiboharvest/pkg/weibo"
	"weiboharvest/pkg/window"
)

// fakeAPI serves a newest-first corpus the way the API does: since_id is
// exclusive, max_id inclusive, search pages by number.
type fakeAPI struct {
	corpus   []weibo.Post
	failCall int
	calls    int
	sinces   []int64
}

func (f *fakeAPI) FriendsTimeline(ctx context.Context, q weibo.TimelineQuery) ([]weibo.Post, error) {
	f.calls++
	f.sinces = append(f.sinces, q.SinceID)
	if f.calls == f.failCall {
		return nil, errs.New(errs.ErrorTypeAPI, 20003, "user does not exists")
	}
	var out []weibo.Post
	for _, p := range f.corpus {
		if q.SinceID != 0 && p.ID <= q.SinceID {
			continue
		}
		if q.MaxID != 0 && p.ID > q.MaxID {
			continue
		}
		out = append(out, p)
		if len(out) == q.Count {
			break
		}
	}
	return out, nil
}

func (f *fakeAPI) SearchTopics(ctx context.Context, q weibo.SearchQuery) ([]weibo.Post, error) {
	f.calls++
	if f.calls == f.failCall {
		return nil, errs.New(errs.ErrorTypeAPI, 20003, "search failed")
	}
	start := (q.Page - 1) * q.Count
	if start >= len(f.corpus) {
		return nil, nil
	}
	end := min(start+q.Count, len(f.corpus))
	return f.corpus[start:end], nil
}

type noBackoff struct{}

func (noBackoff) Sleep(ctx context.Context, endpoint string) (time.Duration, error) {
	return 0, ctx.Err()
}

type recordingSink struct {
	ids     []int64
	onWrite func(n int)
	err     error
}

func (s *recordingSink) Write(p weibo.Post) error {
	if s.err != nil {
		return s.err
	}
	s.ids = append(s.ids, p.ID)
	if s.onWrite != nil {
		s.onWrite(len(s.ids))
	}
	return nil
}

func corpus(from, to int64) []weibo.Post {
	var out []weibo.Post
	for id := from; id >= to; id-- {
		out = append(out, weibo.Post{ID: id})
	}
	return out
}

type fixture struct {
	api     *fakeAPI
	store   *state.MemoryStore
	tracker *window.Tracker
	orch    *Orchestrator
	log     *logger.TestLogger
}

func newFixture(t *testing.T, posts []weibo.Post, opts paginate.Options) *fixture {
	t.Helper()
	api := &fakeAPI{corpus: posts}
	store := state.NewMemoryStore()
	log := logger.NewTestLogger()
	tracker := window.NewTracker(store, log)
	engine := paginate.New(api, noBackoff{}, opts, log)
	return &fixture{api: api, store: store, tracker: tracker, orch: New(engine, tracker, log), log: log}
}

func (f *fixture) stored(t *testing.T, key string) (int64, bool) {
	t.Helper()
	v, ok, err := f.store.Get(context.Background(), window.Namespace, window.StateKey(key))
	require.NoError(t, err)
	return v, ok
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name    string
		req     config.HarvestRequest
		want    Target
		wantErr string
	}{
		{"timeline", config.HarvestRequest{Type: "timeline", CollectionID: "c1"}, Timeline{CollectionID: "c1"}, ""},
		{"legacy timeline", config.HarvestRequest{Type: "weibo_timeline", CollectionID: "c1"}, Timeline{CollectionID: "c1"}, ""},
		{"search", config.HarvestRequest{Type: "topic_search", Query: "rain"}, TopicSearch{Query: "rain"}, ""},
		{"legacy search", config.HarvestRequest{Type: "weibo_search", Query: " rain "}, TopicSearch{Query: "rain"}, ""},
		{"unknown", config.HarvestRequest{Type: "weibo_user", Query: "x"}, nil, "unknown harvest type"},
		{"empty type", config.HarvestRequest{}, nil, "unknown harvest type"},
		{"timeline without collection", config.HarvestRequest{Type: "timeline"}, nil, "requires a collection id"},
		{"search without query", config.HarvestRequest{Type: "topic_search", CollectionID: "c1"}, nil, "requires a query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTarget(tt.req)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.True(t, errs.IsConfig(err))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTargetKeys(t *testing.T) {
	tl := Timeline{CollectionID: "c1"}
	assert.Equal(t, "timeline", tl.Kind())
	assert.Equal(t, "c1", tl.StateKey())

	ts := TopicSearch{Query: "rain"}
	assert.Equal(t, "topic_search", ts.Kind())
	assert.Equal(t, "rain", ts.StateKey())
}

func TestRunConfigErrorFetchesNothing(t *testing.T) {
	f := newFixture(t, corpus(10, 1), paginate.Options{})

	_, err := f.orch.Run(context.Background(), config.HarvestRequest{Type: "nope"}, &recordingSink{})
	require.Error(t, err)
	assert.True(t, errs.IsConfig(err))
	assert.Zero(t, f.api.calls)
}

func TestIncrementalTimelineEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, corpus(105, 90), paginate.Options{})
	require.NoError(t, f.store.Set(ctx, window.Namespace, window.StateKey("c1"), 100))

	sink := &recordingSink{}
	res, err := f.orch.Run(ctx, config.HarvestRequest{Type: "timeline", CollectionID: "c1", Incremental: true}, sink)
	require.NoError(t, err)

	assert.Equal(t, []int64{105, 104, 103, 102, 101}, sink.ids)
	assert.Equal(t, 5, res.Harvested)
	assert.Equal(t, 5, res.New)
	assert.Equal(t, map[string]int{weibo.ItemTypeStatus: 5}, res.ByType)
	assert.Equal(t, int64(105), *res.MaxID)
	assert.Equal(t, int64(100), *res.SinceID)
	assert.Equal(t, 1, res.Pages)
	assert.False(t, res.Cancelled)
	assert.Equal(t, int64(100), f.api.sinces[0])

	v, _ := f.stored(t, "c1")
	assert.Equal(t, int64(105), v)
}

func TestIncrementalTimelineSinglePage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, corpus(105, 103), paginate.Options{})
	require.NoError(t, f.store.Set(ctx, window.Namespace, window.StateKey("c1"), 100))

	res, err := f.orch.Run(ctx, config.HarvestRequest{Type: "timeline", CollectionID: "c1", Incremental: true}, &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Harvested)

	v, _ := f.stored(t, "c1")
	assert.Equal(t, int64(105), v)
}

func TestTimelineCountsRetweets(t *testing.T) {
	posts := []weibo.Post{{ID: 9}, {ID: 8, Retweet: true}, {ID: 7, Retweet: true}}
	f := newFixture(t, posts, paginate.Options{})

	res, err := f.orch.Run(context.Background(), config.HarvestRequest{Type: "timeline", CollectionID: "c1"}, &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{weibo.ItemTypeStatus: 1, weibo.ItemTypeRetweet: 2}, res.ByType)
}

func TestNonIncrementalLeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, corpus(50, 41), paginate.Options{})
	require.NoError(t, f.store.Set(ctx, window.Namespace, window.StateKey("c1"), 45))

	res, err := f.orch.Run(ctx, config.HarvestRequest{Type: "timeline", CollectionID: "c1"}, &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, 10, res.Harvested, "state is ignored without incremental")
	assert.Nil(t, res.SinceID)

	v, _ := f.stored(t, "c1")
	assert.Equal(t, int64(45), v)
}

func TestTimelineFailureKeepsArchivedPostsAndState(t *testing.T) {
	f := newFixture(t, corpus(110, 101), paginate.Options{TimelinePageSize: 3})
	f.api.failCall = 2

	sink := &recordingSink{}
	res, err := f.orch.Run(context.Background(), config.HarvestRequest{Type: "timeline", CollectionID: "c1", Incremental: true}, sink)
	require.Error(t, err)

	var typed *errs.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, errs.ErrorTypeAPI, typed.Type)

	assert.Equal(t, []int64{110, 109, 108}, sink.ids)
	assert.Equal(t, 3, res.Harvested)
	_, ok := f.stored(t, "c1")
	assert.False(t, ok, "a failed timeline walk does not move the window")
}

func TestTimelineCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, corpus(110, 101), paginate.Options{TimelinePageSize: 3})
	sink := &recordingSink{onWrite: func(n int) {
		if n == 2 {
			cancel()
		}
	}}

	res, err := f.orch.Run(ctx, config.HarvestRequest{Type: "timeline", CollectionID: "c1", Incremental: true}, sink)
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 2, res.Harvested)
	assert.Equal(t, []int64{110, 109}, sink.ids)
	assert.Equal(t, 1, f.api.calls, "no fetch after cancellation")
	assert.True(t, f.log.HasMessage("Harvest cycle cancelled"))
}

func TestIncrementalTopicSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, corpus(300, 1), paginate.Options{})
	require.NoError(t, f.store.Set(ctx, window.Namespace, window.StateKey("rain"), 230))

	sink := &recordingSink{}
	res, err := f.orch.Run(ctx, config.HarvestRequest{Type: "topic_search", Query: "rain", Incremental: true}, sink)
	require.NoError(t, err)

	assert.Equal(t, 70, res.Harvested)
	assert.Equal(t, 70, res.New)
	assert.Equal(t, int64(300), sink.ids[0])
	assert.Equal(t, int64(231), sink.ids[len(sink.ids)-1])
	assert.Equal(t, 2, f.api.calls)

	v, _ := f.stored(t, "rain")
	assert.Equal(t, int64(300), v)
}

func TestTopicSearchMovesWindowPerPost(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, corpus(300, 1), paginate.Options{})
	var storedAtWrite []int64
	sink := &recordingSink{}
	sink.onWrite = func(n int) {
		v, _ := f.stored(t, "rain")
		storedAtWrite = append(storedAtWrite, v)
		if n == 5 {
			cancel()
		}
	}

	res, err := f.orch.Run(ctx, config.HarvestRequest{Type: "topic_search", Query: "rain", Incremental: true}, sink)
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, 5, res.Harvested)

	// the post is written before the window moves past it
	assert.Equal(t, []int64{0, 300, 300, 300, 300}, storedAtWrite)
	v, _ := f.stored(t, "rain")
	assert.Equal(t, int64(300), v)
}

func TestTopicSearchCeiling(t *testing.T) {
	f := newFixture(t, corpus(1000, 1), paginate.Options{})

	res, err := f.orch.Run(context.Background(), config.HarvestRequest{Type: "topic_search", Query: "rain"}, &recordingSink{})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Harvested)
	assert.Equal(t, 4, f.api.calls)
	assert.Equal(t, 4, res.Pages)
}

func TestSinkErrorAbortsCycle(t *testing.T) {
	f := newFixture(t, corpus(10, 1), paginate.Options{})
	boom := errors.New("disk full")

	res, err := f.orch.Run(context.Background(), config.HarvestRequest{Type: "timeline", CollectionID: "c1", Incremental: true}, &recordingSink{err: boom})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, res.Harvested)
	_, ok := f.stored(t, "c1")
	assert.False(t, ok)
}

func TestReplayFromArchive(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	w, err := archive.NewWriter(dir, "c1", nil)
	require.NoError(t, err)
	for _, raw := range []string{
		`{"id":105,"text":"a"}`,
		`{"id":104,"text":"b","retweeted_status":{"id":3}}`,
		`{"id":99,"text":"c"}`,
	} {
		var p weibo.Post
		require.NoError(t, json.Unmarshal([]byte(raw), &p))
		require.NoError(t, w.Write(p))
	}
	require.NoError(t, w.Close())

	f := newFixture(t, nil, paginate.Options{})
	require.NoError(t, f.store.Set(ctx, window.Namespace, window.StateKey("c1"), 100))

	files, err := archive.Files(dir, "c1")
	require.NoError(t, err)
	res, err := f.orch.Replay(ctx, config.HarvestRequest{Type: "timeline", CollectionID: "c1", Incremental: true}, files)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Harvested)
	assert.Equal(t, 2, res.New)
	assert.Equal(t, map[string]int{weibo.ItemTypeStatus: 2, weibo.ItemTypeRetweet: 1}, res.ByType)
	assert.Zero(t, f.api.calls)

	v, _ := f.stored(t, "c1")
	assert.Equal(t, int64(105), v)
}

func TestResultReport(t *testing.T) {
	since := int64(100)
	res := newResult(Timeline{CollectionID: "c1"}, &since)
	res.count(weibo.Post{ID: 105}, true)
	res.Pages = 1

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rep := res.Report(start, start.Add(time.Second), errors.New("boom"))

	assert.Equal(t, "c1", rep.Harvest)
	assert.Equal(t, "timeline", rep.Type)
	assert.Equal(t, int64(105), *rep.MaxID)
	assert.Equal(t, "boom", rep.Error)

	path := filepath.Join(t.TempDir(), "a.jsonl")
	require.NoError(t, rep.Save(path))
	loaded, err := archive.LoadReport(path)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Harvested)
}
