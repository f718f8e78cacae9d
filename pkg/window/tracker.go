package window

import (
	"context"
	"fmt"
	"sync"

	"weiboharvest/pkg/logger"
	"weiboharvest/pkg/state"
	"weiboharvest/pkg/weibo"
)

// Namespace is the state namespace every harvest key lives in
const Namespace = "weibo_harvester"

// StateKey returns the state key holding the high-water mark for a harvest
func StateKey(key string) string {
	return key + ".since_id"
}

// Tracker maps harvest keys to the newest post id already collected
type Tracker struct {
	store  state.Store
	logger logger.Logger
}

// NewTracker creates a Tracker over store
func NewTracker(store state.Store, log logger.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger.OrNop(log).WithField("component", "window"),
	}
}

// ResolveSinceID returns the stored high-water mark for key. It returns nil
// when incremental is false or nothing has been stored yet. It never writes.
func (t *Tracker) ResolveSinceID(ctx context.Context, key string, incremental bool) (*int64, error) {
	if !incremental {
		return nil, nil
	}
	v, ok, err := t.store.Get(ctx, Namespace, StateKey(key))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve since_id for %s: %w", key, err)
	}
	if !ok {
		t.logger.DebugWithFields("No stored since_id, harvesting from the newest post", map[string]interface{}{"key": key})
		return nil, nil
	}
	return &v, nil
}

// Advance raises the stored mark for key to observed. The stored value never
// decreases and a nil observed is a no-op. The raise is a single atomic store
// operation, so concurrent calls for the same key are safe.
func (t *Tracker) Advance(ctx context.Context, key string, observed *int64) error {
	if observed == nil {
		return nil
	}
	stored, err := t.store.Raise(ctx, Namespace, StateKey(key), *observed)
	if err != nil {
		return fmt.Errorf("failed to advance since_id for %s: %w", key, err)
	}
	if stored != *observed {
		return nil
	}

	t.logger.DebugWithFields("Advanced since_id", map[string]interface{}{
		"key":      key,
		"since_id": stored,
	})
	return nil
}

// Stream tracks one harvest cycle post by post. The since value is captured
// when the stream starts, and the stored mark follows every new post as soon
// as it is seen.
type Stream struct {
	tracker *Tracker
	key     string
	since   *int64

	mu   sync.Mutex
	high int64
}

// Stream starts a streaming cycle for key
func (t *Tracker) Stream(ctx context.Context, key string) (*Stream, error) {
	since, err := t.ResolveSinceID(ctx, key, true)
	if err != nil {
		return nil, err
	}
	s := &Stream{tracker: t, key: key, since: since}
	if since != nil {
		s.high = *since
	}
	return s, nil
}

// Since returns the mark captured at the start of the stream
func (s *Stream) Since() *int64 {
	return s.since
}

// Observe records post and reports whether it is newer than the mark the
// stream started from. Stored state is raised when post passes the highest
// id seen so far.
func (s *Stream) Observe(ctx context.Context, post weibo.Post) (bool, error) {
	isNew := s.since == nil || post.ID > *s.since

	s.mu.Lock()
	defer s.mu.Unlock()
	if post.ID <= s.high {
		return isNew, nil
	}
	id := post.ID
	if err := s.tracker.Advance(ctx, s.key, &id); err != nil {
		return isNew, err
	}
	s.high = id
	return isNew, nil
}

// High returns the highest id observed, or the starting mark
func (s *Stream) High() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.high
}
