package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"weiboharvest/pkg/weibo"
)

func decodePost(t *testing.T, raw string) weibo.Post {
	t.Helper()
	var p weibo.Post
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return p
}

func TestWriterAndReplay(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir, "rain", nil)
	require.NoError(t, err)

	posts := []weibo.Post{
		decodePost(t, `{"id":105,"text":"a"}`),
		decodePost(t, `{"id":104,"text":"b","retweeted_status":{"id":9}}`),
		decodePost(t, `{"idstr":"103","text":"c"}`),
	}
	for _, p := range posts {
		require.NoError(t, w.Write(p))
	}
	assert.Equal(t, 3, w.Count())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "closing twice is harmless")
	assert.Error(t, w.Write(posts[0]), "writes after close fail")

	files, err := Files(dir, "rain")
	require.NoError(t, err)
	require.Equal(t, []string{w.Path()}, files)

	var ids []int64
	var types []string
	for item, err := range Replay(w.Path()) {
		require.NoError(t, err)
		ids = append(ids, item.Decoded.ID)
		types = append(types, item.ItemType)
		assert.Equal(t, "rain", item.Harvest)
	}
	assert.Equal(t, []int64{105, 104, 103}, ids)
	assert.Equal(t, []string{weibo.ItemTypeStatus, weibo.ItemTypeRetweet, weibo.ItemTypeStatus}, types)
}

func TestWriterKeepsRawPost(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "c1", nil)
	require.NoError(t, err)

	raw := `{"id":1,"text":"微博","user":{"id":7}}`
	require.NoError(t, w.Write(decodePost(t, raw)))
	require.NoError(t, w.Close())

	for item, err := range Replay(w.Path()) {
		require.NoError(t, err)
		assert.JSONEq(t, raw, string(item.Post))
	}
}

func TestWriterFlushesEveryPost(t *testing.T) {
	w, err := NewWriter(t.TempDir(), "c1", nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Write(weibo.Post{ID: 1}))

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"item_type":"weibo_status"`)
}

func TestEmptyArchiveIsRemoved(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "quiet", nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	files, err := Files(dir, "quiet")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestReplayMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	content := `{"item_type":"weibo_status","harvest":"k","post":{"id":1}}` + "\n" + `{"item_type":` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	var ids []int64
	var lastErr error
	for item, err := range Replay(path) {
		if err != nil {
			lastErr = err
			continue
		}
		ids = append(ids, item.Decoded.ID)
	}
	assert.Equal(t, []int64{1}, ids)
	require.Error(t, lastErr)
	assert.Contains(t, lastErr.Error(), ":2: malformed record")
}

func TestReplayMissingFile(t *testing.T) {
	for _, err := range Replay(filepath.Join(t.TempDir(), "none.jsonl")) {
		assert.Error(t, err)
	}
}

func TestFilesMissingHarvest(t *testing.T) {
	files, err := Files(t.TempDir(), "never")
	require.NoError(t, err)
	assert.Nil(t, files)
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"rain":        "rain",
		"#下雨#":        "_下雨_",
		"a/b c":       "a_b_c",
		"..":          "_",
		"collection1": "collection1",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeName(in), in)
	}
}

func TestReportRoundTrip(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "a.jsonl")
	since, max := int64(100), int64(105)
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	r := &Report{
		Harvest:    "c1",
		Type:       "timeline",
		Seed:       "c1",
		SinceID:    &since,
		MaxID:      &max,
		Harvested:  3,
		New:        3,
		ByType:     map[string]int{weibo.ItemTypeStatus: 3},
		Pages:      1,
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
		Archive:    archivePath,
	}
	require.NoError(t, r.Save(archivePath))

	loaded, err := LoadReport(archivePath)
	require.NoError(t, err)
	assert.Equal(t, r, loaded)
	assert.Equal(t, 2*time.Second, loaded.Duration())
}
