package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"weiboharvest/pkg/logger"
	"weiboharvest/pkg/weibo"
)

// Extension of archive files
const Extension = ".jsonl"

// Record is one archived line
type Record struct {
	ItemType    string          `json:"item_type"`
	Harvest     string          `json:"harvest"`
	HarvestedAt time.Time       `json:"harvested_at"`
	Post        json.RawMessage `json:"post"`
}

// Writer appends posts to a JSON lines file, one Record per line. Every
// Write is flushed, so posts already written survive an aborted cycle.
type Writer struct {
	mu      sync.Mutex
	path    string
	harvest string
	file    *os.File
	buf     *bufio.Writer
	count   int
	now     func() time.Time
	logger  logger.Logger
}

// NewWriter creates a new archive file for harvest under dir. Files are
// grouped in one directory per harvest and named by creation time.
func NewWriter(dir, harvest string, log logger.Logger) (*Writer, error) {
	harvestDir := filepath.Join(dir, SafeName(harvest))
	if err := os.MkdirAll(harvestDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	name := time.Now().UTC().Format("20060102T150405.000000000Z") + Extension
	path := filepath.Join(harvestDir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}

	return &Writer{
		path:    path,
		harvest: harvest,
		file:    file,
		buf:     bufio.NewWriter(file),
		now:     time.Now,
		logger:  logger.OrNop(log).WithFields(map[string]interface{}{"component": "archive", "path": path}),
	}, nil
}

// Write appends post to the archive
func (w *Writer) Write(post weibo.Post) error {
	raw, err := post.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode post %d: %w", post.ID, err)
	}
	line, err := json.Marshal(Record{
		ItemType:    post.ItemType(),
		Harvest:     w.harvest,
		HarvestedAt: w.now().UTC(),
		Post:        raw,
	})
	if err != nil {
		return fmt.Errorf("failed to encode record for post %d: %w", post.ID, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return fmt.Errorf("archive %s is closed", w.path)
	}
	if _, err := w.buf.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush archive: %w", err)
	}
	w.count++
	return nil
}

// Path returns the archive file location
func (w *Writer) Path() string {
	return w.path
}

// Count returns the number of posts written
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close syncs and closes the file. An archive that received no posts is
// removed.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	file := w.file
	w.file = nil

	if err := w.buf.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to flush archive: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync archive: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}

	if w.count == 0 {
		os.Remove(w.path)
		return nil
	}
	w.logger.DebugWithFields("Archive closed", map[string]interface{}{"posts": w.count})
	return nil
}

// Files lists the archives written for harvest, oldest first
func Files(dir, harvest string) ([]string, error) {
	harvestDir := filepath.Join(dir, SafeName(harvest))
	entries, err := os.ReadDir(harvestDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read archive directory: %w", err)
	}

	var out []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == Extension {
			out = append(out, filepath.Join(harvestDir, entry.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// SafeName turns a harvest key into a directory name, keeping letters and
// digits in any script.
func SafeName(key string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '_'
	}, key)
	name = strings.Trim(name, ".")
	if name == "" {
		return "_"
	}
	return name
}
