package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"weiboharvest/pkg/logger"
)

const fileVersion = 1

// document is the on-disk layout of a FileStore
type document struct {
	Version   int                         `json:"version"`
	UpdatedAt time.Time                   `json:"updated_at"`
	State     map[string]map[string]int64 `json:"state"`
}

// FileStore keeps all state in one JSON file. Every Set rewrites the file
// through a temporary file and a rename, so a crash leaves either the old or
// the new document on disk.
type FileStore struct {
	mu     sync.Mutex
	path   string
	doc    document
	logger logger.Logger
}

// NewFileStore opens the state file at path, creating its directory. A
// missing file is an empty store.
func NewFileStore(path string, log logger.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	s := &FileStore{
		path:   path,
		doc:    document{Version: fileVersion, State: make(map[string]map[string]int64)},
		logger: logger.OrNop(log).WithField("component", "state"),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	file, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open state file: %w", err)
	}
	defer file.Close()

	var doc document
	if err := json.NewDecoder(file).Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode state file %s: %w", s.path, err)
	}
	if doc.State == nil {
		doc.State = make(map[string]map[string]int64)
	}
	s.doc = doc

	s.logger.DebugWithFields("State loaded", map[string]interface{}{
		"path":       s.path,
		"namespaces": len(doc.State),
		"updated_at": doc.UpdatedAt,
	})
	return nil
}

// Get implements Store
func (s *FileStore) Get(ctx context.Context, namespace, key string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.doc.State[namespace][key]
	return v, ok, nil
}

// Set implements Store. The in-memory value is only replaced once the file
// write succeeded.
func (s *FileStore) Set(ctx context.Context, namespace, key string, value int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(namespace, key, value)
}

// Raise implements Store. The file is only rewritten when the value grows.
func (s *FileStore) Raise(ctx context.Context, namespace, key string, value int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.doc.State[namespace][key]; ok && cur >= value {
		return cur, nil
	}
	if err := s.put(namespace, key, value); err != nil {
		return 0, err
	}
	return value, nil
}

// put stores value and saves, restoring the previous value if the write
// fails. Callers hold mu.
func (s *FileStore) put(namespace, key string, value int64) error {
	ns, ok := s.doc.State[namespace]
	prev, existed := ns[key]
	if !ok {
		ns = make(map[string]int64)
		s.doc.State[namespace] = ns
	}
	ns[key] = value

	if err := s.save(); err != nil {
		if existed {
			ns[key] = prev
		} else {
			delete(ns, key)
		}
		return err
	}
	return nil
}

// save writes the document atomically. Callers hold mu.
func (s *FileStore) save() error {
	s.doc.Version = fileVersion
	s.doc.UpdatedAt = time.Now()

	tempPath := s.path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(&s.doc); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode state: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync state file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close state file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// List implements Lister, ordered by namespace then key
func (s *FileStore) List(ctx context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Entry
	for ns, keys := range s.doc.State {
		for k, v := range keys {
			out = append(out, Entry{Namespace: ns, Key: k, Value: v})
		}
	}
	sortEntries(out)
	return out, nil
}

// Path returns the state file location
func (s *FileStore) Path() string {
	return s.path
}

// Close implements Store. Every Set is already on disk.
func (s *FileStore) Close() error {
	return nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Namespace != entries[j].Namespace {
			return entries[i].Namespace < entries[j].Namespace
		}
		return entries[i].Key < entries[j].Key
	})
}
