package state

import (
	"context"
	"fmt"

	"weiboharvest/pkg/config"
	"weiboharvest/pkg/logger"
)

// Backend names accepted by Open
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Store persists integer state values by namespace and key. Implementations
// are safe for concurrent use by goroutines working on different keys.
type Store interface {
	// Get returns the stored value and whether one exists
	Get(ctx context.Context, namespace, key string) (int64, bool, error)
	// Set stores value, replacing any previous one
	Set(ctx context.Context, namespace, key string, value int64) error
	// Raise atomically stores max(current, value) and returns the value
	// held afterwards
	Raise(ctx context.Context, namespace, key string, value int64) (int64, error)
	Close() error
}

// Entry is one stored value, used when listing a store
type Entry struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     int64  `json:"value"`
}

// Lister is implemented by stores that can enumerate their entries
type Lister interface {
	List(ctx context.Context) ([]Entry, error)
}

// Open creates the store selected by the harvest configuration
func Open(cfg *config.HarvestConfig, log logger.Logger) (Store, error) {
	switch cfg.StateBackend {
	case BackendFile, "":
		return NewFileStore(cfg.StatePath, log)
	case BackendSQLite:
		return OpenSQLite(cfg.StatePath, log)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}
