package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
	"weiboharvest/pkg/logger"
)

// SQLiteStore keeps state in a SQLite table, one row per namespace and key
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

// OpenSQLite opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func OpenSQLite(path string, log logger.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("state path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	// one connection keeps ":memory:" a single database and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure state database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger.OrNop(log).WithField("component", "state")}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate state database: %w", err)
	}

	s.logger.DebugWithFields("State database opened", map[string]interface{}{"path": path})
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS harvest_state (
	  namespace TEXT NOT NULL,
	  key TEXT NOT NULL,
	  value INTEGER NOT NULL,
	  updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
	  PRIMARY KEY (namespace, key)
	);
	`)
	return err
}

// Get implements Store
func (s *SQLiteStore) Get(ctx context.Context, namespace, key string) (int64, bool, error) {
	var v int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM harvest_state WHERE namespace = ? AND key = ?`,
		namespace, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read state %s/%s: %w", namespace, key, err)
	}
	return v, true, nil
}

// Set implements Store
func (s *SQLiteStore) Set(ctx context.Context, namespace, key string, value int64) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO harvest_state(namespace, key, value) VALUES(?, ?, ?)
	ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = strftime('%s','now')`,
		namespace, key, value)
	if err != nil {
		return fmt.Errorf("failed to write state %s/%s: %w", namespace, key, err)
	}
	return nil
}

// Raise implements Store. The comparison runs inside the upsert so
// concurrent writers, including other processes, cannot lower the value.
func (s *SQLiteStore) Raise(ctx context.Context, namespace, key string, value int64) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `
	INSERT INTO harvest_state(namespace, key, value) VALUES(?, ?, ?)
	ON CONFLICT(namespace, key) DO UPDATE SET
	  value = max(harvest_state.value, excluded.value),
	  updated_at = CASE WHEN excluded.value > harvest_state.value
	    THEN strftime('%s','now') ELSE harvest_state.updated_at END
	RETURNING value`,
		namespace, key, value).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to raise state %s/%s: %w", namespace, key, err)
	}
	return v, nil
}

// List implements Lister
func (s *SQLiteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT namespace, key, value FROM harvest_state ORDER BY namespace, key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list state: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Namespace, &e.Key, &e.Value); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close implements Store
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
