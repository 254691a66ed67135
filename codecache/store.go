package codecache

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Store.Load when no unit is persisted for
// the requested source and cache key.
var ErrNotFound = errors.New("codecache: not found")

// Store persists encoded compilation units keyed by source identity and
// cache key.
type Store interface {
	// Load returns the encoded unit for (sourceID, cacheKey).
	Load(sourceID, cacheKey string) ([]byte, error)

	// Save writes the encoded unit for (sourceID, cacheKey), replacing
	// any previous entry.
	Save(sourceID, cacheKey string, data []byte) error

	// Delete removes the persisted entry, if any. Used to evict units
	// that fail validation on load.
	Delete(sourceID, cacheKey string) error

	Close() error
}

// ---------------------------------------------------------------------------
// SQLite-backed store
// ---------------------------------------------------------------------------

const storeSchema = `
CREATE TABLE IF NOT EXISTS units (
	source_id TEXT NOT NULL,
	cache_key TEXT NOT NULL,
	data      BLOB NOT NULL,
	PRIMARY KEY (source_id, cache_key)
);
`

// SQLStore keeps persisted units in a SQLite database so cached code
// survives process restarts.
type SQLStore struct {
	db *sql.DB
}

// OpenSQLStore opens (creating if needed) the store database at path.
func OpenSQLStore(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("codecache: open store %q: %w", path, err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("codecache: configure store: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("codecache: create schema: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Load(sourceID, cacheKey string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(
		"SELECT data FROM units WHERE source_id = ? AND cache_key = ?",
		sourceID, cacheKey,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("codecache: load %s/%s: %w", sourceID, cacheKey, err)
	}
	return data, nil
}

func (s *SQLStore) Save(sourceID, cacheKey string, data []byte) error {
	_, err := s.db.Exec(
		"INSERT INTO units (source_id, cache_key, data) VALUES (?, ?, ?) "+
			"ON CONFLICT (source_id, cache_key) DO UPDATE SET data = excluded.data",
		sourceID, cacheKey, data,
	)
	if err != nil {
		return fmt.Errorf("codecache: save %s/%s: %w", sourceID, cacheKey, err)
	}
	return nil
}

func (s *SQLStore) Delete(sourceID, cacheKey string) error {
	_, err := s.db.Exec(
		"DELETE FROM units WHERE source_id = ? AND cache_key = ?",
		sourceID, cacheKey,
	)
	if err != nil {
		return fmt.Errorf("codecache: delete %s/%s: %w", sourceID, cacheKey, err)
	}
	return nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

// MemStore is a Store kept entirely in memory.
type MemStore struct {
	mu    sync.Mutex
	units map[string][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{units: make(map[string][]byte)}
}

func memKey(sourceID, cacheKey string) string { return sourceID + "\x00" + cacheKey }

func (s *MemStore) Load(sourceID, cacheKey string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.units[memKey(sourceID, cacheKey)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemStore) Save(sourceID, cacheKey string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.units[memKey(sourceID, cacheKey)] = cp
	return nil
}

func (s *MemStore) Delete(sourceID, cacheKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.units, memKey(sourceID, cacheKey))
	return nil
}

func (s *MemStore) Close() error { return nil }
