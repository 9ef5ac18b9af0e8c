package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists the full index as a single JSON document mapping digest to
// Record. Every read materializes the whole document and every mutation
// rewrites it completely; there are no partial updates. Writes go through a
// temp file plus rename so a crash never leaves a torn index.
//
// The mutex serializes mutators within this process. Across processes the
// last Save wins; the store assumes one effective writer per logical
// operation and is not designed for concurrent multi-process mutation.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store persisting to path (e.g. "storage/index.json").
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load reads the whole index. A missing file is an empty index, not an error.
func (s *Store) Load() (map[string]Record, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", s.path, err)
	}
	index := map[string]Record{}
	if len(data) == 0 {
		return index, nil
	}
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("parse index %s: %w", s.path, err)
	}
	return index, nil
}

// Save rewrites the whole index atomically.
func (s *Store) Save(index map[string]Record) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("prepare index dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index temp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}

// Get loads the index and returns the record for digest, if present.
func (s *Store) Get(digest string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, err := s.Load()
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := index[digest]
	return rec, ok, nil
}

// Upsert inserts or replaces one record via a full read-modify-rewrite.
func (s *Store) Upsert(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, err := s.Load()
	if err != nil {
		return err
	}
	index[rec.Digest] = rec
	return s.Save(index)
}

// Update applies fn to the record for digest and rewrites the index.
// Returns os.ErrNotExist if the digest is absent.
func (s *Store) Update(digest string, fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, err := s.Load()
	if err != nil {
		return err
	}
	rec, ok := index[digest]
	if !ok {
		return fmt.Errorf("record %s: %w", digest, os.ErrNotExist)
	}
	fn(&rec)
	index[digest] = rec
	return s.Save(index)
}

// Delete removes one record. Deleting an absent digest is a no-op.
func (s *Store) Delete(digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, err := s.Load()
	if err != nil {
		return err
	}
	if _, ok := index[digest]; !ok {
		return nil
	}
	delete(index, digest)
	return s.Save(index)
}

// Replace swaps the entire index for a new one (admin import).
func (s *Store) Replace(index map[string]Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Save(index)
}
