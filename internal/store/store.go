package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"porter/internal/node"
)

// Store is the durable table mapping transfer handles to upload
// records. The whole table lives in one JSON file; every Put is a
// read-modify-write of the entire table under a single lock, which is
// plenty for this path. Records accumulate forever; cleanup is manual.
type Store struct {
	path string

	mu    sync.Mutex
	table map[node.Handle]*UploadRecord
}

// Open loads the table at path, creating an empty one when the file
// does not exist. When the current file is absent or empty and a legacy
// file exists, its content is migrated once and persisted at path.
func Open(path string, legacyPaths ...string) (*Store, error) {
	s := &Store{path: path, table: make(map[node.Handle]*UploadRecord)}

	loaded, err := s.load(path)
	if err != nil {
		return nil, err
	}
	if !loaded {
		for _, legacy := range legacyPaths {
			migrated, err := s.load(legacy)
			if err != nil {
				return nil, err
			}
			if migrated {
				if err := s.persist(); err != nil {
					return nil, err
				}
				break
			}
		}
	}
	return s, nil
}

// Put merges update into the record for handle, creating the record if
// absent, and persists the whole table atomically.
func (s *Store) Put(handle node.Handle, update Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.table[handle]
	if !ok {
		rec = &UploadRecord{}
		s.table[handle] = rec
	}
	update.apply(rec)
	return s.persist()
}

// Get returns the record for handle, or ok=false when none exists.
func (s *Store) Get(handle node.Handle) (UploadRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.table[handle]
	if !ok {
		return UploadRecord{}, false
	}
	return *rec, true
}

// All returns a snapshot copy of the whole table.
func (s *Store) All() map[node.Handle]UploadRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[node.Handle]UploadRecord, len(s.table))
	for h, rec := range s.table {
		out[h] = *rec
	}
	return out
}

// load reads a table file into s. It reports whether anything usable
// was found; a missing or empty file is not an error.
func (s *Store) load(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read store %s: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, &s.table); err != nil {
		return false, fmt.Errorf("parse store %s: %w", path, err)
	}
	return len(s.table) > 0, nil
}

// persist writes the whole table to a sibling temp file and renames it
// over the store path. Callers must hold s.mu.
func (s *Store) persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	data, err := json.MarshalIndent(s.table, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".transfers-*.json")
	if err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write store: %w", err)
	}
	return nil
}
