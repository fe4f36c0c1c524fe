// Package settings is a durable JSON key-value store for small bits of state
// that must survive restarts: the paper account, the last traded ticker,
// tunable overrides.
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

const defaultSettingsPath = "./wal/settings.json"

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("settings key not found")

// Store keeps a flat key->JSON map in a single file, rewritten atomically
// on every Put.
type Store struct {
	path string

	mu     sync.Mutex
	values map[string]json.RawMessage
}

// NewStore opens the settings file, creating parent directories as needed.
// A missing file is an empty store.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultSettingsPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create settings dir")
	}

	s := &Store{path: path, values: make(map[string]json.RawMessage)}

	payload, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, errors.Wrap(err, "read settings")
	}
	if len(payload) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(payload, &s.values); err != nil {
		return nil, errors.Wrap(err, "decode settings")
	}
	return s, nil
}

// Get decodes the value stored under key into out.
func (s *Store) Get(key string, out any) error {
	s.mu.Lock()
	raw, ok := s.values[key]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "decode settings key %q", key)
	}
	return nil
}

// Put stores the value under key and flushes the file.
func (s *Store) Put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "encode settings key %q", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = raw
	return s.flushLocked()
}

// Delete removes the key and flushes the file. Deleting a missing key is a
// no-op.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.flushLocked()
}

// flushLocked writes the whole map atomically via a temp file.
func (s *Store) flushLocked() error {
	payload, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode settings")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write settings temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist settings")
	}
	return nil
}
