// Package hydration keeps the user's daily goal, intake, streak and
// achievements, fed by payloads arriving from the scale.
package hydration

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Store is a small typed key-value store for settings.  Getters
// return def when the key has never been set.
type Store interface {
	Int(key string, def int) int
	SetInt(key string, v int) error
	Bool(key string, def bool) bool
	SetBool(key string, v bool) error
}

// settings is the persisted document.
type settings struct {
	Ints  map[string]int  `cbor:"1,keyasint,omitempty"`
	Bools map[string]bool `cbor:"2,keyasint,omitempty"`
}

func newSettings() settings {
	return settings{Ints: map[string]int{}, Bools: map[string]bool{}}
}

// ── MemStore ─────────────────────────────────────────────────────────

// MemStore keeps settings in memory.
type MemStore struct {
	mu sync.RWMutex
	s  settings
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{s: newSettings()}
}

func (m *MemStore) Int(key string, def int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.s.Ints[key]; ok {
		return v
	}
	return def
}

func (m *MemStore) SetInt(key string, v int) error {
	m.mu.Lock()
	m.s.Ints[key] = v
	m.mu.Unlock()
	return nil
}

func (m *MemStore) Bool(key string, def bool) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.s.Bools[key]; ok {
		return v
	}
	return def
}

func (m *MemStore) SetBool(key string, v bool) error {
	m.mu.Lock()
	m.s.Bools[key] = v
	m.mu.Unlock()
	return nil
}

// ── FileStore ────────────────────────────────────────────────────────

// FileStore persists settings as a CBOR document.  Every set rewrites
// the file through a temporary file and a rename.
type FileStore struct {
	path string
	enc  cbor.EncMode
	dec  cbor.DecMode

	mu sync.RWMutex
	s  settings
}

// OpenFileStore loads path, or starts empty when it does not exist.
func OpenFileStore(path string) (*FileStore, error) {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encoder: %w", err)
	}
	dec, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor decoder: %w", err)
	}

	fs := &FileStore{path: path, enc: enc, dec: dec, s: newSettings()}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return fs, nil
	case err != nil:
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}
	if err := dec.Unmarshal(data, &fs.s); err != nil {
		return nil, fmt.Errorf("decode settings %s: %w", path, err)
	}
	if fs.s.Ints == nil {
		fs.s.Ints = map[string]int{}
	}
	if fs.s.Bools == nil {
		fs.s.Bools = map[string]bool{}
	}
	return fs, nil
}

// Path returns the backing file.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Int(key string, def int) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if v, ok := f.s.Ints[key]; ok {
		return v
	}
	return def
}

func (f *FileStore) SetInt(key string, v int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.s.Ints[key]
	f.s.Ints[key] = v
	if err := f.flushLocked(); err != nil {
		if had {
			f.s.Ints[key] = prev
		} else {
			delete(f.s.Ints, key)
		}
		return err
	}
	return nil
}

func (f *FileStore) Bool(key string, def bool) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if v, ok := f.s.Bools[key]; ok {
		return v
	}
	return def
}

func (f *FileStore) SetBool(key string, v bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.s.Bools[key]
	f.s.Bools[key] = v
	if err := f.flushLocked(); err != nil {
		if had {
			f.s.Bools[key] = prev
		} else {
			delete(f.s.Bools, key)
		}
		return err
	}
	return nil
}

func (f *FileStore) flushLocked() error {
	data, err := f.enc.Marshal(f.s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".drinksync-*.tmp")
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
