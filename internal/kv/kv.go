// Package kv is a flat string key/value store persisted as a single JSON
// document. It holds the task list, the field mapping, the secondary
// credential tier and the legacy credential keys.
package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrStorage wraps every I/O or decode failure from a Store.
	ErrStorage = errors.New("kv storage error")

	// ErrCorrupt marks a backing file that is not a JSON object.
	ErrCorrupt = errors.New("kv file is corrupt")
)

// Store is a flat string key/value slot store.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(keys ...string) error
	Keys(prefix string) ([]string, error)
}

// File is a Store backed by one JSON file. Every mutation rewrites the
// file through a temp file and rename.
type File struct {
	path string

	mu   sync.Mutex
	data map[string]string
}

// Open loads path, creating an empty store if the file does not exist.
// A corrupt file is an error wrapping ErrCorrupt; see OpenOrReset.
func Open(path string) (*File, error) {
	f := &File{path: path, data: map[string]string{}}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("%w: reading %s: %v", ErrStorage, path, err)
	}

	if len(strings.TrimSpace(string(raw))) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(raw, &f.data); err != nil {
		return nil, fmt.Errorf("%w: %w: decoding %s: %v", ErrStorage, ErrCorrupt, path, err)
	}
	return f, nil
}

// OpenOrReset is Open, except that a corrupt file is renamed to
// <path>.corrupt-<unix seconds> and an empty store is returned in its
// place. movedTo names the renamed file and is empty when nothing moved.
func OpenOrReset(path string) (f *File, movedTo string, err error) {
	f, err = Open(path)
	if !errors.Is(err, ErrCorrupt) {
		return f, "", err
	}
	movedTo = fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if rerr := os.Rename(path, movedTo); rerr != nil {
		return nil, "", fmt.Errorf("%w: moving corrupt %s aside: %v", ErrStorage, path, rerr)
	}
	return &File{path: path, data: map[string]string{}}, movedTo, nil
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

func (f *File) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.data[key]
	f.data[key] = value
	if err := f.flush(); err != nil {
		if had {
			f.data[key] = prev
		} else {
			delete(f.data, key)
		}
		return err
	}
	return nil
}

// Delete removes keys. Missing keys are ignored.
func (f *File) Delete(keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	changed := false
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return f.flush()
}

// Keys returns the sorted keys starting with prefix.
func (f *File) Keys(prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// flush writes the map to disk. Caller holds mu.
func (f *File) flush() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding: %v", ErrStorage, err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("%w: creating %s: %v", ErrStorage, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".kv-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing: %v", ErrStorage, err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("%w: replacing %s: %v", ErrStorage, f.path, err)
	}
	return nil
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{data: map[string]string{}}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *Memory) Keys(prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
