// Package contextstore is a small key/value byte store backed by a
// directory. Tool-result spill files and prompt context files live here.
package contextstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Store abstracts the byte store so tests can swap in memory.
type Store interface {
	List() ([]string, error)
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
}

// Dir is a Store over one directory. Paths are relative; traversal
// outside the root is rejected.
type Dir struct {
	root string
}

func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("contextstore: create root: %w", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) List() ([]string, error) {
	var out []string
	err := filepath.Walk(d.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("contextstore: list: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

func (d *Dir) Read(path string) ([]byte, error) {
	full, err := d.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("contextstore: read %s: %w", path, err)
	}
	return data, nil
}

// Write lands atomically: temp file in the same directory, then rename.
func (d *Dir) Write(path string, data []byte) error {
	full, err := d.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("contextstore: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".ctx-*")
	if err != nil {
		return fmt.Errorf("contextstore: create temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("contextstore: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("contextstore: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("contextstore: rename: %w", err)
	}
	return nil
}

func (d *Dir) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("contextstore: invalid path %q", path)
	}
	return filepath.Join(d.root, clean), nil
}

// Memory is an in-memory Store for tests.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

func (m *Memory) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for name := range m.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Read(path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("contextstore: %s not found", path)
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Write(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = append([]byte(nil), data...)
	return nil
}
