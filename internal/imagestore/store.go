package imagestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrRefExists is returned when a write would overwrite an existing entry.
// The store is append-only; refs are never reused.
var ErrRefExists = errors.New("imagestore: ref already exists")

// ErrNotFound is returned when no entry exists for a ref.
var ErrNotFound = errors.New("imagestore: ref not found")

// Store is the backing blob store for ingested images.
type Store interface {
	Put(ctx context.Context, ref string, data []byte) error
	Get(ctx context.Context, ref string) ([]byte, error)
}

// Memory is an in-process Store used by tests and single-node setups.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

func (m *Memory) Put(ctx context.Context, ref string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[ref]; ok {
		return ErrRefExists
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.entries[ref] = cp
	return nil
}

func (m *Memory) Get(ctx context.Context, ref string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.entries[ref]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Dir is a filesystem-backed Store rooted at a single directory.
type Dir struct {
	root string
}

// NewDir prepares a directory-backed store, creating the root if needed.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("imagestore: create root: %w", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) Put(ctx context.Context, ref string, data []byte) error {
	path := filepath.Join(d.root, filepath.Base(ref))
	// O_EXCL keeps the store append-only at the filesystem level.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrRefExists
		}
		return fmt.Errorf("imagestore: open %s: %w", ref, err)
	}
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("imagestore: write %s: %w", ref, werr)
	}
	if cerr != nil {
		return fmt.Errorf("imagestore: close %s: %w", ref, cerr)
	}
	return nil
}

func (d *Dir) Get(ctx context.Context, ref string) ([]byte, error) {
	path := filepath.Join(d.root, filepath.Base(ref))
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("imagestore: read %s: %w", ref, err)
	}
	return data, nil
}
