package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const storeFileName = "storage.json"

// FileBackend persists encoded values in a single JSON document on disk.
// Writes go to a temp file in the same directory and are renamed over the
// target, so a crash never leaves a truncated store.
type FileBackend struct {
	mu    sync.Mutex
	path  string
	codec Codec
}

// NewFileBackend stores data under dir, creating it if needed.
func NewFileBackend(dir string, codec Codec) (*FileBackend, error) {
	if dir == "" {
		return nil, newError("open", KindUnavailable, errors.New("storage directory is required"))
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, newError("open", KindUnavailable, err)
	}
	if codec == nil {
		codec = JSONCodec{}
	}
	return &FileBackend{path: filepath.Join(dir, storeFileName), codec: codec}, nil
}

// Path returns the backing file
func (b *FileBackend) Path() string {
	return b.path
}

func (b *FileBackend) Set(ctx context.Context, key string, value Value) error {
	data, err := b.codec.Encode(ctx, key, value)
	if err != nil {
		return newError("set", KindSerialization, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := b.load()
	if err != nil {
		return newError("set", KindOperationFailed, err)
	}
	entries[key] = data
	if err := b.save(entries); err != nil {
		return newError("set", KindOperationFailed, err)
	}
	return nil
}

func (b *FileBackend) Get(ctx context.Context, key string) (*Value, error) {
	b.mu.Lock()
	entries, err := b.load()
	b.mu.Unlock()
	if err != nil {
		return nil, newError("get", KindOperationFailed, err)
	}

	data, ok := entries[key]
	if !ok {
		return nil, nil
	}

	v, err := b.codec.Decode(ctx, key, data)
	if err != nil {
		return nil, newError("get", KindSerialization, err)
	}
	return v, nil
}

func (b *FileBackend) Remove(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := b.load()
	if err != nil {
		return newError("remove", KindOperationFailed, err)
	}
	if _, ok := entries[key]; !ok {
		return nil
	}
	delete(entries, key)
	if err := b.save(entries); err != nil {
		return newError("remove", KindOperationFailed, err)
	}
	return nil
}

func (b *FileBackend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.save(map[string][]byte{}); err != nil {
		return newError("clear", KindOperationFailed, err)
	}
	return nil
}

func (b *FileBackend) Keys(_ context.Context) ([]string, error) {
	b.mu.Lock()
	entries, err := b.load()
	b.mu.Unlock()
	if err != nil {
		return nil, newError("keys", KindOperationFailed, err)
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// load reads the store; a missing file is an empty store.
func (b *FileBackend) load() (map[string][]byte, error) {
	entries := make(map[string][]byte)

	raw, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("corrupt store %s: %w", b.path, err)
	}
	return entries, nil
}

// save writes the store via a temp file, then atomically replaces the target.
func (b *FileBackend) save(entries map[string][]byte) error {
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(b.path), storeFileName+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(raw); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(0o600); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, b.path)
}

var _ Backend = (*FileBackend)(nil)
