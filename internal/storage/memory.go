package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend keeps encoded values in process memory.
type MemoryBackend struct {
	mu    sync.RWMutex
	codec Codec
	data  map[string][]byte
}

// NewMemoryBackend creates an empty backend. A nil codec means JSONCodec.
func NewMemoryBackend(codec Codec) *MemoryBackend {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &MemoryBackend{codec: codec, data: make(map[string][]byte)}
}

func (b *MemoryBackend) Set(ctx context.Context, key string, value Value) error {
	data, err := b.codec.Encode(ctx, key, value)
	if err != nil {
		return newError("set", KindSerialization, err)
	}

	b.mu.Lock()
	b.data[key] = data
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Get(ctx context.Context, key string) (*Value, error) {
	b.mu.RLock()
	data, ok := b.data[key]
	b.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	v, err := b.codec.Decode(ctx, key, data)
	if err != nil {
		return nil, newError("get", KindSerialization, err)
	}
	return v, nil
}

func (b *MemoryBackend) Remove(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.data, key)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Clear(_ context.Context) error {
	b.mu.Lock()
	b.data = make(map[string][]byte)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Keys(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

var _ Backend = (*MemoryBackend)(nil)
