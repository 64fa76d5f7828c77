package storage

import (
	"context"
	"encoding/json"

	"github.com/better-wallet/controller/internal/sealing"
)

// Codec converts values to and from the bytes a backend stores under key.
type Codec interface {
	Encode(ctx context.Context, key string, v Value) ([]byte, error)
	Decode(ctx context.Context, key string, data []byte) (*Value, error)
}

// JSONCodec stores values as plain JSON.
type JSONCodec struct{}

func (JSONCodec) Encode(_ context.Context, _ string, v Value) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Decode(_ context.Context, _ string, data []byte) (*Value, error) {
	var v Value
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SealedCodec seals the JSON encoding with a sealing provider so session
// private keys are never written in the clear. The storage key is the
// associated data, so a blob only opens under the key it was written to.
type SealedCodec struct {
	provider sealing.Provider
}

// NewSealedCodec wraps provider
func NewSealedCodec(provider sealing.Provider) *SealedCodec {
	return &SealedCodec{provider: provider}
}

func (c *SealedCodec) Encode(ctx context.Context, key string, v Value) ([]byte, error) {
	plain, err := JSONCodec{}.Encode(ctx, key, v)
	if err != nil {
		return nil, err
	}
	return c.provider.Seal(ctx, plain, []byte(key))
}

func (c *SealedCodec) Decode(ctx context.Context, key string, data []byte) (*Value, error) {
	plain, err := c.provider.Open(ctx, data, []byte(key))
	if err != nil {
		return nil, err
	}
	return JSONCodec{}.Decode(ctx, key, plain)
}

// CodecFor returns a SealedCodec for a non-nil provider and JSONCodec otherwise.
func CodecFor(provider sealing.Provider) Codec {
	if provider == nil {
		return JSONCodec{}
	}
	return NewSealedCodec(provider)
}
