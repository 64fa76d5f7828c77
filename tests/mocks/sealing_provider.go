// Package mocks provides test doubles for the chain node and sealing
// providers.
package mocks

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
)

// MockSealingProvider seals with a random AES-GCM key and counts calls.
type MockSealingProvider struct {
	mu         sync.RWMutex
	aead       cipher.AEAD
	sealCalls  int
	openCalls  int
	shouldFail bool
}

// NewMockSealingProvider creates a provider with a fresh random key.
func NewMockSealingProvider() *MockSealingProvider {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		panic(err)
	}
	return &MockSealingProvider{aead: aead}
}

// Seal encrypts data bound to aad.
func (m *MockSealingProvider) Seal(ctx context.Context, data, aad []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sealCalls++
	if m.shouldFail {
		return nil, fmt.Errorf("mock sealing failure")
	}

	nonce := make([]byte, m.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return m.aead.Seal(nonce, nonce, data, aad), nil
}

// Open decrypts data sealed by this provider.
func (m *MockSealingProvider) Open(ctx context.Context, sealed, aad []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.openCalls++
	if m.shouldFail {
		return nil, fmt.Errorf("mock sealing failure")
	}

	n := m.aead.NonceSize()
	if len(sealed) < n {
		return nil, fmt.Errorf("ciphertext too short")
	}
	return m.aead.Open(nil, sealed[:n], sealed[n:], aad)
}

// Name returns the provider name.
func (m *MockSealingProvider) Name() string {
	return "mock"
}

// SetShouldFail makes every subsequent call fail.
func (m *MockSealingProvider) SetShouldFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFail = fail
}

// SealCalls returns the number of Seal calls.
func (m *MockSealingProvider) SealCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sealCalls
}

// OpenCalls returns the number of Open calls.
func (m *MockSealingProvider) OpenCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.openCalls
}
