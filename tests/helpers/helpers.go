// Package helpers provides common test utilities for the controller test suite.
package helpers

import (
	"context"
	"crypto/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/controller/internal/provider"
	"github.com/better-wallet/controller/internal/signer"
	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/tests/mocks"
)

// SepoliaChainID is the chain id the fake node serves by default.
var SepoliaChainID = felt.MustShortString("SN_SEPOLIA")

// NewTestContext creates a context with timeout for tests.
func NewTestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// NewNode starts a fake Starknet node that is closed with the test.
func NewNode(t *testing.T) *mocks.StarknetNode {
	t.Helper()
	node := mocks.NewStarknetNode(SepoliaChainID)
	t.Cleanup(node.Close)
	return node
}

// NewProvider dials url and closes the client with the test.
func NewProvider(t *testing.T, url string) *provider.Client {
	t.Helper()
	p, err := provider.NewClient(NewTestContext(t), url)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

// NewSigningKey generates a secp256k1 key.
func NewSigningKey(t *testing.T) *signer.SigningKey {
	t.Helper()
	key, err := signer.GenerateKey()
	require.NoError(t, err)
	return key
}

// RandomAddress generates a random contract address.
func RandomAddress(t *testing.T) felt.Felt {
	t.Helper()
	b := make([]byte, 31)
	_, err := rand.Read(b)
	require.NoError(t, err)
	f, err := felt.FromBytes(b)
	require.NoError(t, err)
	return f
}

// AssertNoSecret fails when s contains secret in either hex form.
func AssertNoSecret(t *testing.T, s string, secret felt.Felt) {
	t.Helper()
	lowered := strings.ToLower(s)
	assert.NotContains(t, lowered, secret.String())
	assert.NotContains(t, lowered, strings.TrimPrefix(secret.String(), "0x"))
}
