package controller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/controller/internal/account"
	"github.com/better-wallet/controller/internal/outside"
	"github.com/better-wallet/controller/internal/provider"
	"github.com/better-wallet/controller/internal/session"
	"github.com/better-wallet/controller/internal/signer"
	"github.com/better-wallet/controller/internal/storage"
	apperrors "github.com/better-wallet/controller/pkg/errors"
	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
	"github.com/better-wallet/controller/tests/mocks"
)

const (
	originA = "https://game-a.example"
	originB = "https://game-b.example"
)

var (
	sepolia = felt.MustShortString("SN_SEPOLIA")
	tokenA  = felt.MustFromHex("0xAA")
	tokenB  = felt.MustFromHex("0xBB")
	farAway = uint64(time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC).Unix())
)

type harness struct {
	node       *mocks.StarknetNode
	provider   *provider.Client
	backend    *storage.MemoryBackend
	owner      *signer.SigningKey
	guardian   *signer.SigningKey
	controller *Controller
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	node := mocks.NewStarknetNode(sepolia)
	t.Cleanup(node.Close)

	p, err := provider.NewClient(context.Background(), node.URL())
	require.NoError(t, err)
	t.Cleanup(p.Close)

	owner, err := signer.GenerateKey()
	require.NoError(t, err)
	guardian, err := signer.GenerateKey()
	require.NoError(t, err)

	backend := storage.NewMemoryBackend(nil)
	address := felt.MustFromHex("0x5e1c0ab6e6d5e9a7b4c1d3f2e8a9b0c7d6e5f4a3b2c1d0e9f8a7b6c5d4e3f21")

	return &harness{
		node:     node,
		provider: p,
		backend:  backend,
		owner:    owner,
		guardian: guardian,
		controller: New("testuser", p, signer.NewOwner(owner), signer.NewGuardian(guardian),
			address, sepolia, backend, opts...),
	}
}

func (h *harness) nonce(t *testing.T) felt.Felt {
	t.Helper()
	n, err := h.provider.Nonce(context.Background(), h.controller.Address())
	require.NoError(t, err)
	return n
}

func (h *harness) execute(t *testing.T, ctx context.Context, calls ...types.Call) types.InvokeTransaction {
	t.Helper()
	_, err := h.controller.Execute(ctx, calls, h.nonce(t), felt.FromUint64(1_000_000))
	require.NoError(t, err)

	invokes := h.node.Invokes()
	require.NotEmpty(t, invokes)
	return invokes[len(invokes)-1]
}

func transfer(token felt.Felt) types.Call {
	return types.NewCall(token, "transfer", felt.MustFromHex("0x1234"), felt.FromUint64(100), felt.Zero)
}

func isOwnerSignature(sig []felt.Felt) bool {
	return len(sig) == 2*signer.KeySignatureLen && !account.IsSessionSignature(sig)
}

func TestController_SessionScenario(t *testing.T) {
	h := newHarness(t)
	ctx := storage.WithOrigin(context.Background(), originA)

	_, err := h.controller.CreateSession(ctx, []session.AllowedMethod{session.NewAllowedMethod(tokenA, "transfer")}, farAway)
	require.NoError(t, err)

	t.Run("allowed call is session signed", func(t *testing.T) {
		tx := h.execute(t, ctx, transfer(tokenA))
		assert.True(t, account.IsSessionSignature(tx.Signature))

		hash := account.InvokeHash(tx.Version, tx.SenderAddress, tx.Calldata, tx.MaxFee, sepolia, tx.Nonce)
		keySig := tx.Signature[len(tx.Signature)-signer.KeySignatureLen:]
		assert.NoError(t, signer.Verify(keySig, hash))
	})

	t.Run("call to another contract is owner and guardian signed", func(t *testing.T) {
		tx := h.execute(t, ctx, transfer(tokenB))
		require.True(t, isOwnerSignature(tx.Signature))
		assert.Equal(t, h.owner.Identity(), tx.Signature[1])
		assert.Equal(t, h.guardian.Identity(), tx.Signature[signer.KeySignatureLen+1])
	})
}

func TestController_RoutingDeterminism(t *testing.T) {
	h := newHarness(t)
	ctx := storage.WithOrigin(context.Background(), originA)

	c1 := transfer(tokenA)
	c2 := types.NewCall(tokenA, "approve", felt.One, felt.One, felt.Zero)
	c3 := types.NewCall(tokenA, "burn", felt.One)

	_, err := h.controller.CreateSession(ctx, []session.AllowedMethod{
		session.NewAllowedMethod(tokenA, "transfer"),
		session.NewAllowedMethod(tokenA, "approve"),
	}, farAway)
	require.NoError(t, err)

	tx := h.execute(t, ctx, c1, c2)
	assert.True(t, account.IsSessionSignature(tx.Signature))

	tx = h.execute(t, ctx, c1, c2, c3)
	assert.True(t, isOwnerSignature(tx.Signature))

	// Same batch again: routing is recomputed, not cached.
	tx = h.execute(t, ctx, c1, c2)
	assert.True(t, account.IsSessionSignature(tx.Signature))
}

func TestController_OriginScoping(t *testing.T) {
	h := newHarness(t)
	ctxA := storage.WithOrigin(context.Background(), originA)
	ctxB := storage.WithOrigin(context.Background(), originB)

	_, err := h.controller.CreateSession(ctxA, []session.AllowedMethod{session.NewAllowedMethod(tokenA, "transfer")}, farAway)
	require.NoError(t, err)

	meta, err := h.controller.Session(ctxB)
	require.NoError(t, err)
	assert.Nil(t, meta)

	tx := h.execute(t, ctxB, transfer(tokenA))
	assert.True(t, isOwnerSignature(tx.Signature))
}

func TestController_MissingOrigin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.controller.Execute(ctx, []types.Call{transfer(tokenA)}, felt.Zero, felt.One)
	assert.True(t, IsKind(err, KindOrigin))
	assert.ErrorIs(t, err, storage.ErrMissingOrigin)

	_, err = h.controller.CreateSession(ctx, []session.AllowedMethod{session.NewAllowedMethod(tokenA, "transfer")}, farAway)
	assert.True(t, IsKind(err, KindOrigin))

	assert.Empty(t, h.node.Invokes())
}

func TestController_CreateSession(t *testing.T) {
	h := newHarness(t)
	ctx := storage.WithOrigin(context.Background(), originA)
	methods := []session.AllowedMethod{session.NewAllowedMethod(tokenA, "transfer")}

	created, err := h.controller.CreateSession(ctx, methods, farAway)
	require.NoError(t, err)
	require.Len(t, created.Authorization, 2*signer.KeySignatureLen)

	t.Run("stored metadata matches what was returned", func(t *testing.T) {
		v, err := h.backend.Get(ctx, storage.SessionSelector(h.controller.Address(), originA, sepolia))
		require.NoError(t, err)
		require.NotNil(t, v)

		meta := v.Session
		assert.Equal(t, created.Authorization, meta.Credentials.Authorization)
		assert.Equal(t, created.PrivateKey, meta.Credentials.PrivateKey)
		assert.Equal(t, methods, meta.Session.Methods)
		assert.Equal(t, farAway, meta.Session.ExpiresAt)
		assert.Nil(t, meta.MaxFee)

		key, err := signer.FromSecretScalar(created.PrivateKey)
		require.NoError(t, err)
		assert.Equal(t, key.Identity(), meta.Session.SessionKey)
	})

	t.Run("authorization is owner then guardian over the session hash", func(t *testing.T) {
		meta, err := h.controller.Session(ctx)
		require.NoError(t, err)

		hash := meta.Session.Hash(sepolia, h.controller.Address())
		assert.NoError(t, signer.Verify(created.Authorization[:signer.KeySignatureLen], hash))
		assert.NoError(t, signer.Verify(created.Authorization[signer.KeySignatureLen:], hash))
		assert.Equal(t, h.owner.Identity(), created.Authorization[1])
	})

	t.Run("new session overwrites", func(t *testing.T) {
		second, err := h.controller.CreateSession(ctx, methods, farAway+1)
		require.NoError(t, err)
		assert.NotEqual(t, created.PrivateKey, second.PrivateKey)

		meta, err := h.controller.Session(ctx)
		require.NoError(t, err)
		assert.Equal(t, second.PrivateKey, meta.Credentials.PrivateKey)

		keys, err := h.backend.Keys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, 1)
	})

	t.Run("clear removes it", func(t *testing.T) {
		require.NoError(t, h.backend.Clear(ctx))
		meta, err := h.controller.Session(ctx)
		require.NoError(t, err)
		assert.Nil(t, meta)
	})

	t.Run("empty allowlist", func(t *testing.T) {
		_, err := h.controller.CreateSession(ctx, nil, farAway)
		assert.True(t, IsKind(err, KindSessionPolicy))
		assert.ErrorIs(t, err, session.ErrEmptyAllowlist)
	})
}

func TestController_RevokeSession(t *testing.T) {
	h := newHarness(t)
	ctx := storage.WithOrigin(context.Background(), originA)

	_, err := h.controller.CreateSession(ctx, []session.AllowedMethod{session.NewAllowedMethod(tokenA, "transfer")}, farAway)
	require.NoError(t, err)
	require.NoError(t, h.controller.RevokeSession(ctx))

	tx := h.execute(t, ctx, transfer(tokenA))
	assert.True(t, isOwnerSignature(tx.Signature))

	assert.True(t, IsKind(h.controller.RevokeSession(context.Background()), KindOrigin))
}

func TestController_ExpiredSession(t *testing.T) {
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	expired := uint64(now.Add(-time.Hour).Unix())

	t.Run("chain decides by default", func(t *testing.T) {
		h := newHarness(t, WithClock(clock))
		ctx := storage.WithOrigin(context.Background(), originA)
		_, err := h.controller.CreateSession(ctx, []session.AllowedMethod{session.NewAllowedMethod(tokenA, "transfer")}, expired)
		require.NoError(t, err)

		tx := h.execute(t, ctx, transfer(tokenA))
		assert.True(t, account.IsSessionSignature(tx.Signature))
	})

	t.Run("expiry check routes to owner", func(t *testing.T) {
		h := newHarness(t, WithClock(clock), WithExpiryCheck())
		ctx := storage.WithOrigin(context.Background(), originA)
		_, err := h.controller.CreateSession(ctx, []session.AllowedMethod{session.NewAllowedMethod(tokenA, "transfer")}, expired)
		require.NoError(t, err)

		tx := h.execute(t, ctx, transfer(tokenA))
		assert.True(t, isOwnerSignature(tx.Signature))
	})
}

func TestController_SessionMaxFee(t *testing.T) {
	h := newHarness(t, WithSessionMaxFee(felt.FromUint64(500)))
	ctx := storage.WithOrigin(context.Background(), originA)

	_, err := h.controller.CreateSession(ctx, []session.AllowedMethod{session.NewAllowedMethod(tokenA, "transfer")}, farAway)
	require.NoError(t, err)

	t.Run("within cap", func(t *testing.T) {
		_, err := h.controller.Execute(ctx, []types.Call{transfer(tokenA)}, h.nonce(t), felt.FromUint64(500))
		require.NoError(t, err)
	})

	t.Run("above cap", func(t *testing.T) {
		_, err := h.controller.Execute(ctx, []types.Call{transfer(tokenA)}, h.nonce(t), felt.FromUint64(501))
		assert.True(t, IsKind(err, KindSessionPolicy))

		var feeErr *MaxFeeError
		assert.ErrorAs(t, err, &feeErr)
	})

	t.Run("cap does not apply to owner route", func(t *testing.T) {
		_, err := h.controller.Execute(ctx, []types.Call{transfer(tokenB)}, h.nonce(t), felt.FromUint64(10_000))
		require.NoError(t, err)
	})
}

func TestController_EstimateInvokeFee(t *testing.T) {
	h := newHarness(t)
	h.node.SetFee(100, 20)
	ctx := storage.WithOrigin(context.Background(), originA)

	est, err := h.controller.EstimateInvokeFee(ctx, []types.Call{transfer(tokenA)}, nil)
	require.NoError(t, err)
	assert.Equal(t, felt.FromUint64(2000), est.OverallFee)
	assert.Equal(t, felt.FromUint64(2000), est.SuggestedMaxFee)

	m := 2.0
	est, err = h.controller.EstimateInvokeFee(ctx, []types.Call{transfer(tokenA)}, &m)
	require.NoError(t, err)
	assert.Equal(t, felt.FromUint64(4000), est.SuggestedMaxFee)

	bad := -1.0
	_, err = h.controller.EstimateInvokeFee(ctx, []types.Call{transfer(tokenA)}, &bad)
	assert.True(t, IsKind(err, KindAccount))
}

func TestController_EstimateInvokeFee_NonFiniteMultiplier(t *testing.T) {
	h := newHarness(t)
	h.node.SetFee(100, 20)
	ctx := storage.WithOrigin(context.Background(), originA)

	for _, m := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		t.Run(fmt.Sprint(m), func(t *testing.T) {
			var est *types.FeeEstimate
			var err error
			require.NotPanics(t, func() {
				est, err = h.controller.EstimateInvokeFee(ctx, []types.Call{transfer(tokenA)}, &m)
			})
			assert.Nil(t, est)
			assert.True(t, IsKind(err, KindAccount))
		})
	}
}

func TestController_ExecuteFromOutside(t *testing.T) {
	h := newHarness(t)
	ctx := storage.WithOrigin(context.Background(), originA)

	var received []*outside.Request
	h.node.SetOutsideHandler(func(req *outside.Request) (felt.Felt, *apperrors.RPCError) {
		received = append(received, req)
		return felt.FromUint64(uint64(len(received))), nil
	})

	_, err := h.controller.CreateSession(ctx, []session.AllowedMethod{session.NewAllowedMethod(tokenA, "transfer")}, farAway)
	require.NoError(t, err)

	exec := func(calls ...types.Call) outside.Execution {
		return outside.Execution{Caller: outside.AnyCaller, Nonce: felt.FromUint64(uint64(len(received) + 1)), ExecuteBefore: farAway, Calls: calls}
	}

	hash, err := h.controller.ExecuteFromOutside(ctx, exec(transfer(tokenA)))
	require.NoError(t, err)
	assert.Equal(t, felt.One, hash)
	require.Len(t, received, 1)
	assert.Equal(t, h.controller.Address(), received[0].Address)
	assert.True(t, account.IsSessionSignature(received[0].Signed.Signature))

	_, err = h.controller.ExecuteFromOutside(ctx, exec(transfer(tokenB)))
	require.NoError(t, err)
	require.Len(t, received, 2)
	sig := received[1].Signed.Signature
	require.True(t, isOwnerSignature(sig))
	assert.NoError(t, signer.Verify(sig[:signer.KeySignatureLen], received[1].Signed.Execution.Hash(sepolia, h.controller.Address())))

	t.Run("relay failure is a provider error", func(t *testing.T) {
		h.node.SetOutsideHandler(func(req *outside.Request) (felt.Felt, *apperrors.RPCError) {
			return felt.Zero, apperrors.ExecutionError(errors.New("nonce already used"))
		})
		_, err := h.controller.ExecuteFromOutside(ctx, exec(transfer(tokenA)))
		assert.True(t, IsKind(err, KindProvider))
	})
}

func TestController_Deploy(t *testing.T) {
	t.Run("deploys with username salt and owner calldata", func(t *testing.T) {
		h := newHarness(t)
		res, err := h.controller.Deploy(context.Background(), felt.FromUint64(1000))
		require.NoError(t, err)

		deploys := h.node.Deploys()
		require.Len(t, deploys, 1)
		tx := deploys[0]
		assert.Equal(t, felt.MustShortString("testuser"), tx.ContractAddressSalt)
		assert.Equal(t, DefaultClassHash, tx.ClassHash)
		assert.Equal(t, []felt.Felt{felt.FromUint64(uint64(signer.SchemeSecp256k1)), h.owner.Identity(), felt.One}, tx.ConstructorCalldata)
		assert.Equal(t, types.ContractAddress(tx.ContractAddressSalt, tx.ClassHash, tx.ConstructorCalldata, felt.Zero), res.ContractAddress)
	})

	t.Run("address is known before deployment", func(t *testing.T) {
		h := newHarness(t)
		want, err := AccountAddress("testuser", signer.NewOwner(h.owner), DefaultClassHash)
		require.NoError(t, err)

		res, err := h.controller.Deploy(context.Background(), felt.FromUint64(1000))
		require.NoError(t, err)
		assert.Equal(t, want, res.ContractAddress)

		_, err = AccountAddress(strings.Repeat("x", 40), signer.NewOwner(h.owner), DefaultClassHash)
		assert.True(t, IsKind(err, KindShortString))
	})

	t.Run("custom class hash", func(t *testing.T) {
		h := newHarness(t, WithClassHash(felt.FromUint64(77)))
		_, err := h.controller.Deploy(context.Background(), felt.FromUint64(1000))
		require.NoError(t, err)
		assert.Equal(t, felt.FromUint64(77), h.node.Deploys()[0].ClassHash)
	})

	t.Run("username that is not a short string", func(t *testing.T) {
		h := newHarness(t)
		c := New(strings.Repeat("x", 40), h.provider, signer.NewOwner(h.owner), nil, h.controller.Address(), sepolia, h.backend)

		_, err := c.Deploy(context.Background(), felt.FromUint64(1000))
		assert.True(t, IsKind(err, KindShortString))
		assert.Empty(t, h.node.Deploys())
	})
}

func TestController_Delegate(t *testing.T) {
	h := newHarness(t)
	ctx := storage.WithOrigin(context.Background(), originA)
	delegate := felt.MustFromHex("0xde1e6a7e")

	// A session that allows set_delegate_account must still not be used.
	_, err := h.controller.CreateSession(ctx, []session.AllowedMethod{
		session.NewAllowedMethod(h.controller.Address(), "set_delegate_account"),
	}, farAway)
	require.NoError(t, err)

	_, err = h.controller.SetDelegateAccount(ctx, delegate)
	require.NoError(t, err)

	invokes := h.node.Invokes()
	require.Len(t, invokes, 1)
	assert.True(t, isOwnerSignature(invokes[0].Signature))

	got, err := h.controller.DelegateAccount(ctx)
	require.NoError(t, err)
	assert.Equal(t, delegate, got)
}

func TestController_HardwareOwner(t *testing.T) {
	h := newHarness(t)
	auth, err := signer.NewSoftAuthenticator("https://controller.example")
	require.NoError(t, err)

	c := New("testuser", h.provider, signer.NewHardware(auth), nil, h.controller.Address(), sepolia, h.backend)

	t.Run("creates a session with a passkey authorization", func(t *testing.T) {
		ctx := storage.WithOrigin(context.Background(), originA)
		created, err := c.CreateSession(ctx, []session.AllowedMethod{session.NewAllowedMethod(tokenA, "transfer")}, farAway)
		require.NoError(t, err)
		assert.Equal(t, felt.FromUint64(uint64(signer.SchemeWebauthn)), created.Authorization[0])
	})

	t.Run("cancelled prompt is a device error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(storage.WithOrigin(context.Background(), originB))
		cancel()

		_, err := c.CreateSession(ctx, []session.AllowedMethod{session.NewAllowedMethod(tokenA, "transfer")}, farAway)
		assert.True(t, IsKind(err, KindDevice))
		assert.ErrorIs(t, err, signer.ErrUserCancelled)

		_, err = c.Execute(ctx, []types.Call{transfer(tokenB)}, felt.Zero, felt.One)
		assert.True(t, IsKind(err, KindDevice))
	})
}

type failingBackend struct {
	storage.Backend
}

func (failingBackend) Get(context.Context, string) (*storage.Value, error) {
	return nil, &storage.Error{Op: "get", Kind: storage.KindUnavailable, Err: errors.New("backend offline")}
}

func (failingBackend) Set(context.Context, string, storage.Value) error {
	return &storage.Error{Op: "set", Kind: storage.KindUnavailable, Err: errors.New("backend offline")}
}

func TestController_StorageFailure(t *testing.T) {
	h := newHarness(t)
	c := New("testuser", h.provider, signer.NewOwner(h.owner), nil, h.controller.Address(), sepolia, failingBackend{})
	ctx := storage.WithOrigin(context.Background(), originA)

	_, err := c.Execute(ctx, []types.Call{transfer(tokenA)}, felt.Zero, felt.One)
	assert.True(t, IsKind(err, KindStorage))

	_, err = c.CreateSession(ctx, []session.AllowedMethod{session.NewAllowedMethod(tokenA, "transfer")}, farAway)
	assert.True(t, IsKind(err, KindStorage))

	assert.Empty(t, h.node.Invokes(), "no fallback to the owner on storage failure")
}

func TestController_ProviderFailureLeavesSessionUsable(t *testing.T) {
	h := newHarness(t)
	ctx := storage.WithOrigin(context.Background(), originA)
	_, err := h.controller.CreateSession(ctx, []session.AllowedMethod{session.NewAllowedMethod(tokenA, "transfer")}, farAway)
	require.NoError(t, err)

	h.node.FailInvokes("Account validation failed")
	_, err = h.controller.Execute(ctx, []types.Call{transfer(tokenA)}, h.nonce(t), felt.One)
	assert.True(t, IsKind(err, KindAccount))

	var providerErr *provider.Error
	assert.ErrorAs(t, err, &providerErr)

	h.node.FailInvokes("")
	tx := h.execute(t, ctx, transfer(tokenA))
	assert.True(t, account.IsSessionSignature(tx.Signature))
}
