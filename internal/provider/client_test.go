package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/controller/internal/outside"
	apperrors "github.com/better-wallet/controller/pkg/errors"
	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
	"github.com/better-wallet/controller/tests/mocks"
)

var sepolia = felt.MustShortString("SN_SEPOLIA")

func newTestClient(t *testing.T) (*Client, *mocks.StarknetNode) {
	t.Helper()

	node := mocks.NewStarknetNode(sepolia)
	t.Cleanup(node.Close)

	c, err := NewClient(context.Background(), node.URL())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, node
}

func TestNewClient(t *testing.T) {
	t.Run("detects chain id", func(t *testing.T) {
		c, _ := newTestClient(t)
		chainID, err := c.ChainID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, sepolia, chainID)
	})

	t.Run("requires url", func(t *testing.T) {
		_, err := NewClient(context.Background(), "")
		assert.Error(t, err)
	})
}

func TestClient_NonceAndInvoke(t *testing.T) {
	ctx := context.Background()
	c, node := newTestClient(t)
	sender := felt.MustFromHex("0x123")

	nonce, err := c.Nonce(ctx, sender)
	require.NoError(t, err)
	assert.Equal(t, felt.Zero, nonce)

	tx := types.InvokeTransaction{
		Type:          types.TxTypeInvoke,
		SenderAddress: sender,
		Calldata:      types.SerializeCalls([]types.Call{types.NewCall(felt.MustFromHex("0xaa"), "transfer", felt.One)}),
		MaxFee:        felt.FromUint64(1000),
		Version:       felt.One,
		Signature:     []felt.Felt{felt.One},
		Nonce:         nonce,
	}

	res, err := c.AddInvokeTransaction(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, mocks.TransactionHash(sender, nonce), res.TransactionHash)
	assert.Len(t, node.Invokes(), 1)

	nonce, err = c.Nonce(ctx, sender)
	require.NoError(t, err)
	assert.Equal(t, felt.One, nonce)

	t.Run("stale nonce surfaces node error", func(t *testing.T) {
		_, err := c.AddInvokeTransaction(ctx, tx)
		require.Error(t, err)

		var providerErr *Error
		require.ErrorAs(t, err, &providerErr)
		assert.Equal(t, "starknet_addInvokeTransaction", providerErr.Method)
		assert.Contains(t, err.Error(), "Invalid transaction nonce")
	})
}

func TestClient_EstimateFee(t *testing.T) {
	c, node := newTestClient(t)
	node.SetFee(200, 3)

	est, err := c.EstimateFee(context.Background(), types.InvokeTransaction{Type: types.TxTypeInvoke})
	require.NoError(t, err)
	assert.Equal(t, felt.FromUint64(600), est.OverallFee)
	assert.Equal(t, felt.FromUint64(200), est.GasConsumed)
}

func TestClient_Call(t *testing.T) {
	c, node := newTestClient(t)
	account := felt.MustFromHex("0x123")
	node.SetDelegate(account, felt.MustFromHex("0x777"))

	out, err := c.Call(context.Background(), types.NewCall(account, "delegate_account"))
	require.NoError(t, err)
	assert.Equal(t, []felt.Felt{felt.MustFromHex("0x777")}, out)

	_, err = c.Call(context.Background(), types.NewCall(account, "missing"))
	assert.Error(t, err)
}

func TestClient_AddDeployAccountTransaction(t *testing.T) {
	c, node := newTestClient(t)
	tx := types.DeployAccountTransaction{
		Type:                types.TxTypeDeployAccount,
		ContractAddressSalt: felt.MustShortString("testuser"),
		ClassHash:           felt.FromUint64(5),
		ConstructorCalldata: []felt.Felt{felt.One},
		Signature:           []felt.Felt{},
	}

	res, err := c.AddDeployAccountTransaction(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, types.ContractAddress(tx.ContractAddressSalt, tx.ClassHash, tx.ConstructorCalldata, felt.Zero), res.ContractAddress)
	assert.Len(t, node.Deploys(), 1)
}

func TestClient_AddExecuteOutsideTransaction(t *testing.T) {
	ctx := context.Background()
	c, node := newTestClient(t)
	account := felt.MustFromHex("0x123")
	signed := outside.Signed{
		Execution: outside.Execution{
			Caller:        outside.AnyCaller,
			Nonce:         felt.FromUint64(9),
			ExecuteBefore: 3000000000,
			Calls:         []types.Call{types.NewCall(felt.MustFromHex("0xaa"), "transfer", felt.One)},
		},
		Signature: []felt.Felt{felt.One, felt.FromUint64(2)},
	}

	t.Run("success", func(t *testing.T) {
		var got *outside.Request
		node.SetOutsideHandler(func(req *outside.Request) (felt.Felt, *apperrors.RPCError) {
			got = req
			return felt.MustFromHex("0xabc"), nil
		})

		res, err := c.AddExecuteOutsideTransaction(ctx, account, sepolia, signed)
		require.NoError(t, err)
		assert.Equal(t, felt.MustFromHex("0xabc"), res.TransactionHash)
		require.NotNil(t, got)
		assert.Equal(t, account, got.Address)
		assert.Equal(t, signed, got.Signed)
	})

	t.Run("relay error", func(t *testing.T) {
		node.SetOutsideHandler(func(req *outside.Request) (felt.Felt, *apperrors.RPCError) {
			return felt.Zero, apperrors.ExecutionError(errors.New("insufficient balance"))
		})

		_, err := c.AddExecuteOutsideTransaction(ctx, account, sepolia, signed)
		require.Error(t, err)

		var rpcErr *apperrors.RPCError
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, apperrors.CodeExecutionError, rpcErr.Code)
		assert.Equal(t, "insufficient balance", rpcErr.Data)
	})

	t.Run("chain mismatch", func(t *testing.T) {
		_, err := c.AddExecuteOutsideTransaction(ctx, account, felt.MustShortString("SN_MAIN"), signed)
		assert.ErrorIs(t, err, ErrChainMismatch)
	})

	t.Run("canceled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := c.AddExecuteOutsideTransaction(cctx, account, sepolia, signed)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
