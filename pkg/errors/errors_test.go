package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *RPCError
		expected string
	}{
		{
			name:     "error without data",
			err:      &RPCError{Code: CodeInvalidParams, Message: "missing address"},
			expected: "rpc error -32602: missing address",
		},
		{
			name:     "error with data",
			err:      &RPCError{Code: CodeExecutionError, Message: "Execution error", Data: "nonce too low"},
			expected: "rpc error -32000: Execution error (nonce too low)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestExecutionError(t *testing.T) {
	err := ExecutionError(fmt.Errorf("insufficient balance"))

	assert.Equal(t, CodeExecutionError, err.Code)
	assert.Equal(t, "Execution error", err.Message)
	assert.Equal(t, "insufficient balance", err.Data)
	assert.Equal(t, CodeExecutionError, err.ErrorCode())
}

func TestResponseEnvelope(t *testing.T) {
	t.Run("success echoes id", func(t *testing.T) {
		raw, err := json.Marshal(Result(json.RawMessage(`7`), "0x1"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"result":"0x1"}`, string(raw))
	})

	t.Run("success without id sends null", func(t *testing.T) {
		raw, err := json.Marshal(Result(nil, "0x1"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"result":"0x1"}`, string(raw))
	})

	t.Run("invalid params without id sends null", func(t *testing.T) {
		raw, err := json.Marshal(Failure(nil, InvalidParams("bad")))
		require.NoError(t, err)
		assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32602,"message":"bad"}}`, string(raw))
	})

	t.Run("explicit null id is echoed", func(t *testing.T) {
		raw, err := json.Marshal(Result(json.RawMessage(`null`), "0x1"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"jsonrpc":"2.0","id":null,"result":"0x1"}`, string(raw))
	})

	t.Run("execution failure omits the field", func(t *testing.T) {
		raw, err := json.Marshal(FailureWithoutID(ExecutionError(fmt.Errorf("boom"))))
		require.NoError(t, err)
		assert.JSONEq(t, `{"jsonrpc":"2.0","error":{"code":-32000,"message":"Execution error","data":"boom"}}`, string(raw))
	})

	t.Run("invalid params keeps id", func(t *testing.T) {
		raw, err := json.Marshal(Failure(json.RawMessage(`"abc"`), InvalidParams("bad")))
		require.NoError(t, err)
		assert.JSONEq(t, `{"jsonrpc":"2.0","id":"abc","error":{"code":-32602,"message":"bad"}}`, string(raw))
	})
}

func TestIsRPCError(t *testing.T) {
	t.Run("returns RPCError when wrapped", func(t *testing.T) {
		rpcErr := InvalidParams("bad")
		wrapped := fmt.Errorf("relay: %w", rpcErr)

		result, ok := IsRPCError(wrapped)
		assert.True(t, ok)
		assert.Equal(t, rpcErr, result)
	})

	t.Run("returns false for other errors", func(t *testing.T) {
		result, ok := IsRPCError(errors.New("plain"))
		assert.False(t, ok)
		assert.Nil(t, result)
	})
}
