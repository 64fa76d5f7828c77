// Package provider talks to the chain's JSON-RPC endpoint.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/better-wallet/controller/internal/outside"
	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
)

// Provider is the chain capability the controller and the relay consume.
// Errors are surfaced as *Error and never retried.
type Provider interface {
	ChainID(ctx context.Context) (felt.Felt, error)
	Nonce(ctx context.Context, address felt.Felt) (felt.Felt, error)
	Call(ctx context.Context, call types.Call) ([]felt.Felt, error)
	EstimateFee(ctx context.Context, tx types.InvokeTransaction) (*types.FeeEstimate, error)
	AddInvokeTransaction(ctx context.Context, tx types.InvokeTransaction) (*types.InvokeTransactionResult, error)
	AddDeployAccountTransaction(ctx context.Context, tx types.DeployAccountTransaction) (*types.DeployAccountTransactionResult, error)
	AddExecuteOutsideTransaction(ctx context.Context, address, chainID felt.Felt, signed outside.Signed) (*types.OutsideExecutionResult, error)
}

// ErrChainMismatch is returned when a request targets a different chain than
// the endpoint serves.
var ErrChainMismatch = errors.New("chain id mismatch")

// Error wraps a failed provider call.
type Error struct {
	Method string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Method, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
