package account

import (
	"context"

	"github.com/better-wallet/controller/internal/outside"
)

// SignOutsideExecution signs exec with acc, bound to acc's address and chain.
func SignOutsideExecution(ctx context.Context, acc Account, exec outside.Execution) (*outside.Signed, error) {
	hash := exec.Hash(acc.ChainID(), acc.Address())
	sig, err := acc.SignHash(ctx, hash)
	if err != nil {
		return nil, &Error{Op: "sign_outside_execution", Err: err}
	}
	return &outside.Signed{Execution: exec, Signature: sig}, nil
}
