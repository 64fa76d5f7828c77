// Package contract holds call builders and read bindings for the contracts
// the controller talks to.
package contract

import (
	"context"
	"fmt"

	"github.com/better-wallet/controller/internal/account"
	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
)

// Controller account entrypoints.
const (
	EntrypointDelegateAccount    = "delegate_account"
	EntrypointSetDelegateAccount = "set_delegate_account"
)

// DecodeError reports a contract response that does not match the ABI.
type DecodeError struct {
	Entrypoint string
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.Entrypoint, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Controller binds the controller account contract at an address.
// Writes are signed by the bound account.
type Controller struct {
	address felt.Felt
	account account.Account
}

// NewController binds the contract at acc's address.
func NewController(acc account.Account) *Controller {
	return &Controller{address: acc.Address(), account: acc}
}

// DelegateAccount reads the delegate slot.
func (c *Controller) DelegateAccount(ctx context.Context) (felt.Felt, error) {
	out, err := c.account.Provider().Call(ctx, types.NewCall(c.address, EntrypointDelegateAccount))
	if err != nil {
		return felt.Zero, err
	}
	if len(out) != 1 {
		return felt.Zero, &DecodeError{
			Entrypoint: EntrypointDelegateAccount,
			Err:        fmt.Errorf("expected 1 element, got %d", len(out)),
		}
	}
	return out[0], nil
}

// SetDelegateAccountCall returns the call that sets the delegate slot.
func (c *Controller) SetDelegateAccountCall(delegate felt.Felt) types.Call {
	return types.NewCall(c.address, EntrypointSetDelegateAccount, delegate)
}

// SetDelegateAccount signs and sends a set_delegate_account invoke.
func (c *Controller) SetDelegateAccount(ctx context.Context, delegate felt.Felt) (*types.InvokeTransactionResult, error) {
	return account.NewExecution(c.account, []types.Call{c.SetDelegateAccountCall(delegate)}).Send(ctx)
}
