package contract

import (
	"fmt"
	"math/big"

	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
)

// ERC-20 entrypoints.
const (
	EntrypointTransfer = "transfer"
	EntrypointApprove  = "approve"
)

// Transfer returns a call moving amount of token to recipient. Amounts are
// u256, encoded as (low, high).
func Transfer(token, recipient felt.Felt, amount *big.Int) (types.Call, error) {
	low, high, err := u256(amount)
	if err != nil {
		return types.Call{}, err
	}
	return types.NewCall(token, EntrypointTransfer, recipient, low, high), nil
}

// Approve returns a call letting spender move amount of token.
func Approve(token, spender felt.Felt, amount *big.Int) (types.Call, error) {
	low, high, err := u256(amount)
	if err != nil {
		return types.Call{}, err
	}
	return types.NewCall(token, EntrypointApprove, spender, low, high), nil
}

func u256(v *big.Int) (felt.Felt, felt.Felt, error) {
	if v == nil || v.Sign() < 0 || v.BitLen() > 256 {
		return felt.Zero, felt.Zero, fmt.Errorf("amount %v is not a u256", v)
	}
	low, high := felt.SplitU256(v)
	return low, high, nil
}
