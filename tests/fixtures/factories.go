// Package fixtures provides builders for calls, sessions and outside
// executions used across test suites.
package fixtures

import (
	"math/big"
	"time"

	"github.com/better-wallet/controller/internal/contract"
	"github.com/better-wallet/controller/internal/outside"
	"github.com/better-wallet/controller/internal/session"
	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
)

// Well-known test contracts.
var (
	TokenA    = felt.MustFromHex("0xAA")
	TokenB    = felt.MustFromHex("0xBB")
	Recipient = felt.MustFromHex("0x1234")
)

// Transfer builds an ERC-20 transfer of amount from token to Recipient.
func Transfer(token felt.Felt, amount uint64) types.Call {
	call, err := contract.Transfer(token, Recipient, new(big.Int).SetUint64(amount))
	if err != nil {
		panic(err)
	}
	return call
}

// Approve builds an ERC-20 approve of amount on token for Recipient.
func Approve(token felt.Felt, amount uint64) types.Call {
	call, err := contract.Approve(token, Recipient, new(big.Int).SetUint64(amount))
	if err != nil {
		panic(err)
	}
	return call
}

// AllowTransfers allows "transfer" on each token.
func AllowTransfers(tokens ...felt.Felt) []session.AllowedMethod {
	methods := make([]session.AllowedMethod, len(tokens))
	for i, token := range tokens {
		methods[i] = session.NewAllowedMethod(token, "transfer")
	}
	return methods
}

// ExpiresIn returns a unix expiry d from now.
func ExpiresIn(d time.Duration) uint64 {
	return uint64(time.Now().Add(d).Unix())
}

// OutsideExecution builds an any-caller execution valid for the next hour.
func OutsideExecution(nonce uint64, calls ...types.Call) outside.Execution {
	return outside.Execution{
		Caller:        outside.AnyCaller,
		Nonce:         felt.FromUint64(nonce),
		ExecuteAfter:  0,
		ExecuteBefore: ExpiresIn(time.Hour),
		Calls:         calls,
	}
}
