// Package outside implements outside executions: call bundles signed by an
// account and submitted by any relayer that pays the fee.
package outside

import (
	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
)

// EntrypointV2 is the account entrypoint a relayer invokes.
const EntrypointV2 = "execute_from_outside_v2"

// AnyCaller lets any relayer submit the execution.
var AnyCaller = felt.MustShortString("ANY_CALLER")

var (
	outsideExecutionTypeHash = felt.TypeHash(`"OutsideExecution"("Caller":"ContractAddress","Nonce":"felt","Execute After":"u128","Execute Before":"u128","Calls":"Call*")"Call"("To":"ContractAddress","Selector":"selector","Calldata":"felt*")`)
	callTypeHash             = felt.TypeHash(`"Call"("To":"ContractAddress","Selector":"selector","Calldata":"felt*")`)

	domainName    = "Account.execute_from_outside"
	domainVersion = uint64(2)
)

// Execution is a call bundle valid for one caller in [ExecuteAfter, ExecuteBefore].
type Execution struct {
	Caller        felt.Felt
	Nonce         felt.Felt
	ExecuteAfter  uint64
	ExecuteBefore uint64
	Calls         []types.Call
}

// Signed is an execution with the signature of the eligible signer.
type Signed struct {
	Execution Execution
	Signature []felt.Felt
}

// Serialize returns [caller, nonce, execute_after, execute_before, n_calls, call...].
func (e Execution) Serialize() []felt.Felt {
	out := []felt.Felt{
		e.Caller,
		e.Nonce,
		felt.FromUint64(e.ExecuteAfter),
		felt.FromUint64(e.ExecuteBefore),
	}
	return append(out, types.SerializeCalls(e.Calls)...)
}

// Hash returns the message hash account signs to authorize the execution.
func (e Execution) Hash(chainID, account felt.Felt) felt.Felt {
	callHashes := make([]felt.Felt, len(e.Calls))
	for i, c := range e.Calls {
		callHashes[i] = felt.PoseidonMany(callTypeHash, c.To, c.Selector, felt.PoseidonMany(c.Calldata...))
	}

	structHash := felt.PoseidonMany(
		outsideExecutionTypeHash,
		e.Caller,
		e.Nonce,
		felt.FromUint64(e.ExecuteAfter),
		felt.FromUint64(e.ExecuteBefore),
		felt.PoseidonMany(callHashes...),
	)

	domain := felt.Domain{Name: domainName, Version: domainVersion, ChainID: chainID, Revision: 1}
	return felt.MessageHash(domain, account, structHash)
}

// Calldata returns the serialized execution followed by the serialized signature.
func (s Signed) Calldata() []felt.Felt {
	return append(s.Execution.Serialize(), types.SerializeFelts(s.Signature)...)
}

// Call wraps the signed execution into the single call a relayer submits
// against account.
func (s Signed) Call(account felt.Felt) types.Call {
	return types.NewCall(account, EntrypointV2, s.Calldata()...)
}
