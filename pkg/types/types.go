package types

import (
	"math/big"

	"github.com/better-wallet/controller/pkg/felt"
)

// Transaction versions and type tags used on the wire.
const (
	TransactionVersion1 = 1

	TxTypeInvoke        = "INVOKE"
	TxTypeDeployAccount = "DEPLOY_ACCOUNT"
)

// BlockTagPending is the block identifier used for nonce and call queries.
const BlockTagPending = "pending"

// Call is a single contract invocation.
type Call struct {
	To       felt.Felt   `json:"to"`
	Selector felt.Felt   `json:"selector"`
	Calldata []felt.Felt `json:"calldata"`
}

// NewCall builds a call from an entrypoint name.
func NewCall(to felt.Felt, entrypoint string, calldata ...felt.Felt) Call {
	return Call{
		To:       to,
		Selector: felt.SelectorFromName(entrypoint),
		Calldata: calldata,
	}
}

// Serialize returns the call as (to, selector, len(calldata), calldata...).
func (c Call) Serialize() []felt.Felt {
	out := make([]felt.Felt, 0, 3+len(c.Calldata))
	out = append(out, c.To, c.Selector, felt.FromUint64(uint64(len(c.Calldata))))
	return append(out, c.Calldata...)
}

// SerializeCalls encodes a call batch as (len(calls), call...), the calldata
// layout expected by the account's __execute__ entrypoint.
func SerializeCalls(calls []Call) []felt.Felt {
	out := []felt.Felt{felt.FromUint64(uint64(len(calls)))}
	for _, c := range calls {
		out = append(out, c.Serialize()...)
	}
	return out
}

// SerializeFelts encodes a felt array as (len, elems...).
func SerializeFelts(elems []felt.Felt) []felt.Felt {
	out := make([]felt.Felt, 0, len(elems)+1)
	out = append(out, felt.FromUint64(uint64(len(elems))))
	return append(out, elems...)
}

// InvokeTransaction is a signed version 1 invoke transaction.
type InvokeTransaction struct {
	Type          string      `json:"type"`
	SenderAddress felt.Felt   `json:"sender_address"`
	Calldata      []felt.Felt `json:"calldata"`
	MaxFee        felt.Felt   `json:"max_fee"`
	Version       felt.Felt   `json:"version"`
	Signature     []felt.Felt `json:"signature"`
	Nonce         felt.Felt   `json:"nonce"`
}

// DeployAccountTransaction is a signed version 1 account deployment.
type DeployAccountTransaction struct {
	Type                string      `json:"type"`
	MaxFee              felt.Felt   `json:"max_fee"`
	Version             felt.Felt   `json:"version"`
	Signature           []felt.Felt `json:"signature"`
	Nonce               felt.Felt   `json:"nonce"`
	ContractAddressSalt felt.Felt   `json:"contract_address_salt"`
	ConstructorCalldata []felt.Felt `json:"constructor_calldata"`
	ClassHash           felt.Felt   `json:"class_hash"`
}

// InvokeTransactionResult is returned after an invoke is accepted.
type InvokeTransactionResult struct {
	TransactionHash felt.Felt `json:"transaction_hash"`
}

// DeployAccountTransactionResult is returned after a deployment is accepted.
type DeployAccountTransactionResult struct {
	TransactionHash felt.Felt `json:"transaction_hash"`
	ContractAddress felt.Felt `json:"contract_address"`
}

// OutsideExecutionResult is returned by the outside execution endpoint.
type OutsideExecutionResult struct {
	TransactionHash felt.Felt `json:"transaction_hash"`
}

// FeeEstimate is the provider's estimate for a transaction. SuggestedMaxFee
// is OverallFee scaled by the caller's fee multiplier.
type FeeEstimate struct {
	GasConsumed     felt.Felt `json:"gas_consumed"`
	GasPrice        felt.Felt `json:"gas_price"`
	OverallFee      felt.Felt `json:"overall_fee"`
	SuggestedMaxFee felt.Felt `json:"suggested_max_fee"`
}

var (
	contractAddressPrefix = felt.MustShortString("STARKNET_CONTRACT_ADDRESS")
	// Addresses live below 2^251 - 256.
	addressBound = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 251), big.NewInt(256))
)

// ContractAddress returns the deterministic address of a contract deployed
// from classHash with salt and constructor calldata. Account deployments use
// a zero deployer.
func ContractAddress(salt, classHash felt.Felt, constructorCalldata []felt.Felt, deployer felt.Felt) felt.Felt {
	h := felt.PedersenArray(
		contractAddressPrefix,
		deployer,
		salt,
		classHash,
		felt.PedersenArray(constructorCalldata...),
	)
	addr, _ := felt.FromBig(new(big.Int).Mod(h.Big(), addressBound))
	return addr
}
