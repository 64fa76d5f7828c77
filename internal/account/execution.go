package account

import (
	"context"
	"fmt"
	"math/big"

	"github.com/better-wallet/controller/internal/validation"
	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
)

var (
	invokePrefix = felt.MustShortString("invoke")

	// QueryVersion1 marks a version 1 transaction signed for fee estimation
	// only; it can never be included on chain.
	QueryVersion1 = felt.MustFromHex("0x100000000000000000000000000000001")
)

// InvokeHash returns the hash signed for a version 1 invoke transaction.
func InvokeHash(version, sender felt.Felt, calldata []felt.Felt, maxFee, chainID, nonce felt.Felt) felt.Felt {
	return felt.PedersenArray(
		invokePrefix,
		version,
		sender,
		felt.Zero,
		felt.PedersenArray(calldata...),
		maxFee,
		chainID,
		nonce,
	)
}

// Execution builds a version 1 invoke of a call batch. Unset nonce and max
// fee are fetched from the provider.
type Execution struct {
	account       Account
	calls         []types.Call
	nonce         *felt.Felt
	maxFee        *felt.Felt
	feeMultiplier float64
}

// NewExecution starts an invoke of calls from acc.
func NewExecution(acc Account, calls []types.Call) *Execution {
	return &Execution{account: acc, calls: calls, feeMultiplier: 1.0}
}

// Nonce sets the transaction nonce.
func (e *Execution) Nonce(nonce felt.Felt) *Execution {
	e.nonce = &nonce
	return e
}

// MaxFee sets the fee cap.
func (e *Execution) MaxFee(maxFee felt.Felt) *Execution {
	e.maxFee = &maxFee
	return e
}

// FeeEstimateMultiplier scales the estimated fee into the suggested max fee.
func (e *Execution) FeeEstimateMultiplier(m float64) *Execution {
	e.feeMultiplier = m
	return e
}

// EstimateFee signs a query-only copy of the transaction and asks the
// provider to estimate it.
func (e *Execution) EstimateFee(ctx context.Context) (*types.FeeEstimate, error) {
	nonce, err := e.resolveNonce(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := e.sign(ctx, QueryVersion1, nonce, felt.Zero)
	if err != nil {
		return nil, err
	}

	est, err := e.account.Provider().EstimateFee(ctx, *tx)
	if err != nil {
		return nil, &Error{Op: "estimate_fee", Err: err}
	}

	suggested, err := scaleFee(est.OverallFee, e.feeMultiplier)
	if err != nil {
		return nil, &Error{Op: "estimate_fee", Err: err}
	}
	est.SuggestedMaxFee = suggested
	return est, nil
}

// Prepare signs the transaction without submitting it.
func (e *Execution) Prepare(ctx context.Context) (*types.InvokeTransaction, error) {
	nonce, err := e.resolveNonce(ctx)
	if err != nil {
		return nil, err
	}

	var maxFee felt.Felt
	if e.maxFee != nil {
		maxFee = *e.maxFee
	} else {
		est, err := e.EstimateFee(ctx)
		if err != nil {
			return nil, err
		}
		maxFee = est.SuggestedMaxFee
	}

	return e.sign(ctx, felt.FromUint64(types.TransactionVersion1), nonce, maxFee)
}

// Send signs and submits the transaction.
func (e *Execution) Send(ctx context.Context) (*types.InvokeTransactionResult, error) {
	tx, err := e.Prepare(ctx)
	if err != nil {
		return nil, err
	}

	res, err := e.account.Provider().AddInvokeTransaction(ctx, *tx)
	if err != nil {
		return nil, &Error{Op: "send", Err: err}
	}
	return res, nil
}

func (e *Execution) resolveNonce(ctx context.Context) (felt.Felt, error) {
	if e.nonce != nil {
		return *e.nonce, nil
	}
	nonce, err := e.account.Provider().Nonce(ctx, e.account.Address())
	if err != nil {
		return felt.Zero, &Error{Op: "nonce", Err: err}
	}
	return nonce, nil
}

func (e *Execution) sign(ctx context.Context, version, nonce, maxFee felt.Felt) (*types.InvokeTransaction, error) {
	calldata := types.SerializeCalls(e.calls)
	hash := InvokeHash(version, e.account.Address(), calldata, maxFee, e.account.ChainID(), nonce)

	sig, err := e.account.SignHash(ctx, hash)
	if err != nil {
		return nil, &Error{Op: "sign", Err: err}
	}

	return &types.InvokeTransaction{
		Type:          types.TxTypeInvoke,
		SenderAddress: e.account.Address(),
		Calldata:      calldata,
		MaxFee:        maxFee,
		Version:       version,
		Signature:     sig,
		Nonce:         nonce,
	}, nil
}

// scaleFee returns fee * m, truncated.
func scaleFee(fee felt.Felt, m float64) (felt.Felt, error) {
	if err := validation.ValidateFeeMultiplier(m); err != nil {
		return felt.Zero, fmt.Errorf("%w, got %v", err, m)
	}
	scaled, _ := new(big.Float).Mul(new(big.Float).SetInt(fee.Big()), big.NewFloat(m)).Int(nil)
	return felt.FromBig(scaled)
}
