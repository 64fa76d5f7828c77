package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/better-wallet/controller/internal/provider"
	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
)

var deployAccountPrefix = felt.MustShortString("deploy_account")

// ErrMaxFeeRequired is returned when a deployment is sent without a max fee.
var ErrMaxFeeRequired = errors.New("max fee is required for account deployment")

// FactoryError wraps a failed account deployment.
type FactoryError struct {
	Op  string
	Err error
}

func (e *FactoryError) Error() string {
	return fmt.Sprintf("account factory %s: %v", e.Op, e.Err)
}

func (e *FactoryError) Unwrap() error {
	return e.Err
}

// HashSigner signs a transaction hash.
type HashSigner interface {
	SignHash(ctx context.Context, hash felt.Felt) ([]felt.Felt, error)
}

// Factory deploys accounts of one class with fixed constructor calldata.
type Factory struct {
	classHash           felt.Felt
	chainID             felt.Felt
	constructorCalldata []felt.Felt
	signer              HashSigner
	provider            provider.Provider
}

// NewFactory creates a factory. signer authorizes the deployment; it must
// be the key the constructor calldata installs as owner.
func NewFactory(classHash, chainID felt.Felt, constructorCalldata []felt.Felt, signer HashSigner, p provider.Provider) *Factory {
	return &Factory{
		classHash:           classHash,
		chainID:             chainID,
		constructorCalldata: constructorCalldata,
		signer:              signer,
		provider:            p,
	}
}

// Deployment is a pending deployment with a given salt.
type Deployment struct {
	factory *Factory
	salt    felt.Felt
	maxFee  *felt.Felt
}

// Deploy starts a deployment with salt.
func (f *Factory) Deploy(salt felt.Felt) *Deployment {
	return &Deployment{factory: f, salt: salt}
}

// MaxFee sets the fee cap.
func (d *Deployment) MaxFee(maxFee felt.Felt) *Deployment {
	d.maxFee = &maxFee
	return d
}

// Address returns the address the account will be deployed at.
func (d *Deployment) Address() felt.Felt {
	return types.ContractAddress(d.salt, d.factory.classHash, d.factory.constructorCalldata, felt.Zero)
}

// Hash returns the hash signed for the deployment.
func (d *Deployment) Hash(maxFee felt.Felt) felt.Felt {
	f := d.factory
	classAndCtor := append([]felt.Felt{f.classHash, d.salt}, f.constructorCalldata...)
	return felt.PedersenArray(
		deployAccountPrefix,
		felt.FromUint64(types.TransactionVersion1),
		d.Address(),
		felt.Zero,
		felt.PedersenArray(classAndCtor...),
		maxFee,
		f.chainID,
		felt.Zero,
	)
}

// Send signs and submits the deployment.
func (d *Deployment) Send(ctx context.Context) (*types.DeployAccountTransactionResult, error) {
	if d.maxFee == nil {
		return nil, &FactoryError{Op: "prepare", Err: ErrMaxFeeRequired}
	}

	sig, err := d.factory.signer.SignHash(ctx, d.Hash(*d.maxFee))
	if err != nil {
		return nil, &FactoryError{Op: "sign", Err: err}
	}

	tx := types.DeployAccountTransaction{
		Type:                types.TxTypeDeployAccount,
		MaxFee:              *d.maxFee,
		Version:             felt.FromUint64(types.TransactionVersion1),
		Signature:           sig,
		Nonce:               felt.Zero,
		ContractAddressSalt: d.salt,
		ConstructorCalldata: d.factory.constructorCalldata,
		ClassHash:           d.factory.classHash,
	}

	res, err := d.factory.provider.AddDeployAccountTransaction(ctx, tx)
	if err != nil {
		return nil, &FactoryError{Op: "send", Err: err}
	}
	return res, nil
}
