// Package controller is the entry point for a logged-in controller account.
// It owns the owner and guardian signers, decides per call batch whether a
// stored session may sign instead of the owner, and drives deployment,
// execution, fee estimation and delegation.
package controller

import (
	"context"
	"errors"
	"time"

	"github.com/better-wallet/controller/internal/account"
	"github.com/better-wallet/controller/internal/contract"
	"github.com/better-wallet/controller/internal/logger"
	"github.com/better-wallet/controller/internal/outside"
	"github.com/better-wallet/controller/internal/provider"
	"github.com/better-wallet/controller/internal/session"
	"github.com/better-wallet/controller/internal/signer"
	"github.com/better-wallet/controller/internal/storage"
	"github.com/better-wallet/controller/internal/validation"
	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
)

// DefaultClassHash is the controller account class deployed by Deploy.
var DefaultClassHash = felt.MustFromHex("0x05f0f2ae9301e0468ca3f9218dadd43a448a71acc66b6ac1b5b49e1b2a9ab9ab")

// Controller holds the account identity and the handles it operates
// through. It keeps no state of its own between calls; sessions live in the
// storage backend.
type Controller struct {
	username string
	address  felt.Felt
	chainID  felt.Felt

	provider provider.Provider
	owner    *account.OwnerAccount
	contract *contract.Controller
	backend  storage.Backend

	policy        session.Policy
	classHash     felt.Felt
	sessionMaxFee *felt.Felt
	now           func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
		c.policy.Now = now
	}
}

// WithExpiryCheck routes batches to the owner when the stored session has
// expired, instead of letting the chain reject the session signature.
func WithExpiryCheck() Option {
	return func(c *Controller) {
		c.policy.CheckExpiry = true
	}
}

// WithClassHash overrides the account class used by Deploy.
func WithClassHash(classHash felt.Felt) Option {
	return func(c *Controller) {
		c.classHash = classHash
	}
}

// WithSessionMaxFee caps the max fee of session-signed transactions for
// sessions created by this controller.
func WithSessionMaxFee(maxFee felt.Felt) Option {
	return func(c *Controller) {
		c.sessionMaxFee = &maxFee
	}
}

// New creates a controller for the account at address. guardian may be nil.
func New(
	username string,
	p provider.Provider,
	owner signer.Signer,
	guardian signer.Signer,
	address felt.Felt,
	chainID felt.Felt,
	backend storage.Backend,
	opts ...Option,
) *Controller {
	ownerAccount := account.NewOwnerAccount(p, signer.Dual(owner, guardian), address, chainID)

	c := &Controller{
		username:  username,
		address:   address,
		chainID:   chainID,
		provider:  p,
		owner:     ownerAccount,
		contract:  contract.NewController(ownerAccount),
		backend:   backend,
		classHash: DefaultClassHash,
		now:       time.Now,
	}
	c.policy.Now = c.now

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Username returns the account's username.
func (c *Controller) Username() string { return c.username }

// Address returns the account address.
func (c *Controller) Address() felt.Felt { return c.address }

// ChainID returns the chain the account lives on.
func (c *Controller) ChainID() felt.Felt { return c.chainID }

// Provider returns the chain provider.
func (c *Controller) Provider() provider.Provider { return c.provider }

// Deploy deploys the account. The salt is the username as a short string;
// the constructor installs the owner with no guardian.
func (c *Controller) Deploy(ctx context.Context, maxFee felt.Felt) (*types.DeployAccountTransactionResult, error) {
	salt, err := felt.ShortString(c.username)
	if err != nil {
		return nil, wrap("deploy", KindShortString, err)
	}

	calldata := constructorCalldata(c.owner.Signer().Owner())
	factory := account.NewFactory(c.classHash, c.chainID, calldata, c.owner, c.provider)
	res, err := factory.Deploy(salt).MaxFee(maxFee).Send(ctx)
	if err != nil {
		return nil, wrap("deploy", KindAccountFactory, err)
	}

	logger.Info(ctx, "account deployment submitted",
		"address", res.ContractAddress.String(),
		"transaction_hash", res.TransactionHash.String(),
	)
	return res, nil
}

// AccountAddress returns the address Deploy will produce for username and
// owner under classHash, so a controller can be built before deployment.
func AccountAddress(username string, owner signer.Signer, classHash felt.Felt) (felt.Felt, error) {
	salt, err := felt.ShortString(username)
	if err != nil {
		return felt.Zero, wrap("account_address", KindShortString, err)
	}
	return types.ContractAddress(salt, classHash, constructorCalldata(owner), felt.Zero), nil
}

func constructorCalldata(owner signer.Signer) []felt.Felt {
	calldata := signer.Serialize(owner)
	return append(calldata, felt.One) // no guardian
}

// Execute signs and sends calls with the given nonce and max fee, using the
// stored session when it covers every call and the owner otherwise.
func (c *Controller) Execute(ctx context.Context, calls []types.Call, nonce, maxFee felt.Felt) (*types.InvokeTransactionResult, error) {
	r, err := c.route(ctx, "execute", calls)
	if err != nil {
		return nil, err
	}

	if r.session != nil && r.session.MaxFee != nil && maxFee.Big().Cmp(r.session.MaxFee.Big()) > 0 {
		return nil, wrap("execute", KindSessionPolicy,
			&MaxFeeError{MaxFee: maxFee, Cap: *r.session.MaxFee})
	}

	res, err := account.NewExecution(r.account, calls).Nonce(nonce).MaxFee(maxFee).Send(ctx)
	if err != nil {
		return nil, wrap("execute", KindAccount, err)
	}
	return res, nil
}

// EstimateInvokeFee estimates the fee of calls under the same routing as
// Execute. A nil multiplier means 1.0.
func (c *Controller) EstimateInvokeFee(ctx context.Context, calls []types.Call, multiplier *float64) (*types.FeeEstimate, error) {
	m := 1.0
	if multiplier != nil {
		m = *multiplier
	}
	if err := validation.ValidateFeeMultiplier(m); err != nil {
		return nil, wrap("estimate_invoke_fee", KindAccount, err)
	}

	r, err := c.route(ctx, "estimate_invoke_fee", calls)
	if err != nil {
		return nil, err
	}

	est, err := account.NewExecution(r.account, calls).FeeEstimateMultiplier(m).EstimateFee(ctx)
	if err != nil {
		return nil, wrap("estimate_invoke_fee", KindAccount, err)
	}
	return est, nil
}

// ExecuteFromOutside signs exec with the routed signer and hands it to the
// provider's relay. It returns the relayed transaction hash.
func (c *Controller) ExecuteFromOutside(ctx context.Context, exec outside.Execution) (felt.Felt, error) {
	r, err := c.route(ctx, "execute_from_outside", exec.Calls)
	if err != nil {
		return felt.Zero, err
	}

	signed, err := account.SignOutsideExecution(ctx, r.account, exec)
	if err != nil {
		return felt.Zero, wrap("execute_from_outside", KindSign, err)
	}

	res, err := c.provider.AddExecuteOutsideTransaction(ctx, c.address, c.chainID, *signed)
	if err != nil {
		return felt.Zero, wrap("execute_from_outside", KindProvider, err)
	}
	return res.TransactionHash, nil
}

// DelegateAccount reads the account's delegate.
func (c *Controller) DelegateAccount(ctx context.Context) (felt.Felt, error) {
	delegate, err := c.contract.DelegateAccount(ctx)
	if err != nil {
		kind := KindProvider
		var decodeErr *contract.DecodeError
		if errors.As(err, &decodeErr) {
			kind = KindEncoding
		}
		return felt.Zero, wrap("delegate_account", kind, err)
	}
	return delegate, nil
}

// SetDelegateAccount sets the account's delegate. Delegation changes account
// control, so it is always signed by the owner, never a session.
func (c *Controller) SetDelegateAccount(ctx context.Context, delegate felt.Felt) (*types.InvokeTransactionResult, error) {
	res, err := c.contract.SetDelegateAccount(ctx, delegate)
	if err != nil {
		return nil, wrap("set_delegate_account", KindAccount, err)
	}
	return res, nil
}
