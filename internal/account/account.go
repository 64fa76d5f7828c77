// Package account builds, signs and submits transactions for a controller
// account, either with the owner (and guardian) or with a session key.
package account

import (
	"context"
	"fmt"

	"github.com/better-wallet/controller/internal/provider"
	"github.com/better-wallet/controller/internal/session"
	"github.com/better-wallet/controller/internal/signer"
	"github.com/better-wallet/controller/pkg/felt"
	"github.com/better-wallet/controller/pkg/types"
)

// Account is a signing identity bound to an address on one chain.
type Account interface {
	Address() felt.Felt
	ChainID() felt.Felt
	Provider() provider.Provider

	// SignHash returns the account-level signature over hash, in the shape
	// the account contract's validation expects.
	SignHash(ctx context.Context, hash felt.Felt) ([]felt.Felt, error)
}

// Error wraps a failed account operation.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("account %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// OwnerAccount signs with the owner and, when present, the guardian.
type OwnerAccount struct {
	provider provider.Provider
	signer   *signer.DualSigner
	address  felt.Felt
	chainID  felt.Felt
}

// NewOwnerAccount creates an owner-routed account
func NewOwnerAccount(p provider.Provider, s *signer.DualSigner, address, chainID felt.Felt) *OwnerAccount {
	return &OwnerAccount{provider: p, signer: s, address: address, chainID: chainID}
}

func (a *OwnerAccount) Address() felt.Felt          { return a.address }
func (a *OwnerAccount) ChainID() felt.Felt          { return a.chainID }
func (a *OwnerAccount) Provider() provider.Provider { return a.provider }

// Signer returns the owner/guardian pair.
func (a *OwnerAccount) Signer() *signer.DualSigner {
	return a.signer
}

// SignHash returns the owner signature followed by the guardian signature.
func (a *OwnerAccount) SignHash(ctx context.Context, hash felt.Felt) ([]felt.Felt, error) {
	return a.signer.SignHash(ctx, hash)
}

// SessionMagic prefixes session signatures so the account contract can tell
// them apart from owner signatures.
var SessionMagic = felt.MustShortString("session-token")

// SessionAccount signs with an ephemeral session key. Its signatures carry
// the session and the owner's authorization of it.
type SessionAccount struct {
	provider      provider.Provider
	key           *signer.KeySigner
	address       felt.Felt
	chainID       felt.Felt
	authorization []felt.Felt
	session       session.Session
}

// NewSessionAccount creates a session-routed account
func NewSessionAccount(p provider.Provider, key *signer.KeySigner, address, chainID felt.Felt, authorization []felt.Felt, s session.Session) *SessionAccount {
	return &SessionAccount{
		provider:      p,
		key:           key,
		address:       address,
		chainID:       chainID,
		authorization: authorization,
		session:       s,
	}
}

func (a *SessionAccount) Address() felt.Felt          { return a.address }
func (a *SessionAccount) ChainID() felt.Felt          { return a.chainID }
func (a *SessionAccount) Provider() provider.Provider { return a.provider }

// Session returns the session this account signs under.
func (a *SessionAccount) Session() session.Session {
	return a.session
}

// SignHash returns
// [magic, session..., len(authorization), authorization..., len(sig), sig...].
func (a *SessionAccount) SignHash(ctx context.Context, hash felt.Felt) ([]felt.Felt, error) {
	sig, err := a.key.SignHash(ctx, hash)
	if err != nil {
		return nil, err
	}

	out := []felt.Felt{SessionMagic}
	out = append(out, a.session.Serialize()...)
	out = append(out, types.SerializeFelts(a.authorization)...)
	return append(out, types.SerializeFelts(sig)...), nil
}

// IsSessionSignature reports whether signature was produced by a SessionAccount.
func IsSessionSignature(signature []felt.Felt) bool {
	return len(signature) > 0 && signature[0] == SessionMagic
}

var (
	_ Account = (*OwnerAccount)(nil)
	_ Account = (*SessionAccount)(nil)
)
