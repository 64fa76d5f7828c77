package signer

import (
	"context"

	"github.com/better-wallet/controller/pkg/felt"
)

// DualSigner signs with the owner and, when present, the guardian. The
// signatures are concatenated owner first; on-chain verification checks them
// in that order.
type DualSigner struct {
	owner    Signer
	guardian Signer
}

// Dual combines an owner and an optional guardian. A nil guardian produces
// owner-only signatures.
func Dual(owner, guardian Signer) *DualSigner {
	return &DualSigner{owner: owner, guardian: guardian}
}

// Owner returns the owner signer.
func (d *DualSigner) Owner() Signer {
	return d.owner
}

// Guardian returns the guardian signer, or nil.
func (d *DualSigner) Guardian() Signer {
	return d.guardian
}

// SignHash signs hash with every configured signer.
func (d *DualSigner) SignHash(ctx context.Context, hash felt.Felt) ([]felt.Felt, error) {
	sig, err := d.owner.SignHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if d.guardian == nil {
		return sig, nil
	}

	guardianSig, err := d.guardian.SignHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	return append(sig, guardianSig...), nil
}
