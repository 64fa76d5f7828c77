// Package signer provides the hashing/signing capability shared by every key
// an account can be controlled with.
//
// The variant set is closed: owner and guardian keys, hardware/passkey
// authenticators and ephemeral session keys. Signer is sealed so that no
// other package can introduce a new variant.
package signer

import (
	"context"
	"fmt"

	"github.com/better-wallet/controller/pkg/felt"
)

// Kind identifies the role a signer plays for an account.
type Kind int

const (
	KindOwner Kind = iota + 1
	KindGuardian
	KindHardware
	KindSession
)

func (k Kind) String() string {
	switch k {
	case KindOwner:
		return "owner"
	case KindGuardian:
		return "guardian"
	case KindHardware:
		return "hardware"
	case KindSession:
		return "session"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Scheme is the on-chain signature scheme tag that prefixes every signer signature.
type Scheme uint64

const (
	SchemeSecp256k1 Scheme = 1
	SchemeWebauthn  Scheme = 4
)

// Signer is a key capable of signing a message hash for an account.
type Signer interface {
	// Kind returns the signer's role.
	Kind() Kind

	// Scheme returns the signature scheme tag.
	Scheme() Scheme

	// Identity returns the public identity the account stores for this signer.
	Identity() felt.Felt

	// SignHash signs hash and returns the serialized signer signature,
	// which always starts with [scheme, identity].
	SignHash(ctx context.Context, hash felt.Felt) ([]felt.Felt, error)

	sealed()
}

// Serialize returns the constructor/storage form of a signer: [scheme, identity].
func Serialize(s Signer) []felt.Felt {
	return []felt.Felt{felt.FromUint64(uint64(s.Scheme())), s.Identity()}
}
