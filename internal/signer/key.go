package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/better-wallet/controller/pkg/felt"
)

// KeySignatureLen is the length of a secp256k1 signer signature:
// [scheme, identity, r.low, r.high, s.low, s.high, v].
const KeySignatureLen = 7

// SigningKey is a secp256k1 private key whose scalar fits in a felt.
type SigningKey struct {
	priv *ecdsa.PrivateKey
}

// GenerateKey creates a random key. The scalar is drawn from 250 bits so it
// is always a valid felt and below the curve order.
func GenerateKey() (*SigningKey, error) {
	for {
		var b [32]byte
		if _, err := rand.Read(b[:]); err != nil {
			return nil, fmt.Errorf("failed to read randomness: %w", err)
		}
		b[0] &= 0x03

		priv, err := crypto.ToECDSA(b[:])
		if err != nil {
			continue
		}
		return &SigningKey{priv: priv}, nil
	}
}

// FromSecretScalar restores a key from its scalar.
func FromSecretScalar(scalar felt.Felt) (*SigningKey, error) {
	priv, err := crypto.ToECDSA(scalar.Bytes())
	if err != nil {
		return nil, &SignError{Op: "restore key", Err: err}
	}
	return &SigningKey{priv: priv}, nil
}

// FromHex parses a hex-encoded secp256k1 private key. Unlike FromSecretScalar
// it accepts any scalar below the curve order; such keys sign normally but
// may not be exportable as a felt.
func FromHex(hexKey string) (*SigningKey, error) {
	if len(hexKey) >= 2 && hexKey[:2] == "0x" {
		hexKey = hexKey[2:]
	}
	priv, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, &SignError{Op: "parse key", Err: err}
	}
	return &SigningKey{priv: priv}, nil
}

// SecretScalar returns the private scalar as a felt.
func (k *SigningKey) SecretScalar() (felt.Felt, error) {
	f, err := felt.FromBytes(crypto.FromECDSA(k.priv))
	if err != nil {
		return felt.Zero, &SignError{Op: "export key", Err: err}
	}
	return f, nil
}

// Identity returns the Ethereum address of the public key as a felt.
func (k *SigningKey) Identity() felt.Felt {
	addr := crypto.PubkeyToAddress(k.priv.PublicKey)
	f, _ := felt.FromBytes(addr.Bytes())
	return f
}

// Sign produces the serialized secp256k1 signer signature over hash.
func (k *SigningKey) Sign(hash felt.Felt) ([]felt.Felt, error) {
	sig, err := crypto.Sign(hash.Bytes(), k.priv)
	if err != nil {
		return nil, &SignError{Op: "secp256k1 sign", Err: err}
	}

	rLow, rHigh := felt.SplitU256(new(big.Int).SetBytes(sig[:32]))
	sLow, sHigh := felt.SplitU256(new(big.Int).SetBytes(sig[32:64]))

	return []felt.Felt{
		felt.FromUint64(uint64(SchemeSecp256k1)),
		k.Identity(),
		rLow, rHigh,
		sLow, sHigh,
		felt.FromUint64(uint64(sig[64])),
	}, nil
}

// Zero clears the private scalar.
func (k *SigningKey) Zero() {
	if k.priv != nil && k.priv.D != nil {
		k.priv.D.SetInt64(0)
	}
}

// Verify checks a secp256k1 signer signature against hash by recovering the
// public key and comparing its address with the embedded identity.
func Verify(signature []felt.Felt, hash felt.Felt) error {
	if len(signature) != KeySignatureLen {
		return fmt.Errorf("expected %d signature elements, got %d", KeySignatureLen, len(signature))
	}
	if signature[0] != felt.FromUint64(uint64(SchemeSecp256k1)) {
		return fmt.Errorf("unsupported signature scheme %s", signature[0])
	}

	v, ok := signature[6].Uint64()
	if !ok || v > 1 {
		return errors.New("invalid recovery id")
	}

	raw := make([]byte, 65)
	felt.JoinU256(signature[2], signature[3]).FillBytes(raw[:32])
	felt.JoinU256(signature[4], signature[5]).FillBytes(raw[32:64])
	raw[64] = byte(v)

	pub, err := crypto.SigToPub(hash.Bytes(), raw)
	if err != nil {
		return fmt.Errorf("failed to recover public key: %w", err)
	}
	addr := crypto.PubkeyToAddress(*pub)
	identity, _ := felt.FromBytes(addr.Bytes())
	if identity != signature[1] {
		return errors.New("signature does not match signer identity")
	}
	return nil
}

// KeySigner is an in-memory secp256k1 signer acting as owner, guardian or session key.
type KeySigner struct {
	kind Kind
	key  *SigningKey
}

// NewOwner wraps key as the account owner.
func NewOwner(key *SigningKey) *KeySigner {
	return &KeySigner{kind: KindOwner, key: key}
}

// NewGuardian wraps key as the account guardian.
func NewGuardian(key *SigningKey) *KeySigner {
	return &KeySigner{kind: KindGuardian, key: key}
}

// NewSession wraps an ephemeral key as a session signer.
func NewSession(key *SigningKey) *KeySigner {
	return &KeySigner{kind: KindSession, key: key}
}

func (s *KeySigner) Kind() Kind          { return s.kind }
func (s *KeySigner) Scheme() Scheme      { return SchemeSecp256k1 }
func (s *KeySigner) Identity() felt.Felt { return s.key.Identity() }
func (s *KeySigner) sealed()             {}

// Key returns the underlying key.
func (s *KeySigner) Key() *SigningKey {
	return s.key
}

// SignHash signs hash synchronously; the context is not consulted.
func (s *KeySigner) SignHash(_ context.Context, hash felt.Felt) ([]felt.Felt, error) {
	return s.key.Sign(hash)
}

var _ Signer = (*KeySigner)(nil)
