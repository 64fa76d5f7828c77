package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"github.com/better-wallet/controller/pkg/felt"
)

// Authenticator is an external passkey device. GetAssertion may block on user
// interaction and has no timeout of its own; callers bound it with ctx.
type Authenticator interface {
	// PublicKey returns the credential's P-256 public key.
	PublicKey() *ecdsa.PublicKey

	// Origin returns the relying party origin the credential is scoped to.
	Origin() string

	// GetAssertion asks the device to sign challenge.
	GetAssertion(ctx context.Context, challenge []byte) (*Assertion, error)
}

// Assertion is a WebAuthn authentication assertion.
type Assertion struct {
	AuthenticatorData []byte
	ClientDataJSON    []byte
	// Signature is the ASN.1 DER encoded ECDSA signature.
	Signature []byte
}

// Hardware signs through a passkey authenticator.
type Hardware struct {
	auth Authenticator
}

// NewHardware wraps an authenticator as a hardware signer. Hardware signers
// may act as the account owner; Kind always reports KindHardware.
func NewHardware(auth Authenticator) *Hardware {
	return &Hardware{auth: auth}
}

func (h *Hardware) Kind() Kind     { return KindHardware }
func (h *Hardware) Scheme() Scheme { return SchemeWebauthn }
func (h *Hardware) sealed()        {}

// Identity is the hash of the uncompressed P-256 public key.
func (h *Hardware) Identity() felt.Felt {
	pub := h.auth.PublicKey()
	return felt.Keccak250(elliptic.Marshal(elliptic.P256(), pub.X, pub.Y))
}

// SignHash requests an assertion over hash, verifies it against the
// credential's public key and serializes it as
// [scheme, identity, r.low, r.high, s.low, s.high, authData..., clientData...]
// where both byte arrays are length-prefixed with one byte per element.
func (h *Hardware) SignHash(ctx context.Context, hash felt.Felt) ([]felt.Felt, error) {
	challenge := hash.Bytes()

	assertion, err := h.auth.GetAssertion(ctx, challenge)
	if err != nil {
		var devErr *DeviceError
		if errors.As(err, &devErr) {
			return nil, err
		}
		return nil, &DeviceError{Op: "get assertion", Err: err}
	}

	if err := verifyAssertion(h.auth.PublicKey(), h.auth.Origin(), challenge, assertion); err != nil {
		return nil, &DeviceError{Op: "verify assertion", Err: fmt.Errorf("%w: %v", ErrAssertionVerification, err)}
	}

	var sig webauthncose.ECDSASignature
	if _, err := asn1.Unmarshal(assertion.Signature, &sig); err != nil {
		return nil, &SignError{Op: "decode assertion signature", Err: err}
	}

	rLow, rHigh := felt.SplitU256(sig.R)
	sLow, sHigh := felt.SplitU256(sig.S)

	out := []felt.Felt{
		felt.FromUint64(uint64(SchemeWebauthn)),
		h.Identity(),
		rLow, rHigh,
		sLow, sHigh,
	}
	out = append(out, serializeBytes(assertion.AuthenticatorData)...)
	out = append(out, serializeBytes(assertion.ClientDataJSON)...)
	return out, nil
}

// verifyAssertion runs the relying party checks of an authentication
// ceremony: client data type, challenge and origin, the rpIdHash and
// user-presence flag of the authenticator data, and the ES256 signature over
// authenticatorData || SHA-256(clientDataJSON).
func verifyAssertion(pub *ecdsa.PublicKey, origin string, challenge []byte, a *Assertion) error {
	if a == nil {
		return errors.New("empty assertion")
	}

	var cd protocol.CollectedClientData
	if err := json.Unmarshal(a.ClientDataJSON, &cd); err != nil {
		return fmt.Errorf("invalid client data: %w", err)
	}
	if err := cd.Verify(
		base64.RawURLEncoding.EncodeToString(challenge),
		protocol.AssertCeremony,
		[]string{origin},
		nil,
		protocol.TopOriginIgnoreVerificationMode,
	); err != nil {
		return err
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	var authData protocol.AuthenticatorData
	if err := authData.Unmarshal(a.AuthenticatorData); err != nil {
		return err
	}
	rpIDHash := sha256.Sum256([]byte(u.Hostname()))
	if err := authData.Verify(rpIDHash[:], nil, false, true); err != nil {
		return err
	}

	key := webauthncose.EC2PublicKeyData{
		PublicKeyData: webauthncose.PublicKeyData{
			KeyType:   int64(webauthncose.EllipticKey),
			Algorithm: int64(webauthncose.AlgES256),
		},
		Curve:  int64(webauthncose.P256),
		XCoord: pub.X.FillBytes(make([]byte, 32)),
		YCoord: pub.Y.FillBytes(make([]byte, 32)),
	}
	cdHash := sha256.Sum256(a.ClientDataJSON)
	signed := append(append([]byte(nil), a.AuthenticatorData...), cdHash[:]...)
	ok, err := key.Verify(signed, a.Signature)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("invalid signature")
	}
	return nil
}

func serializeBytes(b []byte) []felt.Felt {
	out := make([]felt.Felt, 0, len(b)+1)
	out = append(out, felt.FromUint64(uint64(len(b))))
	for _, c := range b {
		out = append(out, felt.FromUint64(uint64(c)))
	}
	return out
}

var _ Signer = (*Hardware)(nil)
