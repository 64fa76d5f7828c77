package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/go-webauthn/webauthn/protocol"
)

const softAuthFlags = protocol.FlagUserPresent | protocol.FlagUserVerified

// SoftAuthenticator is a software passkey for development and tests. It
// behaves like a platform authenticator that never prompts.
type SoftAuthenticator struct {
	origin string
	rpID   string
	key    *ecdsa.PrivateKey

	mu      sync.Mutex
	counter uint32
}

// NewSoftAuthenticator creates a passkey bound to origin, e.g.
// "https://play.example.com". The RP ID is the origin's host.
func NewSoftAuthenticator(origin string) (*SoftAuthenticator, error) {
	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid origin %q", origin)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate P-256 key: %w", err)
	}

	return &SoftAuthenticator{origin: origin, rpID: u.Hostname(), key: key}, nil
}

// PublicKey implements Authenticator.
func (a *SoftAuthenticator) PublicKey() *ecdsa.PublicKey {
	return &a.key.PublicKey
}

// Origin implements Authenticator.
func (a *SoftAuthenticator) Origin() string {
	return a.origin
}

// GetAssertion implements Authenticator.
func (a *SoftAuthenticator) GetAssertion(ctx context.Context, challenge []byte) (*Assertion, error) {
	if err := ctx.Err(); err != nil {
		return nil, &DeviceError{Op: "get assertion", Err: fmt.Errorf("%w: %v", ErrUserCancelled, err)}
	}

	a.mu.Lock()
	a.counter++
	counter := a.counter
	a.mu.Unlock()

	cd, err := json.Marshal(protocol.CollectedClientData{
		Type:      protocol.AssertCeremony,
		Challenge: base64.RawURLEncoding.EncodeToString(challenge),
		Origin:    a.origin,
	})
	if err != nil {
		return nil, err
	}

	rpHash := sha256.Sum256([]byte(a.rpID))
	authData := make([]byte, 0, 37)
	authData = append(authData, rpHash[:]...)
	authData = append(authData, byte(softAuthFlags))
	authData = binary.BigEndian.AppendUint32(authData, counter)

	cdHash := sha256.Sum256(cd)
	digest := sha256.Sum256(append(append([]byte(nil), authData...), cdHash[:]...))
	sig, err := ecdsa.SignASN1(rand.Reader, a.key, digest[:])
	if err != nil {
		return nil, &DeviceError{Op: "get assertion", Err: err}
	}

	return &Assertion{AuthenticatorData: authData, ClientDataJSON: cd, Signature: sig}, nil
}

var _ Authenticator = (*SoftAuthenticator)(nil)
